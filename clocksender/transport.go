package clocksender

import "github.com/michaeltyson/TheSpectacularSyncEngine/midimsg"

// Transport delivers outgoing MIDI realtime packets to their destinations.
//
// Grounded on SEMIDIClockSenderInterface (original_source/TheSpectacularSyncEngine,
// SEMIDIClockSender.h): implementations may be called from different
// goroutines over the sender's lifetime, but the sender guarantees it never
// calls Send concurrently with itself. Implementations remain responsible
// for their own synchronization if they mutate shared state such as a
// destination list.
type Transport interface {
	Send(packets *midimsg.PacketList) error
}
