package clocksender

import "github.com/michaeltyson/TheSpectacularSyncEngine/timebase"

// snapshot is the realtime-readable state of a Sender, published atomically
// by the scheduler goroutine and by the control methods that change it
// (SetTempo, Stop), and read lock-free by TimelinePositionFor.
type snapshot struct {
	running     bool
	tempo       timebase.Tempo
	anchorTicks timebase.HostTicks
	anchorBeat  timebase.Beats
}
