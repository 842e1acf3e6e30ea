package midimsg

import (
	"encoding/binary"
	"fmt"

	"github.com/michaeltyson/TheSpectacularSyncEngine/timebase"
)

// Timed pairs a Message with the host-tick timestamp at which it should be
// sent (sender side) or the timestamp at which it was received (receiver
// side).
type Timed struct {
	Timestamp timebase.HostTicks
	Message   Message
}

// PacketList is an ordered list of timestamped messages, coalesced into a
// single unit the way the platform's packet-list container would bundle
// them for one transport call. Entries must be sorted by Timestamp;
// Append does not sort, so callers building a list incrementally keep
// that order themselves.
type PacketList struct {
	entries []Timed
}

// NewPacketList creates an empty packet list.
func NewPacketList() *PacketList {
	return &PacketList{}
}

// Append adds a timestamped message to the end of the list. Callers are
// responsible for appending in non-decreasing timestamp order; Build and
// Parse do not reorder.
func (p *PacketList) Append(t timebase.HostTicks, m Message) {
	p.entries = append(p.entries, Timed{Timestamp: t, Message: m})
}

// Len returns the number of entries in the list.
func (p *PacketList) Len() int {
	return len(p.entries)
}

// Entries returns the list's entries in order. The returned slice must not
// be mutated by the caller.
func (p *PacketList) Entries() []Timed {
	return p.entries
}

// packet wire layout: for each entry, an 8-byte big-endian HostTicks
// timestamp, a 1-byte message length, then the message bytes themselves.
// This is deliberately simple — the "platform's packet-list container" is
// an external collaborator in the real engine; this format exists only so
// Build/Parse can round-trip for testing and for transports that want a
// flat byte representation.

// Build serializes the packet list to a flat byte buffer.
func (p *PacketList) Build() []byte {
	buf := make([]byte, 0, len(p.entries)*12)
	var tsBytes [8]byte
	for _, e := range p.entries {
		binary.BigEndian.PutUint64(tsBytes[:], uint64(e.Timestamp))
		buf = append(buf, tsBytes[:]...)
		buf = append(buf, byte(len(e.Message)))
		buf = append(buf, e.Message...)
	}
	return buf
}

// Parse decodes a flat byte buffer produced by Build back into a
// PacketList. It returns ErrMalformedPacket if the buffer is truncated
// mid-entry.
func Parse(data []byte) (*PacketList, error) {
	p := NewPacketList()
	i := 0
	for i < len(data) {
		if i+9 > len(data) {
			return nil, fmt.Errorf("midimsg: truncated packet header: %w", ErrMalformedPacket)
		}
		ts := timebase.HostTicks(binary.BigEndian.Uint64(data[i : i+8]))
		n := int(data[i+8])
		i += 9
		if i+n > len(data) {
			return nil, fmt.Errorf("midimsg: truncated packet body: %w", ErrMalformedPacket)
		}
		msg := make(Message, n)
		copy(msg, data[i:i+n])
		i += n
		p.Append(ts, msg)
	}
	return p, nil
}
