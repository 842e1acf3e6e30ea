package clockreceiver

import "github.com/michaeltyson/TheSpectacularSyncEngine/timebase"

// snapshot is the realtime-readable state of a Receiver: an immutable
// record published atomically, under the receiver's mutex, by the
// MIDI-thread handler, Reset and the watchdog, and read lock-free by
// audio-thread callers. Because the record itself is
// immutable once constructed, swapping the pointer atomically is enough
// to give readers a consistent view with no seqlock retry loop — there is
// never a "torn" read of a half-updated record.
type snapshot struct {
	state       State
	tempo       timebase.Tempo
	errorPct    float64
	anchorTicks timebase.HostTicks
	anchorBeat  timebase.Beats
}

// timelineAnchor is the (host_ticks, beat) pair defining the current
// affine time-to-beat mapping, per spec.md §3.
type timelineAnchor struct {
	ticks timebase.HostTicks
	beat  timebase.Beats
}
