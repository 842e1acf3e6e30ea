// Package timebase provides the conversions between host ticks, seconds and
// musical beats that every deadline and position computation in the sync
// engine is built on.
//
// HostTicks is a monotonic, high-resolution count obtained from the host's
// clock. The ratio between ticks and seconds is fixed once at process start,
// mirroring the teacher's tempo-segment math in TickGenerator but collapsed
// to a single affine conversion, since this engine tracks tempo via a
// timeline anchor rather than by replaying a tempo map.
package timebase

import "time"

// HostTicks is a monotonic, high-resolution clock reading. It has no
// meaning outside the process that produced it.
type HostTicks uint64

// Beats is a count of quarter notes since a timeline's origin.
type Beats float64

// Tempo is a tempo in beats per minute. Zero means "no tempo"; callers must
// guard against dividing by it.
type Tempo float64

// ticksPerSecond is a fixed constant: time.Duration already counts in
// nanoseconds, so we simply adopt nanosecond resolution as our host tick
// unit; this
// satisfies the "at least microsecond" contract with room to spare.
const ticksPerSecond = uint64(time.Second)

// start anchors HostTicks(0) to process start so values stay small and
// comparisons remain exact at double precision for a long time.
var start = time.Now()

// Now returns the current monotonic timestamp in host ticks.
func Now() HostTicks {
	return HostTicks(time.Since(start).Nanoseconds())
}

// TicksPerSecond returns the fixed host-ticks-to-seconds ratio for this
// process.
func TicksPerSecond() uint64 {
	return ticksPerSecond
}

// TicksToSeconds converts a host tick count to seconds.
func TicksToSeconds(t HostTicks) float64 {
	return float64(t) / float64(ticksPerSecond)
}

// SecondsToTicks converts a duration in seconds to host ticks.
func SecondsToTicks(seconds float64) HostTicks {
	return HostTicks(seconds * float64(ticksPerSecond))
}

// BeatsToSeconds converts a beat count to seconds at the given tempo.
// The caller must ensure tempo is positive; a zero or negative tempo
// produces +Inf/NaN/negative results rather than panicking, since this is a
// pure conversion used on hot paths.
func BeatsToSeconds(beats Beats, tempo Tempo) float64 {
	return float64(beats) * 60.0 / float64(tempo)
}

// SecondsToBeats converts elapsed seconds to a beat count at the given tempo.
func SecondsToBeats(seconds float64, tempo Tempo) Beats {
	return Beats(seconds * float64(tempo) / 60.0)
}

// TicksToBeats converts an elapsed host-tick duration to beats at the given
// tempo.
func TicksToBeats(ticks HostTicks, tempo Tempo) Beats {
	return SecondsToBeats(TicksToSeconds(ticks), tempo)
}

// BeatsToTicks converts a beat count to a host-tick duration at the given
// tempo.
func BeatsToTicks(beats Beats, tempo Tempo) HostTicks {
	return SecondsToTicks(BeatsToSeconds(beats, tempo))
}

// Add returns t plus a duration expressed in host ticks.
func (t HostTicks) Add(d HostTicks) HostTicks {
	return t + d
}

// Sub returns the signed difference t - u, in host ticks, as an int64 to
// allow negative results without wraparound surprises from the underlying
// unsigned representation.
func (t HostTicks) Sub(u HostTicks) int64 {
	return int64(t) - int64(u)
}
