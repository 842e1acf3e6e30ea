// Package tempofilter implements the running statistical tempo estimator
// used by the clock receiver: it turns a jittery stream of Clock-message
// arrival timestamps into a smoothed, hysteresis-stabilized tempo estimate
// plus a relative-standard-deviation "error" figure.
//
// The windowed mean/stddev-with-outlier-rejection shape is grounded on the
// jitter and minimum-delay estimators in the example pack's congestion
// control code (a running statistic over recent inter-arrival samples,
// with a bound on how far a single sample may pull the estimate); this
// package adapts that idea to MIDI Clock intervals and adds the adaptive
// rounding and hysteresis steps spec.md §4.3 requires for tempo specifically.
package tempofilter

import (
	"math"

	"github.com/michaeltyson/TheSpectacularSyncEngine/timebase"
)

// DefaultWindowSize is one beat's worth of Clock intervals at 24 PPQ.
const DefaultWindowSize = 24

// MaxWindowSize is the largest window this filter supports (two beats),
// per spec.md's "optionally up to two beats".
const MaxWindowSize = 48

// outlierRunLimit is how many consecutive rejected samples are tolerated
// before the window is treated as stale (a tempo change) and flushed.
const outlierRunLimit = 4

// outlierSigma is the rejection threshold, in standard deviations from the
// running mean.
const outlierSigma = 3.0

// ticksPerPPQ is the number of MIDI Clock messages per quarter note.
const ticksPerPPQ = 24

// PublishFunc is called whenever the filter's published tempo changes. It
// is invoked synchronously from Observe, on whatever thread the caller
// feeds messages from; the filter holds no locks of its own, per spec.md
// §4.3 — the caller (the receiver) owns synchronization.
type PublishFunc func(tempo timebase.Tempo, errorPercent float64)

// Filter is a ring-buffer tempo estimator over Clock-message arrival
// intervals.
type Filter struct {
	windowSize int
	intervals  []float64 // seconds, ring buffer
	next       int
	filled     int

	haveLast  bool
	lastArriv timebase.HostTicks

	outlierRun int

	published   timebase.Tempo
	hasPublish  bool
	errorPct    float64
	onPublish   PublishFunc
}

// New creates a tempo filter with the given window size (clamped to
// [1, MaxWindowSize]; zero or negative uses DefaultWindowSize) and an
// optional publish hook.
func New(windowSize int, onPublish PublishFunc) *Filter {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if windowSize > MaxWindowSize {
		windowSize = MaxWindowSize
	}
	return &Filter{
		windowSize: windowSize,
		intervals:  make([]float64, windowSize),
		onPublish:  onPublish,
	}
}

// Reset clears the window and drops the published tempo, returning the
// filter to its just-constructed state.
func (f *Filter) Reset() {
	f.next = 0
	f.filled = 0
	f.haveLast = false
	f.outlierRun = 0
	f.hasPublish = false
	f.published = 0
	f.errorPct = 0
}

// Tempo returns the last published tempo, or 0 if nothing has been
// published yet.
func (f *Filter) Tempo() timebase.Tempo {
	return f.published
}

// Error returns the most recently computed relative standard deviation, as
// a percentage. It is updated on every accepted sample, even when the
// published tempo does not change.
func (f *Filter) Error() float64 {
	return f.errorPct
}

// Observe feeds the arrival timestamp of one Clock message (24 per
// quarter note) into the filter.
func (f *Filter) Observe(arrival timebase.HostTicks) {
	if !f.haveLast {
		f.haveLast = true
		f.lastArriv = arrival
		return
	}

	delta := timebase.TicksToSeconds(timebase.HostTicks(arrival.Sub(f.lastArriv)))
	f.lastArriv = arrival

	if delta <= 0 {
		return
	}

	if f.filled >= 2 && f.isOutlier(delta) {
		f.outlierRun++
		if f.outlierRun >= outlierRunLimit {
			// A persistent run of outliers means the tempo itself moved,
			// not that we're seeing noise: flush and start over with this
			// sample as the new baseline.
			f.next = 0
			f.filled = 0
			f.outlierRun = 0
			f.push(delta)
		}
		return
	}
	f.outlierRun = 0
	f.push(delta)
	f.recompute()
}

func (f *Filter) push(delta float64) {
	f.intervals[f.next] = delta
	f.next = (f.next + 1) % f.windowSize
	if f.filled < f.windowSize {
		f.filled++
	}
}

func (f *Filter) mean() float64 {
	sum := 0.0
	for i := 0; i < f.filled; i++ {
		sum += f.intervals[i]
	}
	return sum / float64(f.filled)
}

func (f *Filter) stddev(mean float64) float64 {
	if f.filled < 2 {
		return 0
	}
	sumSq := 0.0
	for i := 0; i < f.filled; i++ {
		d := f.intervals[i] - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(f.filled))
}

func (f *Filter) isOutlier(delta float64) bool {
	mean := f.mean()
	sd := f.stddev(mean)
	if sd == 0 {
		return false
	}
	return math.Abs(delta-mean) > outlierSigma*sd
}

// recompute derives a candidate tempo from the current window, applies
// adaptive rounding, and publishes through the hysteresis gate.
func (f *Filter) recompute() {
	if f.filled == 0 {
		return
	}
	mean := f.mean()
	if mean <= 0 {
		return
	}
	sd := f.stddev(mean)
	errorPct := 0.0
	if mean > 0 {
		errorPct = (sd / mean) * 100.0
	}

	beatDuration := mean * ticksPerPPQ
	candidate := timebase.Tempo(60.0 / beatDuration)
	rounded := adaptiveRound(candidate, errorPct)

	f.errorPct = errorPct

	if !f.hasPublish || rounded != f.published {
		f.hasPublish = true
		f.published = rounded
		if f.onPublish != nil {
			f.onPublish(rounded, errorPct)
		}
	}
}

// adaptiveRound implements spec.md §4.3 step 5: the rounding granularity
// shrinks as the signal's measured error shrinks, which is what suppresses
// oscillation around a rounding boundary — a noisy signal that rounds to
// whole BPM will not flap between e.g. 119.97 and 120.02.
func adaptiveRound(t timebase.Tempo, errorPct float64) timebase.Tempo {
	switch {
	case errorPct < 0.01:
		return timebase.Tempo(math.Round(float64(t)*100) / 100)
	case errorPct < 0.1:
		return timebase.Tempo(math.Round(float64(t)*10) / 10)
	case errorPct < 5:
		return timebase.Tempo(math.Round(float64(t)))
	default:
		return t
	}
}
