package tempofilter

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/michaeltyson/TheSpectacularSyncEngine/timebase"
)

// TestPropertySteadyIntervalsConvergeOnTempo checks spec.md §8's steady
// receiver lock invariant: a perfectly steady stream of Clock arrivals at
// 24 PPQ converges on the tempo that produced it, within the filter's own
// adaptive rounding tolerance.
func TestPropertySteadyIntervalsConvergeOnTempo(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("steady clock arrivals converge on the generating tempo", prop.ForAll(
		func(bpm float64) bool {
			var published timebase.Tempo
			f := New(DefaultWindowSize, func(tempo timebase.Tempo, _ float64) {
				published = tempo
			})

			interval := timebase.HostTicks(timebase.SecondsToTicks(60.0 / (bpm * ticksPerPPQ)))
			ts := timebase.HostTicks(0)
			for i := 0; i < DefaultWindowSize*3; i++ {
				f.Observe(ts)
				ts += interval
			}

			diff := float64(published) - bpm
			if diff < 0 {
				diff = -diff
			}
			return diff < 0.5
		},
		gen.Float64Range(40, 220),
	))

	properties.TestingRun(t)
}

// TestPropertyOutlierRunFlushesWindow checks that a persistent run of
// displaced intervals (a genuine tempo change, not noise) eventually
// re-converges rather than being permanently rejected as noise forever.
func TestPropertyOutlierRunFlushesWindow(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("a sustained tempo change is eventually adopted", prop.ForAll(
		func(bpmBefore, bpmAfter float64) bool {
			var published timebase.Tempo
			f := New(DefaultWindowSize, func(tempo timebase.Tempo, _ float64) {
				published = tempo
			})

			ts := timebase.HostTicks(0)
			before := timebase.HostTicks(timebase.SecondsToTicks(60.0 / (bpmBefore * ticksPerPPQ)))
			for i := 0; i < DefaultWindowSize*2; i++ {
				f.Observe(ts)
				ts += before
			}

			after := timebase.HostTicks(timebase.SecondsToTicks(60.0 / (bpmAfter * ticksPerPPQ)))
			for i := 0; i < DefaultWindowSize*4; i++ {
				f.Observe(ts)
				ts += after
			}

			diff := float64(published) - bpmAfter
			if diff < 0 {
				diff = -diff
			}
			return diff < 1.0
		},
		gen.Float64Range(60, 100),
		gen.Float64Range(140, 200),
	))

	properties.TestingRun(t)
}
