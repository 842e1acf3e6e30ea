// Package midiimport reads the tempo map embedded in a Standard MIDI File,
// for seeding a clocksender.Sender with the tempo curve of a pre-existing
// arrangement.
//
// Grounded on the teacher's pkg/engine/midi_player.go (extractTempoMap):
// the same gitlab.com/gomidi/midi/v2/smf parse-and-scan-for-meta-tempo
// approach, narrowed to just the tempo map rather than full playback.
package midiimport

import (
	"fmt"
	"io"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/michaeltyson/TheSpectacularSyncEngine/timebase"
)

// TempoPoint is one tempo change in a MIDI file, expressed in beats since
// the file's start rather than the file's native PPQ ticks, so it can be
// fed directly to a Sender regardless of the file's time division.
type TempoPoint struct {
	Beat  timebase.Beats
	Tempo timebase.Tempo
}

// TempoMapFromSMF parses a Standard MIDI File and returns its tempo map as
// a sequence of TempoPoints in ascending beat order. A file with no tempo
// meta-events returns a single point at beat 0, 120 BPM, matching the SMF
// default.
func TempoMapFromSMF(r io.Reader) ([]TempoPoint, error) {
	data, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("midiimport: parse SMF: %w", err)
	}

	ppq := 480
	if mt, ok := data.TimeFormat.(smf.MetricTicks); ok {
		ppq = int(mt)
	}
	if ppq <= 0 {
		ppq = 480
	}

	var points []TempoPoint
	haveBeatZero := false
	for _, track := range data.Tracks {
		absTick := 0
		for _, event := range track {
			absTick += int(event.Delta)
			var bpm float64
			if event.Message.GetMetaTempo(&bpm) && bpm > 0 {
				beat := timebase.Beats(float64(absTick) / float64(ppq))
				if beat == 0 {
					haveBeatZero = true
				}
				points = append(points, TempoPoint{Beat: beat, Tempo: timebase.Tempo(bpm)})
			}
		}
	}
	if !haveBeatZero {
		points = append(points, TempoPoint{Beat: 0, Tempo: 120})
	}

	return sortByBeat(points), nil
}

// sortByBeat orders tempo points by beat position. Tempo maps are small
// (tens of entries), so a plain insertion sort keeps this one-shot import
// path free of a sort.Slice closure allocation.
func sortByBeat(points []TempoPoint) []TempoPoint {
	for i := 1; i < len(points); i++ {
		for j := i; j > 0 && points[j].Beat < points[j-1].Beat; j-- {
			points[j], points[j-1] = points[j-1], points[j]
		}
	}
	return points
}
