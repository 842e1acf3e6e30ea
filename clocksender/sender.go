// Package clocksender implements the master side of the sync engine: it
// turns a tempo and a timeline position into a steady stream of MIDI
// realtime messages, scheduled ahead of when they must reach the wire.
//
// Grounded on SEMIDIClockSender.h (original_source/TheSpectacularSyncEngine)
// for its public surface (startAtTime:, setActiveTimelinePosition:atTime:,
// sendClockTicksWhileTimelineStopped) and on the teacher's
// pkg/vm/audio/timer.go for the scheduler goroutine's start/stop/ticker
// shape.
package clocksender

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaeltyson/TheSpectacularSyncEngine/midimsg"
	"github.com/michaeltyson/TheSpectacularSyncEngine/timebase"
)

// lookahead is how far into the future the scheduler is willing to commit
// tick and transport messages.
const lookahead = 100 * time.Millisecond

// safetyMargin is the minimum lead time given to a caller-unspecified apply
// time, so the message has a realistic chance of reaching the wire before
// its timestamp arrives.
const safetyMargin = 10 * time.Millisecond

// minWakeInterval floors the scheduler's wake cadence so a very fast tempo
// never turns it into a busy loop.
const minWakeInterval = 10 * time.Millisecond

// ticksPerBeat is the MIDI Clock resolution: 24 messages per quarter note.
const ticksPerBeat = 24

// sixteenthTicks is how many Clock messages make up a 1/16 note, the grid
// phase-safe apply times are rounded to.
const sixteenthTicks = 6

type startOp struct {
	applyTime timebase.HostTicks
	cueBeat   timebase.Beats
}

type seekOp struct {
	applyTime timebase.HostTicks
	beat      timebase.Beats
}

// Sender schedules and emits MIDI Clock, Start/Continue/Stop and Song
// Position Pointer messages at a settable tempo, through a Transport.
//
// Control methods (SetTempo, Start, Stop, SetActiveTimelinePosition, ...)
// take a brief lock and are safe to call from any single control thread.
// TimelinePositionFor is lock-free and safe to call from a realtime thread.
type Sender struct {
	mu        sync.Mutex
	transport Transport
	sendMu    sync.Mutex // serializes calls into transport.Send

	tempo            timebase.Tempo
	timelinePosition timebase.Beats
	sendWhileStopped bool

	state   State
	running bool

	anchorTicks timebase.HostTicks
	anchorBeat  timebase.Beats

	nextTickTime  timebase.HostTicks
	tickOriginSet bool

	start *startOp
	seek  *seekOp

	snap atomic.Pointer[snapshot]

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Sender that emits messages through transport. The
// scheduler goroutine starts immediately and runs until Close.
func New(transport Transport) *Sender {
	s := &Sender{
		transport: transport,
		state:     StateStopped,
	}
	s.publish()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.schedulerLoop()
	return s
}

// Close stops the scheduler goroutine. No further messages are sent after
// Close returns.
func (s *Sender) Close() {
	close(s.stopCh)
	<-s.doneCh
}

// SetTempo sets the tempo, in beats per minute. It takes effect for any
// tick not yet committed to the transport; ticks already handed to Send
// keep whatever timing they were computed with (nextTickTime already
// holds their fixed timestamps; only the interval used to step past them
// changes). A tempo of 0 or less suspends tick emission entirely until a
// positive tempo is set again.
//
// While Running, the timeline anchor is moved forward to the current
// instant before the new rate takes effect, so TimelinePositionFor stays
// continuous across the change instead of jumping when the new tempo is
// applied retroactively against the old anchor.
func (s *Sender) SetTempo(bpm float64) {
	s.mu.Lock()
	if s.running && s.tempo > 0 {
		now := timebase.Now()
		if elapsed := now.Sub(s.anchorTicks); elapsed > 0 {
			s.anchorBeat += timebase.TicksToBeats(timebase.HostTicks(elapsed), s.tempo)
			s.anchorTicks = now
		}
	}
	s.tempo = timebase.Tempo(bpm)
	s.publish()
	s.mu.Unlock()
}

// Tempo returns the last tempo set via SetTempo.
func (s *Sender) Tempo() timebase.Tempo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempo
}

// SetSendClockWhileStopped controls whether Clock messages continue to be
// emitted while the sender is Stopped, for downstream devices that use a
// continuous clock to stay warmed up. Default is false.
func (s *Sender) SetSendClockWhileStopped(send bool) {
	s.mu.Lock()
	s.sendWhileStopped = send
	s.mu.Unlock()
}

// State returns the sender's current control-side state.
func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetTimelinePosition cues the beat position the timeline will start from
// on the next Start call, while Stopped. While Running, it is equivalent to
// calling SetActiveTimelinePosition with an automatic apply time.
func (s *Sender) SetTimelinePosition(beats float64) timebase.HostTicks {
	s.mu.Lock()
	if !s.running {
		s.timelinePosition = timebase.Beats(beats)
		s.mu.Unlock()
		return 0
	}
	s.mu.Unlock()
	return s.SetActiveTimelinePosition(beats, 0)
}

// TimelinePosition returns the most recently cued or live timeline
// position, in beats.
func (s *Sender) TimelinePosition() timebase.Beats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.anchorBeat
	}
	return s.timelinePosition
}

// SetActiveTimelinePosition performs a live seek while Running: the
// timeline jumps to beats at applyTime, by emitting a Song Position
// Pointer at that timestamp. If applyTime is zero, an apply time is chosen
// automatically (now plus the safety margin, rounded up to a phase-safe
// tick boundary). The chosen apply time is returned.
func (s *Sender) SetActiveTimelinePosition(beats float64, applyTime timebase.HostTicks) timebase.HostTicks {
	s.mu.Lock()
	defer s.mu.Unlock()
	apply := s.resolveApplyTime(applyTime, true)
	s.seek = &seekOp{applyTime: apply, beat: timebase.Beats(beats)}
	s.state = StateSeekPending
	return apply
}

// Start schedules the transport to begin running at applyTime (or, if
// applyTime is zero, at an automatically chosen near-future time). It
// returns the apply time actually chosen, and ErrTempoUnset if the current
// tempo is not positive.
func (s *Sender) Start(applyTime timebase.HostTicks) (timebase.HostTicks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tempo <= 0 {
		return 0, ErrTempoUnset
	}
	apply := s.resolveApplyTime(applyTime, false)
	cue := s.timelinePosition
	s.timelinePosition = 0
	s.start = &startOp{applyTime: apply, cueBeat: cue}
	s.state = StateStartPending
	return apply, nil
}

// Stop halts the transport immediately: a Stop message is sent at the
// current time, and the cued timeline position resets to zero. Tempo is
// left unchanged. Calling Stop when already stopped has no further effect.
func (s *Sender) Stop() error {
	s.mu.Lock()
	if !s.running && s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	ts := timebase.Now()
	s.running = false
	s.state = StateStopped
	s.start = nil
	s.seek = nil
	s.timelinePosition = 0
	s.mu.Unlock()

	pl := midimsg.NewPacketList()
	pl.Append(ts, midimsg.Stop())
	err := s.send(pl)
	s.publish()
	return err
}

// resolveApplyTime must be called with s.mu held. isSeek selects the
// 1/16-note phase-safe grid used for live seeks; Start uses the finer
// any-tick-boundary grid, since there is no existing beat position to stay
// in phase with yet.
func (s *Sender) resolveApplyTime(applyTime timebase.HostTicks, isSeek bool) timebase.HostTicks {
	now := timebase.Now()
	floor := now.Add(timebase.HostTicks(safetyMargin.Nanoseconds()))
	candidate := applyTime
	if candidate == 0 || candidate.Sub(floor) < 0 {
		candidate = floor
	}
	if !s.running || s.tempo <= 0 {
		return candidate
	}
	if isSeek {
		return s.roundUpToGrid(candidate, sixteenthTicks)
	}
	return s.roundUpToGrid(candidate, 1)
}

// roundUpToGrid rounds candidate up to a tick timestamp on the sender's
// current tick grid, no earlier than the next uncommitted tick
// (nextTickTime). gridTicks of 1 means any tick boundary; 6 means the first
// such tick whose timeline position lies within half a tick of a 1/16-note
// grid point (so within 1/24 beat of it), per spec.md §5.
func (s *Sender) roundUpToGrid(candidate timebase.HostTicks, gridTicks int64) timebase.HostTicks {
	interval := s.tickInterval()
	if interval <= 0 {
		return candidate
	}
	origin := s.nextTickTime
	tickIndex := int64(0)
	if elapsed := candidate.Sub(origin); elapsed > 0 {
		tickIndex = int64(math.Ceil(float64(elapsed) / float64(interval)))
	}
	t := origin.Add(timebase.HostTicks(tickIndex * interval))
	for i := int64(1); i < gridTicks; i++ {
		seconds := float64(t.Sub(s.anchorTicks)) / float64(timebase.TicksPerSecond())
		sixteenths := float64(s.anchorBeat+timebase.SecondsToBeats(seconds, s.tempo)) * 4
		if math.Abs(sixteenths-math.Round(sixteenths)) <= 0.5/sixteenthTicks {
			break
		}
		t = t.Add(timebase.HostTicks(interval))
	}
	return t
}

// tickInterval returns the current inter-tick duration, in nanoseconds, at
// the sender's current tempo. Must be called with s.mu held.
func (s *Sender) tickInterval() int64 {
	if s.tempo <= 0 {
		return 0
	}
	seconds := 60.0 / (float64(s.tempo) * ticksPerBeat)
	return int64(seconds * float64(time.Second))
}

func (s *Sender) send(pl *midimsg.PacketList) error {
	if pl.Len() == 0 {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.transport.Send(pl)
}

func (s *Sender) publish() {
	s.snap.Store(&snapshot{
		running:     s.running,
		tempo:       s.tempo,
		anchorTicks: s.anchorTicks,
		anchorBeat:  s.anchorBeat,
	})
}

// TimelinePositionFor returns the sender's timeline position, in beats, at
// the given global timestamp. Lock-free; safe to call from a realtime
// thread.
func (s *Sender) TimelinePositionFor(t timebase.HostTicks) timebase.Beats {
	snap := s.snap.Load()
	if snap == nil || !snap.running || snap.tempo <= 0 {
		if snap == nil {
			return 0
		}
		return snap.anchorBeat
	}
	elapsed := timebase.HostTicks(t.Sub(snap.anchorTicks))
	return snap.anchorBeat + timebase.TicksToBeats(elapsed, snap.tempo)
}

// Started reports whether the transport is currently running. Lock-free;
// safe to call from a realtime thread.
func (s *Sender) Started() bool {
	snap := s.snap.Load()
	return snap != nil && snap.running
}

func (s *Sender) schedulerLoop() {
	defer close(s.doneCh)
	timer := time.NewTimer(minWakeInterval)
	defer timer.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.schedulerTick()
			timer.Reset(s.wakeInterval())
		}
	}
}

func (s *Sender) wakeInterval() time.Duration {
	s.mu.Lock()
	interval := s.tickInterval()
	s.mu.Unlock()
	if interval <= 0 {
		return minWakeInterval
	}
	wake := time.Duration(interval) / 4
	if wake < minWakeInterval {
		return minWakeInterval
	}
	return wake
}

// schedulerTick is the scheduler's periodic unit of work: it resolves any
// pending Start/seek operation whose apply time has entered the lookahead
// window, emits due Clock messages, and flushes the result through the
// transport. It never holds s.mu while calling Send, so control-thread
// calls are never blocked by a slow transport.
func (s *Sender) schedulerTick() {
	s.mu.Lock()
	now := timebase.Now()
	horizon := now.Add(timebase.HostTicks(lookahead.Nanoseconds()))
	pl := midimsg.NewPacketList()

	if s.start != nil && s.start.applyTime.Sub(horizon) <= 0 {
		op := s.start
		s.start = nil
		ts := op.applyTime
		if op.cueBeat != 0 {
			pl.Append(ts, midimsg.SongPosition(beatToSongPosition(op.cueBeat)))
			pl.Append(ts, midimsg.Continue())
		} else {
			pl.Append(ts, midimsg.Start())
		}
		s.anchorTicks = ts
		s.anchorBeat = op.cueBeat
		s.running = true
		s.state = StateRunning
		s.nextTickTime = ts
		s.tickOriginSet = true
	}

	if s.seek != nil && s.seek.applyTime.Sub(horizon) <= 0 {
		op := s.seek
		s.seek = nil
		pl.Append(op.applyTime, midimsg.SongPosition(beatToSongPosition(op.beat)))
		s.anchorTicks = op.applyTime
		s.anchorBeat = op.beat
		if s.running {
			s.state = StateRunning
		}
	}

	if s.running || s.sendWhileStopped {
		interval := s.tickInterval()
		if interval > 0 {
			if !s.tickOriginSet {
				s.nextTickTime = now
				s.tickOriginSet = true
			}
			for s.nextTickTime.Sub(horizon) <= 0 {
				ts := s.nextTickTime
				pl.Append(ts, midimsg.Clock())
				s.nextTickTime = ts.Add(timebase.HostTicks(interval))
			}
		}
	}

	s.publish()
	s.mu.Unlock()

	_ = s.send(pl)
}

// beatToSongPosition converts a beat count to a 14-bit Song Position
// Pointer value, in units of one sixteenth note (6 MIDI Clock messages),
// clamped to the wire format's range.
func beatToSongPosition(beat timebase.Beats) uint16 {
	pos := math.Round(float64(beat) * 4.0)
	if pos < 0 {
		pos = 0
	}
	if pos > 0x3FFF {
		pos = 0x3FFF
	}
	return uint16(pos)
}
