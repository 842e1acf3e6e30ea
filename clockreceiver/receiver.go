// Package clockreceiver implements the slave side of the sync engine: an
// online filter that turns incoming MIDI realtime messages into a stable
// tempo estimate and a timeline-position mapping, with automatic adaptive
// precision and timeout-based state transitions.
//
// Grounded on SEMIDIClockReceiver.h (original_source/TheSpectacularSyncEngine)
// for its public surface and notification names, and on the teacher's
// pkg/vm/audio/timer.go for the start/stop goroutine-with-channels shape
// used by the watchdog below.
package clockreceiver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaeltyson/TheSpectacularSyncEngine/midimsg"
	"github.com/michaeltyson/TheSpectacularSyncEngine/notify"
	"github.com/michaeltyson/TheSpectacularSyncEngine/tempofilter"
	"github.com/michaeltyson/TheSpectacularSyncEngine/timebase"
)

// minWatchdogInterval is the floor on the watchdog deadline, per spec.md
// §3: max(2×expected_tick_interval, 100ms).
const minWatchdogInterval = 100 * time.Millisecond

// watchdogPollInterval is how often the background watchdog goroutine
// checks for timeout. It is driven by real time, independent of whether
// any more packets ever arrive.
const watchdogPollInterval = 10 * time.Millisecond

// Receiver consumes MIDI realtime messages and derives tempo and timeline
// position from them. ReceivePacketList is safe to call from a
// high-priority, non-blocking MIDI I/O thread; Tempo, IsClockRunning,
// IsReceivingTempo, Error and TimelinePositionFor are safe to call from a
// realtime audio thread without blocking.
type Receiver struct {
	// mu guards everything below except snap, which is published
	// lock-free for realtime readers.
	mu     sync.Mutex
	filter *tempofilter.Filter
	queue  *notify.Queue

	state       State
	anchor      timelineAnchor
	currentTempo timebase.Tempo
	currentError float64

	pendingTransportStart bool
	pendingStartBeat      timebase.Beats
	cuedBeat              *timebase.Beats
	liveSeekBeat          *timebase.Beats

	watchdogDeadline timebase.HostTicks
	watchdogArmed    bool
	lastClockTime    timebase.HostTicks

	snap atomic.Pointer[snapshot]

	stopWatchdog chan struct{}
	watchdogDone chan struct{}
}

// New creates a Receiver that publishes notifications to queue. queue may
// be nil if the caller does not care about notifications.
func New(queue *notify.Queue) *Receiver {
	if queue == nil {
		queue = notify.NewQueue()
	}
	r := &Receiver{queue: queue}
	r.filter = tempofilter.New(tempofilter.DefaultWindowSize, r.onTempoPublish)
	r.publish()
	r.startWatchdog()
	return r
}

// Close stops the receiver's background watchdog goroutine. Call this when
// the receiver is no longer needed.
func (r *Receiver) Close() {
	r.mu.Lock()
	stop := r.stopWatchdog
	done := r.watchdogDone
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (r *Receiver) startWatchdog() {
	r.stopWatchdog = make(chan struct{})
	r.watchdogDone = make(chan struct{})
	go r.watchdogLoop(r.stopWatchdog, r.watchdogDone)
}

func (r *Receiver) watchdogLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(watchdogPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.checkWatchdog()
		}
	}
}

func (r *Receiver) checkWatchdog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.watchdogArmed {
		return
	}
	if timebase.Now() < r.watchdogDeadline {
		return
	}
	r.watchdogArmed = false
	r.expireLocked()
}

func (r *Receiver) expireLocked() {
	wasRunning := r.state == StateRunning
	r.state = StateIdle
	r.pendingTransportStart = false
	r.cuedBeat = nil
	r.liveSeekBeat = nil
	if wasRunning {
		r.queue.Push(notify.Event{Kind: notify.EventStop})
	}
	r.queue.Push(notify.Event{Kind: notify.EventTempoSyncStop})
	r.publish()
}

// Reset returns the receiver to Idle, clears the tempo filter's window,
// and drops the timeline anchor. Call this when the source endpoint
// changes. It is idempotent: calling Reset on an already-Idle receiver
// has no further effect.
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter.Reset()
	r.state = StateIdle
	r.anchor = timelineAnchor{}
	r.currentTempo = 0
	r.currentError = 0
	r.pendingTransportStart = false
	r.cuedBeat = nil
	r.liveSeekBeat = nil
	r.watchdogArmed = false
	r.publish()
}

// ReceivePacketList dispatches each message in packets, in timestamp
// order, to the receiver's state machine. It is non-blocking: any error
// (malformed or unrecognized bytes) is recovered locally, never returned
// or propagated, per spec.md §7.
func (r *Receiver) ReceivePacketList(packets *midimsg.PacketList) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range packets.Entries() {
		r.handleMessage(e.Timestamp, e.Message)
	}
}

func (r *Receiver) handleMessage(ts timebase.HostTicks, m midimsg.Message) {
	switch m.Kind() {
	case midimsg.KindClock:
		r.handleClock(ts)
	case midimsg.KindStart:
		r.handleStart()
	case midimsg.KindContinue:
		r.handleContinue()
	case midimsg.KindStop:
		r.handleStop()
	case midimsg.KindSongPosition:
		r.handleSongPosition(m.SongPositionValue())
	default:
		// Unknown/non-realtime bytes are ignored, per spec.md §4.4.
	}
}

func (r *Receiver) handleClock(ts timebase.HostTicks) {
	r.lastClockTime = ts
	wasIdle := r.state == StateIdle
	r.filter.Observe(ts)
	if wasIdle {
		r.state = StateReceivingTempo
		r.queue.Push(notify.Event{Kind: notify.EventTempoSyncStart, Timestamp: uint64(ts)})
	}

	switch {
	case r.state == StateRunning && r.liveSeekBeat != nil:
		r.anchor = timelineAnchor{ticks: ts, beat: *r.liveSeekBeat}
		r.liveSeekBeat = nil
		r.queue.Push(notify.Event{Kind: notify.EventLiveSeek, Timestamp: uint64(ts), Position: float64(r.anchor.beat)})
	case r.pendingTransportStart:
		r.anchor = timelineAnchor{ticks: ts, beat: r.pendingStartBeat}
		r.pendingTransportStart = false
		r.state = StateRunning
		r.queue.Push(notify.Event{Kind: notify.EventStart, Timestamp: uint64(ts)})
	case r.state == StateRunning:
		r.anchor = timelineAnchor{ticks: ts, beat: r.anchor.beat + timebase.Beats(1.0/24.0)}
	}

	r.armWatchdog(ts)
	r.publish()
}

func (r *Receiver) handleStart() {
	if r.state == StateIdle {
		// Unexpected: no tempo established yet. No-op, per spec.md §7
		// (UnexpectedMessage).
		return
	}
	beat := timebase.Beats(0)
	if r.cuedBeat != nil {
		beat = *r.cuedBeat
		r.cuedBeat = nil
	}
	r.pendingStartBeat = beat
	r.pendingTransportStart = true
}

func (r *Receiver) handleContinue() {
	if r.state == StateIdle {
		return
	}
	beat := r.anchor.beat
	if r.cuedBeat != nil {
		beat = *r.cuedBeat
		r.cuedBeat = nil
	}
	r.pendingStartBeat = beat
	r.pendingTransportStart = true
}

func (r *Receiver) handleStop() {
	if r.state != StateRunning {
		return
	}
	r.state = StateReceivingTempo
	r.queue.Push(notify.Event{Kind: notify.EventStop, Timestamp: uint64(r.lastClockTime)})
	r.publish()
}

func (r *Receiver) handleSongPosition(pos14 uint16) {
	beat := timebase.Beats(float64(pos14) / 4.0)
	if r.state == StateRunning {
		r.liveSeekBeat = &beat
	} else {
		r.cuedBeat = &beat
	}
}

func (r *Receiver) armWatchdog(ts timebase.HostTicks) {
	interval := minWatchdogInterval
	if r.currentTempo > 0 {
		expected := time.Duration(60.0 / (float64(r.currentTempo) * 24.0) * float64(time.Second))
		if 2*expected > interval {
			interval = 2 * expected
		}
	}
	r.watchdogDeadline = ts + timebase.HostTicks(interval.Nanoseconds())
	r.watchdogArmed = true
}

// onTempoPublish is the tempo filter's publish hook; it is invoked
// synchronously from within handleClock, which already holds r.mu.
func (r *Receiver) onTempoPublish(tempo timebase.Tempo, errorPct float64) {
	r.currentTempo = tempo
	r.currentError = errorPct
	r.queue.Push(notify.Event{Kind: notify.EventTempoChanged, Timestamp: uint64(r.lastClockTime), Tempo: float64(tempo)})
}

func (r *Receiver) publish() {
	s := snapshot{
		state:       r.state,
		tempo:       r.currentTempo,
		errorPct:    r.currentError,
		anchorTicks: r.anchor.ticks,
		anchorBeat:  r.anchor.beat,
	}
	r.snap.Store(&s)
}

// IsReceivingTempo reports whether Clock messages are currently being
// actively synchronized. Lock-free; safe to call from a realtime thread.
func (r *Receiver) IsReceivingTempo() bool {
	s := r.snap.Load()
	return s != nil && s.state != StateIdle
}

// IsClockRunning reports whether the remote transport is running and the
// timeline is advancing. Lock-free; safe to call from a realtime thread.
func (r *Receiver) IsClockRunning() bool {
	s := r.snap.Load()
	return s != nil && s.state == StateRunning
}

// Tempo returns the current remote tempo, in beats per minute. Lock-free;
// safe to call from a realtime thread.
func (r *Receiver) Tempo() timebase.Tempo {
	s := r.snap.Load()
	if s == nil {
		return 0
	}
	return s.tempo
}

// Error returns the published relative standard deviation of the incoming
// clock signal, as a percentage. Lock-free; safe to call from a realtime
// thread.
func (r *Receiver) Error() float64 {
	s := r.snap.Load()
	if s == nil {
		return 0
	}
	return s.errorPct
}

// TimelinePositionFor returns the remote timeline position, in beats, for
// the given global timestamp. While stopped, this returns the frozen
// position at the last anchor. Lock-free; safe to call from a realtime
// thread.
func (r *Receiver) TimelinePositionFor(t timebase.HostTicks) timebase.Beats {
	s := r.snap.Load()
	if s == nil {
		return 0
	}
	if s.state != StateRunning || s.tempo <= 0 {
		return s.anchorBeat
	}
	elapsed := timebase.HostTicks(t.Sub(s.anchorTicks))
	return s.anchorBeat + timebase.TicksToBeats(elapsed, s.tempo)
}
