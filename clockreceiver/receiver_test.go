package clockreceiver

import (
	"testing"
	"time"

	"github.com/michaeltyson/TheSpectacularSyncEngine/midimsg"
	"github.com/michaeltyson/TheSpectacularSyncEngine/notify"
	"github.com/michaeltyson/TheSpectacularSyncEngine/timebase"
)

func clocksAt(startTicks timebase.HostTicks, interval timebase.HostTicks, n int) *midimsg.PacketList {
	pl := midimsg.NewPacketList()
	ts := startTicks
	for i := 0; i < n; i++ {
		pl.Append(ts, midimsg.Clock())
		ts += interval
	}
	return pl
}

func TestIdleUntilFirstClock(t *testing.T) {
	q := notify.NewQueue()
	r := New(q)
	defer r.Close()

	if r.IsReceivingTempo() {
		t.Fatal("expected IsReceivingTempo() false before any Clock messages")
	}
	if r.IsClockRunning() {
		t.Fatal("expected IsClockRunning() false before any Clock messages")
	}
}

func TestStartAtZeroThenRunning(t *testing.T) {
	q := notify.NewQueue()
	r := New(q)
	defer r.Close()

	interval := timebase.HostTicks(timebase.SecondsToTicks(60.0 / (120.0 * 24.0)))
	r.ReceivePacketList(clocksAt(1000, interval, 30))

	if !r.IsReceivingTempo() {
		t.Fatal("expected IsReceivingTempo() true after a run of Clock messages")
	}

	pl := midimsg.NewPacketList()
	pl.Append(timebase.HostTicks(1000)+interval*30, midimsg.Start())
	pl.Append(timebase.HostTicks(1000)+interval*30+1, midimsg.Clock())
	r.ReceivePacketList(pl)

	if !r.IsClockRunning() {
		t.Fatal("expected IsClockRunning() true once Start has committed on a following Clock")
	}

	events := q.Drain()
	sawStart := false
	for _, e := range events {
		if e.Kind == notify.EventStart {
			sawStart = true
		}
	}
	if !sawStart {
		t.Fatal("expected an EventStart notification")
	}
}

func TestSongPositionThenContinue(t *testing.T) {
	q := notify.NewQueue()
	r := New(q)
	defer r.Close()

	interval := timebase.HostTicks(timebase.SecondsToTicks(60.0 / (100.0 * 24.0)))
	r.ReceivePacketList(clocksAt(0, interval, 30))

	pl := midimsg.NewPacketList()
	ts := interval * 30
	pl.Append(ts, midimsg.SongPosition(16)) // beat 4
	pl.Append(ts, midimsg.Continue())
	pl.Append(ts+1, midimsg.Clock())
	r.ReceivePacketList(pl)

	pos := r.TimelinePositionFor(ts + 1)
	if diff := float64(pos) - 4.0; diff < -0.01 || diff > 0.01 {
		t.Fatalf("expected timeline position ~4, got %v", pos)
	}
}

func TestLiveSeekWhileRunning(t *testing.T) {
	q := notify.NewQueue()
	r := New(q)
	defer r.Close()

	interval := timebase.HostTicks(timebase.SecondsToTicks(60.0 / (120.0 * 24.0)))
	r.ReceivePacketList(clocksAt(0, interval, 30))

	startTS := interval * 30
	startPL := midimsg.NewPacketList()
	startPL.Append(startTS, midimsg.Start())
	startPL.Append(startTS+1, midimsg.Clock())
	r.ReceivePacketList(startPL)

	if !r.IsClockRunning() {
		t.Fatal("expected IsClockRunning() true before the live seek")
	}

	seekTS := startTS + interval*10
	seekPL := midimsg.NewPacketList()
	seekPL.Append(seekTS, midimsg.SongPosition(8)) // beat 2.0
	seekPL.Append(seekTS, midimsg.Clock())
	r.ReceivePacketList(seekPL)

	pos := r.TimelinePositionFor(seekTS)
	if diff := float64(pos) - 2.0; diff < -1e-9 || diff > 1e-9 {
		t.Fatalf("expected timeline position 2.0 at seek time, got %v", pos)
	}

	laterTS := seekTS + interval
	if later := r.TimelinePositionFor(laterTS); later <= pos {
		t.Fatalf("expected position to keep advancing after the seek, got %v after %v", later, pos)
	}
}

func TestTimelinePositionForMonotonicWhileRunning(t *testing.T) {
	q := notify.NewQueue()
	r := New(q)
	defer r.Close()

	interval := timebase.HostTicks(timebase.SecondsToTicks(60.0 / (120.0 * 24.0)))
	r.ReceivePacketList(clocksAt(0, interval, 30))

	startTS := interval * 30
	startPL := midimsg.NewPacketList()
	startPL.Append(startTS, midimsg.Start())
	startPL.Append(startTS+1, midimsg.Clock())
	r.ReceivePacketList(startPL)

	prev := r.TimelinePositionFor(startTS + 1)
	ts := startTS + 1
	for i := 0; i < 60; i++ {
		ts += interval
		pl := midimsg.NewPacketList()
		pl.Append(ts, midimsg.Clock())
		r.ReceivePacketList(pl)

		for sample := ts; sample < ts+interval; sample += interval / 4 {
			cur := r.TimelinePositionFor(sample)
			if cur < prev {
				t.Fatalf("timeline position decreased: %v then %v at %v", prev, cur, sample)
			}
			prev = cur
		}
	}
}

func TestWatchdogExpiresToIdle(t *testing.T) {
	q := notify.NewQueue()
	r := New(q)
	defer r.Close()

	// Feed a very fast clock so the watchdog deadline is short, then stop
	// feeding and wait past it.
	interval := timebase.HostTicks(timebase.SecondsToTicks(60.0 / (300.0 * 24.0)))
	r.ReceivePacketList(clocksAt(timebase.Now(), interval, 10))

	if !r.IsReceivingTempo() {
		t.Fatal("expected IsReceivingTempo() true after initial clocks")
	}

	time.Sleep(250 * time.Millisecond)

	if r.IsReceivingTempo() {
		t.Fatal("expected watchdog to have expired the receiver back to Idle")
	}
}

func TestResetClearsState(t *testing.T) {
	q := notify.NewQueue()
	r := New(q)
	defer r.Close()

	interval := timebase.HostTicks(timebase.SecondsToTicks(60.0 / (120.0 * 24.0)))
	r.ReceivePacketList(clocksAt(0, interval, 30))
	if !r.IsReceivingTempo() {
		t.Fatal("expected IsReceivingTempo() true before Reset")
	}

	r.Reset()

	if r.IsReceivingTempo() {
		t.Fatal("expected IsReceivingTempo() false after Reset")
	}
	if r.Tempo() != 0 {
		t.Fatalf("expected Tempo() 0 after Reset, got %v", r.Tempo())
	}
}
