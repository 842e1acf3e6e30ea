package notify

import "testing"

func TestPushDrainFIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Push(Event{Kind: EventStart})
	q.Push(Event{Kind: EventStop})
	q.Push(Event{Kind: EventTempoChanged, Tempo: 120})

	events := q.Drain()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []EventKind{EventStart, EventStop, EventTempoChanged}
	for i, k := range want {
		if events[i].Kind != k {
			t.Errorf("event %d: kind %v, want %v", i, events[i].Kind, k)
		}
	}
}

func TestDrainEmptyReturnsNil(t *testing.T) {
	q := NewQueue()
	if got := q.Drain(); got != nil {
		t.Fatalf("expected nil from Drain on empty queue, got %v", got)
	}
}

func TestDrainResetsQueue(t *testing.T) {
	q := NewQueue()
	q.Push(Event{Kind: EventStart})
	_ = q.Drain()
	if got := q.Drain(); len(got) != 0 {
		t.Fatalf("expected empty drain after prior drain, got %v", got)
	}
}
