package midimsg

import (
	"testing"

	"github.com/michaeltyson/TheSpectacularSyncEngine/timebase"
)

func TestPacketListBuildParseRoundTrip(t *testing.T) {
	pl := NewPacketList()
	pl.Append(100, Start())
	pl.Append(124, Clock())
	pl.Append(148, SongPosition(16))

	data := pl.Build()
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Len() != pl.Len() {
		t.Fatalf("expected %d entries, got %d", pl.Len(), parsed.Len())
	}
	for i, e := range parsed.Entries() {
		want := pl.Entries()[i]
		if e.Timestamp != want.Timestamp {
			t.Errorf("entry %d: timestamp %d, want %d", i, e.Timestamp, want.Timestamp)
		}
		if string(e.Message.Bytes()) != string(want.Message.Bytes()) {
			t.Errorf("entry %d: message %v, want %v", i, e.Message, want.Message)
		}
	}
}

func TestParseRejectsTruncatedData(t *testing.T) {
	pl := NewPacketList()
	pl.Append(timebase.HostTicks(1), Clock())
	data := pl.Build()

	if _, err := Parse(data[:len(data)-1]); err == nil {
		t.Fatal("expected error parsing truncated body")
	}
	if _, err := Parse(data[:4]); err == nil {
		t.Fatal("expected error parsing truncated header")
	}
}

func TestParseEmpty(t *testing.T) {
	parsed, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if parsed.Len() != 0 {
		t.Fatalf("expected 0 entries, got %d", parsed.Len())
	}
}
