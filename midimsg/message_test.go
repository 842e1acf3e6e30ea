package midimsg

import "testing"

func TestBuildersAndKind(t *testing.T) {
	cases := []struct {
		name string
		m    Message
		want Kind
	}{
		{"clock", Clock(), KindClock},
		{"start", Start(), KindStart},
		{"continue", Continue(), KindContinue},
		{"stop", Stop(), KindStop},
		{"songposition", SongPosition(42), KindSongPosition},
		{"empty", Message{}, KindUnknown},
		{"truncated songposition", Message{StatusSongPosition, 1}, KindUnknown},
		{"unrecognized", Message{0x90, 0x3C, 0x40}, KindUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.m.Kind(); got != c.want {
				t.Errorf("Kind() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestSongPositionRoundTrip(t *testing.T) {
	for _, pos := range []uint16{0, 1, 16, 16383, 20000} {
		m := SongPosition(pos)
		want := pos & 0x3FFF
		if got := m.SongPositionValue(); got != want {
			t.Errorf("SongPosition(%d).SongPositionValue() = %d, want %d", pos, got, want)
		}
	}
}

func TestSongPositionValuePanicsOnNonSongPosition(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling SongPositionValue on a Clock message")
		}
	}()
	Clock().SongPositionValue()
}
