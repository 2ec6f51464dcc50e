package recordstore

import (
	"testing"
	"time"
)

func TestDateTimeTicksRoundTrip(t *testing.T) {
	want := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	ticks := DateTimeToTicks(want)
	got := TicksToDateTime(ticks)
	if !got.Equal(want) {
		t.Errorf("TicksToDateTime(DateTimeToTicks(%v)) = %v, want %v", want, got, want)
	}
}

func TestTimeSpanTicksRoundTrip(t *testing.T) {
	want := 90*time.Minute + 30*time.Second
	ticks := TimeSpanToTicks(want)
	got := TicksToTimeSpan(ticks)
	if got != want {
		t.Errorf("TicksToTimeSpan(TimeSpanToTicks(%v)) = %v, want %v", want, got, want)
	}
}

func TestDateTimeEpochIsYearOne(t *testing.T) {
	epoch := time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	if ticks := DateTimeToTicks(epoch); ticks != 0 {
		t.Errorf("DateTimeToTicks(0001-01-01) = %d, want 0", ticks)
	}
}
