// Tick conversions for the DateTime and TimeSpan scalar kinds.
//
// Spec §3 defines both as "64-bit tick counts" without naming the epoch or
// tick resolution (an Open Question left to the implementer, per spec §9).
// This module adopts the common systems convention of a tick being 100ns and
// DateTime ticks counting from 0001-01-01 rather than the Unix epoch, so a
// tick value round-trips predictably regardless of which process (or
// language) wrote it. TimeSpan has no epoch; its ticks are a plain duration.
package recordstore

import "time"

// TicksPerSecond is the tick resolution: one tick is 100 nanoseconds.
const TicksPerSecond = 10_000_000

// ticksFromUnixEpoch is the number of 100ns ticks between 0001-01-01T00:00:00Z
// and the Unix epoch (1970-01-01T00:00:00Z).
const ticksFromUnixEpoch = 621_355_968_000_000_000

// DateTimeToTicks converts t to ticks since 0001-01-01.
func DateTimeToTicks(t time.Time) int64 {
	t = t.UTC()
	return t.Unix()*TicksPerSecond + int64(t.Nanosecond())/100 + ticksFromUnixEpoch
}

// TicksToDateTime converts ticks since 0001-01-01 back to a time.Time.
func TicksToDateTime(ticks int64) time.Time {
	rel := ticks - ticksFromUnixEpoch
	return time.Unix(rel/TicksPerSecond, (rel%TicksPerSecond)*100).UTC()
}

// TimeSpanToTicks converts a duration to ticks (no epoch, just scale).
func TimeSpanToTicks(d time.Duration) int64 {
	return int64(d) / 100
}

// TicksToTimeSpan converts ticks back to a duration.
func TicksToTimeSpan(ticks int64) time.Duration {
	return time.Duration(ticks * 100)
}
