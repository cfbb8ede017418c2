package weather

import "time"

// DefaultIntervalMinutes is the batch cadence.
const DefaultIntervalMinutes = 10

// FloorTime truncates t (in UTC) to the start of its interval bucket.
// Seconds and sub-second components are always zeroed.
func FloorTime(t time.Time, intervalMinutes int) time.Time {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}
	return t.UTC().Truncate(time.Duration(intervalMinutes) * time.Minute)
}
