// Package clock is the wall clock shared by the registry, ledger, waterfall
// and payout dispatcher
package clock

import "time"

// SystemClock reads the system time. Every timestamp it hands out is in UTC,
// the zone claims, gestures and settlements are persisted in.
type SystemClock struct{}

// After waits for d on the system timer
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Now returns the current time in UTC
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
