package timeutil

import "time"

// Clock returns the current time. Services take a Clock so tests can pin it.
type Clock func() time.Time

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// Fixed returns a Clock that always reports t in UTC
func Fixed(t time.Time) Clock {
	t = t.UTC()
	return func() time.Time { return t }
}

// FromUnix converts provider epoch seconds to a UTC time. Zero means unset.
func FromUnix(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
