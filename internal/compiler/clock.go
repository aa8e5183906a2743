package compiler

import "time"

// Clock supplies the wall-clock time used to evaluate NOW() and
// relative-interval cutoffs at compile time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
//
// Thread-safety: SystemClock is stateless and safe for concurrent use.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
