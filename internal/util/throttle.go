package util

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Throttled forwards log lines to a log function at most at the limiter's
// rate. Suppressed lines are counted and reported with the next line that
// gets through. Safe for concurrent use.
type Throttled struct {
	limiter    *rate.Limiter
	log        func(format string, args ...interface{})
	suppressed atomic.Int64
}

// NewThrottled allows burst lines immediately, then one line per interval.
func NewThrottled(log func(format string, args ...interface{}), interval time.Duration, burst int) *Throttled {
	return &Throttled{
		limiter: rate.NewLimiter(rate.Every(interval), burst),
		log:     log,
	}
}

// Printf logs the line if the limiter allows it. It returns false when the
// line was suppressed.
func (t *Throttled) Printf(format string, args ...interface{}) bool {
	if !t.limiter.Allow() {
		t.suppressed.Add(1)
		return false
	}
	if n := t.suppressed.Swap(0); n > 0 {
		t.log(format+" (%d similar suppressed)", append(args, n)...)
		return true
	}
	t.log(format, args...)
	return true
}
