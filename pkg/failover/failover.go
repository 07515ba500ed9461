package failover

import (
	"time"
)

// Failover applies exponential backoff with a ceiling, and an optional hard
// retry cap, between launch attempts of a single server.
type Failover struct {
	Failures    int        `json:"failures"`
	FailureTime *time.Time `json:"failureTime,omitempty"`

	Delay    time.Duration `json:"delay"`
	MaxDelay time.Duration `json:"maxDelay"`
	MaxTries *int          `json:"maxTries,omitempty"`
}

// New creates a failover policy with the given base delay and ceiling and no
// retry cap.
func New(delay, maxDelay time.Duration) *Failover {
	return &Failover{Delay: delay, MaxDelay: maxDelay}
}

// CurrentDelay returns the backoff for the current failure count:
// zero before the first failure, then the base delay doubled per additional
// failure, capped at MaxDelay.
func (f *Failover) CurrentDelay() time.Duration {
	if f.Failures == 0 {
		return 0
	}

	delay := f.Delay
	for i := 1; i < f.Failures; i++ {
		delay *= 2
		// Doubling overflows well before any realistic cap; clamp early.
		if delay >= f.MaxDelay || delay < 0 {
			return f.MaxDelay
		}
	}
	if delay > f.MaxDelay {
		return f.MaxDelay
	}
	return delay
}

// DelayExpires returns the instant the current backoff window ends.
func (f *Failover) DelayExpires() time.Time {
	var failureTime time.Time
	if f.FailureTime != nil {
		failureTime = *f.FailureTime
	}
	return failureTime.Add(f.CurrentDelay())
}

// IsWaitingDelay reports whether the backoff window is still open at now.
func (f *Failover) IsWaitingDelay(now time.Time) bool {
	return now.Before(f.DelayExpires())
}

// IsMaxTriesExceeded reports whether the retry cap, if set, has been reached.
func (f *Failover) IsMaxTriesExceeded() bool {
	return f.MaxTries != nil && f.Failures >= *f.MaxTries
}

// RegisterFailure records one more failed attempt at now.
func (f *Failover) RegisterFailure(now time.Time) {
	f.Failures++
	t := now
	f.FailureTime = &t
}

// ResetFailures forgets all recorded failures. Called on a confirmed
// successful run.
func (f *Failover) ResetFailures() {
	f.Failures = 0
	f.FailureTime = nil
}
