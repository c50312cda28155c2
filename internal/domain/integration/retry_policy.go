package integration

import "time"

// RetryPolicy decides when a failed record becomes eligible for another sync
type RetryPolicy interface {
	// ShouldRetry reports whether the failed record may be retried at now
	ShouldRetry(record *SyncRecord, now time.Time) bool
	// NextAttemptAt returns when the record becomes eligible; zero when it already is
	NextAttemptAt(record *SyncRecord) time.Time
}

// DefaultRetryWindow is the flat retry window for failed records
const DefaultRetryWindow = 15 * time.Minute

// FlatRetryPolicy allows a retry once Window has elapsed since the last attempt
type FlatRetryPolicy struct {
	Window time.Duration
}

// NewFlatRetryPolicy creates a flat policy; non-positive windows use DefaultRetryWindow
func NewFlatRetryPolicy(window time.Duration) FlatRetryPolicy {
	if window <= 0 {
		window = DefaultRetryWindow
	}
	return FlatRetryPolicy{Window: window}
}

// ShouldRetry implements RetryPolicy
func (p FlatRetryPolicy) ShouldRetry(record *SyncRecord, now time.Time) bool {
	if record.LastSyncAttempt == nil {
		return true
	}
	return now.Sub(*record.LastSyncAttempt) >= p.Window
}

// NextAttemptAt implements RetryPolicy
func (p FlatRetryPolicy) NextAttemptAt(record *SyncRecord) time.Time {
	if record.LastSyncAttempt == nil {
		return time.Time{}
	}
	return record.LastSyncAttempt.Add(p.Window)
}

// DefaultBackoffSchedule is the delay after the 1st, 2nd, ... consecutive failure
var DefaultBackoffSchedule = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	45 * time.Minute,
	120 * time.Minute,
	360 * time.Minute,
	1440 * time.Minute,
}

// ExponentialRetryPolicy waits Schedule[FailureCount-1] after the last attempt;
// failure counts beyond the schedule keep using its last step
type ExponentialRetryPolicy struct {
	Schedule []time.Duration
}

// NewExponentialRetryPolicy creates an exponential policy; an empty schedule uses DefaultBackoffSchedule
func NewExponentialRetryPolicy(schedule []time.Duration) ExponentialRetryPolicy {
	if len(schedule) == 0 {
		schedule = DefaultBackoffSchedule
	}
	return ExponentialRetryPolicy{Schedule: schedule}
}

// Delay returns the wait after failureCount consecutive failures
func (p ExponentialRetryPolicy) Delay(failureCount int) time.Duration {
	if failureCount <= 0 {
		return 0
	}
	idx := failureCount - 1
	if idx >= len(p.Schedule) {
		idx = len(p.Schedule) - 1
	}
	return p.Schedule[idx]
}

// ShouldRetry implements RetryPolicy
func (p ExponentialRetryPolicy) ShouldRetry(record *SyncRecord, now time.Time) bool {
	if record.LastSyncAttempt == nil {
		return true
	}
	return now.Sub(*record.LastSyncAttempt) >= p.Delay(record.FailureCount)
}

// NextAttemptAt implements RetryPolicy
func (p ExponentialRetryPolicy) NextAttemptAt(record *SyncRecord) time.Time {
	if record.LastSyncAttempt == nil {
		return time.Time{}
	}
	return record.LastSyncAttempt.Add(p.Delay(record.FailureCount))
}

var (
	_ RetryPolicy = FlatRetryPolicy{}
	_ RetryPolicy = ExponentialRetryPolicy{}
)
