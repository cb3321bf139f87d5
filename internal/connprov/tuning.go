package connprov

import (
	"context"
	"time"
)

// RetryPolicy is a fixed-delay retry budget. Retries counts calls after the
// first, so a policy makes at most Retries+1 calls.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

// Tuning holds the empirically chosen transport constants.
type Tuning struct {
	// Refused covers ECONNREFUSED seen under load on some stacks.
	Refused RetryPolicy
	// Resolve covers transient resolver failures.
	Resolve RetryPolicy
	// IOTimeout bounds each chunk of a Timed transfer.
	IOTimeout time.Duration
	// StopWait bounds how long Stop waits for the accept loop.
	StopWait time.Duration
}

// DefaultTuning returns the stock constants.
func DefaultTuning() Tuning {
	return Tuning{
		Refused:   RetryPolicy{Retries: 5, Delay: 100 * time.Millisecond},
		Resolve:   RetryPolicy{Retries: 20, Delay: time.Second},
		IOTimeout: 120 * time.Second,
		StopWait:  10 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultTuning.
func (t Tuning) WithDefaults() Tuning {
	d := DefaultTuning()
	if t.Refused.Retries <= 0 {
		t.Refused.Retries = d.Refused.Retries
	}
	if t.Refused.Delay <= 0 {
		t.Refused.Delay = d.Refused.Delay
	}
	if t.Resolve.Retries <= 0 {
		t.Resolve.Retries = d.Resolve.Retries
	}
	if t.Resolve.Delay <= 0 {
		t.Resolve.Delay = d.Resolve.Delay
	}
	if t.IOTimeout <= 0 {
		t.IOTimeout = d.IOTimeout
	}
	if t.StopWait <= 0 {
		t.StopWait = d.StopWait
	}
	return t
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. The last error is returned.
func Retry(ctx context.Context, p RetryPolicy, retryable func(error) bool, fn func(attempt int) error) error {
	attempts := 1 + max(p.Retries, 0)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil || !retryable(err) || attempt == attempts {
			return err
		}
		if serr := Sleep(ctx, p.Delay); serr != nil {
			return err
		}
	}
	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
