package oracle

import (
	"context"
	"time"
)

const (
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"

	DefaultBaseDelay = 5 * time.Second
)

// Policy decides how often and how long to wait between oracle attempts.
// The caller drives the loop; Policy only answers questions.
type Policy struct {
	MaxRetries int
	// Delay returns the wait before retry n, starting at 1.
	Delay func(retry int) time.Duration
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy uses delays when given (the last entry repeats), otherwise
// base*n for linear or base*2^(n-1) for exponential backoff.
func NewPolicy(maxRetries int, backoff string, base time.Duration, delays []time.Duration) Policy {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	explicit := append([]time.Duration(nil), delays...)

	delay := func(retry int) time.Duration {
		if retry < 1 {
			retry = 1
		}
		if len(explicit) > 0 {
			if retry <= len(explicit) {
				return explicit[retry-1]
			}
			return explicit[len(explicit)-1]
		}
		if backoff == BackoffExponential {
			return base * time.Duration(1<<uint(retry-1))
		}
		return base * time.Duration(retry)
	}

	return Policy{MaxRetries: maxRetries, Delay: delay, Sleep: SleepContext}
}

// ZeroDelay retries immediately.
func ZeroDelay(maxRetries int) Policy {
	return Policy{
		MaxRetries: maxRetries,
		Delay:      func(int) time.Duration { return 0 },
		Sleep:      func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}
}

// Attempts is the total number of calls including the first.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Wait blocks before retry n.
func (p Policy) Wait(ctx context.Context, retry int) error {
	d := time.Duration(0)
	if p.Delay != nil {
		d = p.Delay(retry)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	return sleep(ctx, d)
}

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
