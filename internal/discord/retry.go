package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds how often a connect is retried and how long to wait
// between attempts. Delays double from Initial up to Max.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the delay between retries.
	Max time.Duration
}

// DefaultRetryPolicy returns five retries starting at 500ms and capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, Initial: 500 * time.Millisecond, Max: 10 * time.Second}
}

// Delay returns the wait before retry number attempt (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Initial
	for range attempt {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return min(d, p.Max)
}

// Within returns p with MaxRetries lowered so the summed delays between
// attempts do not exceed budget.
func (p RetryPolicy) Within(budget time.Duration) RetryPolicy {
	var total time.Duration
	for n := range p.MaxRetries {
		total += p.Delay(n)
		if total > budget {
			p.MaxRetries = n
			break
		}
	}
	return p
}

// ConnectWithRetry calls [Session.Connect] until it succeeds, the retries
// are exhausted, or ctx is done. It never retries past p.MaxRetries.
func ConnectWithRetry(ctx context.Context, s *Session, p RetryPolicy) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err = s.Connect(ctx); err == nil {
			return nil
		}
		if attempt == p.MaxRetries {
			break
		}
		delay := p.Delay(attempt)
		slog.Warn("Discord connect attempt failed", "attempt", attempt+1, "retry_in", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("connect cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", p.MaxRetries+1, err)
}
