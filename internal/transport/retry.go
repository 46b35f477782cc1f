package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/evidenceworks/reqforms/internal/config"
)

// Policy is the transport retry policy: a bounded number of attempts with a
// doubling delay, except that server-data rejections are never retried and
// rate limiting honors the server-suggested interval when one is given.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	RateLimitDelay time.Duration
}

// PolicyFromConfig builds a retry policy from configuration.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:    cfg.MaxAttempts,
		BaseDelay:      time.Duration(cfg.BaseDelay),
		RateLimitDelay: time.Duration(cfg.RateLimitDelay),
	}
}

// WithRetry wraps a transport with the retry policy.
func WithRetry(next Transport, p Policy) Transport {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.RateLimitDelay <= 0 {
		p.RateLimitDelay = 5 * time.Second
	}
	return &retryTransport{next: next, policy: p}
}

type retryTransport struct {
	next   Transport
	policy Policy
}

// Send attempts delivery, retrying retryable failures per the policy.
func (t *retryTransport) Send(ctx context.Context, sub *Submission) error {
	b := newPolicyBackoff(t.policy)
	attempt := 0

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := t.next.Send(ctx, sub)
		if err == nil {
			return nil
		}

		var terr *Error
		if errors.As(err, &terr) {
			if !terr.Retryable() {
				return err
			}
			b.observe(terr)
		}

		slog.Warn("transport attempt failed",
			"component", "transport",
			"attempt", attempt,
			"submission", sub.ID,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	return err
}

// policyBackoff implements retry.Backoff with the doubling schedule, capped
// at MaxAttempts total attempts, substituting the server-suggested interval
// after a rate-limit response.
type policyBackoff struct {
	mu       sync.Mutex
	policy   Policy
	retries  int
	override time.Duration
}

func newPolicyBackoff(p Policy) *policyBackoff {
	return &policyBackoff{policy: p}
}

// observe records a failed attempt's classification before the next delay is
// computed.
func (b *policyBackoff) observe(terr *Error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if terr.Kind == KindRateLimited {
		if terr.RetryAfter > 0 {
			b.override = terr.RetryAfter
		} else {
			b.override = b.policy.RateLimitDelay
		}
	}
}

// Next returns the delay before the next attempt, or stop once the attempt
// budget is spent.
func (b *policyBackoff) Next() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.retries++
	if b.retries >= b.policy.MaxAttempts {
		return 0, true
	}

	if b.override > 0 {
		d := b.override
		b.override = 0
		return d, false
	}

	d := b.policy.BaseDelay
	for i := 1; i < b.retries; i++ {
		d *= 2
	}
	return d, false
}
