package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedTransport fails with each queued error in turn, then succeeds.
type scriptedTransport struct {
	errs  []error
	calls int
}

func (t *scriptedTransport) Send(context.Context, *Submission) error {
	t.calls++
	if len(t.errs) == 0 {
		return nil
	}
	err := t.errs[0]
	t.errs = t.errs[1:]
	return err
}

func testSub() *Submission {
	return &Submission{ID: "01TEST", RequestType: "analysis"}
}

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, RateLimitDelay: 2 * time.Millisecond}
}

func TestRetry_ServerRejectionNotRetried(t *testing.T) {
	next := &scriptedTransport{errs: []error{
		&Error{Kind: KindServerRejected, Status: 422, Err: errors.New("bad data")},
	}}

	err := WithRetry(next, fastPolicy()).Send(context.Background(), testSub())

	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != KindServerRejected {
		t.Fatalf("Send = %v, want server rejection", err)
	}
	if next.calls != 1 {
		t.Errorf("attempts = %d, want exactly 1 for a rejection", next.calls)
	}
}

func TestRetry_TransientFailureRetried(t *testing.T) {
	next := &scriptedTransport{errs: []error{
		&Error{Kind: KindTimeout, Err: errors.New("deadline")},
		&Error{Kind: KindOffline, Err: errors.New("refused")},
	}}

	if err := WithRetry(next, fastPolicy()).Send(context.Background(), testSub()); err != nil {
		t.Fatalf("Send = %v, want success on third attempt", err)
	}
	if next.calls != 3 {
		t.Errorf("attempts = %d, want 3", next.calls)
	}
}

func TestRetry_AttemptBudgetExhausted(t *testing.T) {
	next := &scriptedTransport{errs: []error{
		&Error{Kind: KindTimeout, Err: errors.New("deadline")},
		&Error{Kind: KindTimeout, Err: errors.New("deadline")},
		&Error{Kind: KindTimeout, Err: errors.New("deadline")},
		&Error{Kind: KindTimeout, Err: errors.New("deadline")},
	}}

	err := WithRetry(next, fastPolicy()).Send(context.Background(), testSub())

	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != KindTimeout {
		t.Fatalf("Send = %v, want the final timeout", err)
	}
	if next.calls != 3 {
		t.Errorf("attempts = %d, want the 3-attempt budget", next.calls)
	}
}

func TestRetry_NonTransportErrorRetried(t *testing.T) {
	next := &scriptedTransport{errs: []error{errors.New("plain failure")}}

	if err := WithRetry(next, fastPolicy()).Send(context.Background(), testSub()); err != nil {
		t.Fatalf("Send = %v", err)
	}
	if next.calls != 2 {
		t.Errorf("attempts = %d, want 2", next.calls)
	}
}

func TestPolicyBackoff_DoublingDelays(t *testing.T) {
	b := newPolicyBackoff(Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond})

	var delays []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		delays = append(delays, d)
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
		if i > 0 && delays[i] <= delays[i-1] {
			t.Errorf("delay %d not strictly increasing: %v", i, delays)
		}
	}
}

func TestPolicyBackoff_RateLimitOverride(t *testing.T) {
	b := newPolicyBackoff(Policy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, RateLimitDelay: 5 * time.Second})

	b.observe(&Error{Kind: KindRateLimited, RetryAfter: 7 * time.Second})
	d, stop := b.Next()
	if stop || d != 7*time.Second {
		t.Errorf("overridden delay = %v, %v; want 7s", d, stop)
	}

	// The override is consumed; the schedule resumes where it left off.
	d, stop = b.Next()
	if stop || d != 200*time.Millisecond {
		t.Errorf("post-override delay = %v, %v; want 200ms", d, stop)
	}
}

func TestPolicyBackoff_RateLimitFallbackDelay(t *testing.T) {
	b := newPolicyBackoff(Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, RateLimitDelay: 5 * time.Second})

	// No server-suggested interval: the configured rate-limit delay applies.
	b.observe(&Error{Kind: KindRateLimited})
	d, stop := b.Next()
	if stop || d != 5*time.Second {
		t.Errorf("fallback delay = %v, %v; want 5s", d, stop)
	}
}

func TestWithRetry_Floors(t *testing.T) {
	next := &scriptedTransport{errs: []error{
		&Error{Kind: KindTimeout, Err: errors.New("deadline")},
	}}

	// A zero policy degrades to a single attempt, never a tight loop.
	err := WithRetry(next, Policy{}).Send(context.Background(), testSub())
	if err == nil {
		t.Fatal("Send = nil, want the timeout")
	}
	if next.calls != 1 {
		t.Errorf("attempts = %d, want 1 under MaxAttempts floor", next.calls)
	}
}
