package newsapi

import (
	"context"
	"errors"
	"testing"
	"time"
)

// testBackOff keeps retry tests quick.
type testBackOff struct{}

func (testBackOff) NextBackOff() time.Duration { return time.Millisecond }

func (testBackOff) Reset() {}

func fastBackOff() testBackOff { return testBackOff{} }

func transient() error {
	return &TransportError{Endpoint: "test", Err: errors.New("connection refused")}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := retryWith(context.Background(), 3, fastBackOff(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("called %d times, want 1", calls)
	}
}

func TestRetry_SucceedsSecondAttempt(t *testing.T) {
	calls := 0
	err := retryWith(context.Background(), 3, fastBackOff(), func() error {
		calls++
		if calls < 2 {
			return transient()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("called %d times, want 2", calls)
	}
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	calls := 0
	err := retryWith(context.Background(), 3, fastBackOff(), func() error {
		calls++
		return transient()
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 3 {
		t.Errorf("called %d times, want 3", calls)
	}
	if !IsTransport(err) {
		t.Errorf("error chain does not contain a TransportError: %v", err)
	}
}

func TestRetry_StatusErrorIsNotRetried(t *testing.T) {
	calls := 0
	status := &StatusError{Endpoint: "feeds/add", Code: 409}
	err := retryWith(context.Background(), 3, fastBackOff(), func() error {
		calls++
		return status
	})
	if calls != 1 {
		t.Errorf("called %d times, want 1", calls)
	}
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists in chain, got: %v", err)
	}
}

func TestRetry_ContextCancelledBeforeAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryWith(ctx, 3, fastBackOff(), func() error {
		calls++
		return nil
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 0 {
		t.Errorf("called %d times, want 0 (context already cancelled)", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got: %v", err)
	}
}

func TestRetry_SingleAttempt(t *testing.T) {
	calls := 0
	err := retryWith(context.Background(), 1, fastBackOff(), func() error {
		calls++
		return transient()
	})
	if calls != 1 {
		t.Errorf("called %d times, want 1", calls)
	}
	if !IsTransport(err) {
		t.Errorf("expected TransportError, got: %v", err)
	}
}

func TestNewBackOff_Capped(t *testing.T) {
	b := newBackOff(100*time.Millisecond, 400*time.Millisecond)
	for range 10 {
		// Randomisation is ±50% around the capped interval.
		if d := b.NextBackOff(); d > 600*time.Millisecond {
			t.Fatalf("backoff %v exceeds cap plus jitter", d)
		}
	}
}
