package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"callwatch/internal/services"
)

func fastPolicy() Policy {
	return Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxRetries:      3,
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return services.Wrap(services.ErrTransient, "analysis", "call", "flaky", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoStopsOnPermanentFailure(t *testing.T) {
	attempts := 0
	wantErr := services.Wrap(services.ErrValidation, "analysis", "parse", "bad input", nil)
	err := Do(context.Background(), fastPolicy(), func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("permanent failures must not be retried, got %d attempts", attempts)
	}
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func() error {
		attempts++
		return services.Wrap(services.ErrTransient, "alert", "send", "down", nil)
	})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected initial attempt plus 3 retries, got %d", attempts)
	}
}

func TestDoHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, Policy{InitialInterval: time.Minute, MaxInterval: time.Minute, MaxRetries: 5}, func() error {
		attempts++
		cancel()
		return services.Wrap(services.ErrTransient, "alert", "send", "down", nil)
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if attempts != 1 {
		t.Fatalf("expected no retries after cancel, got %d attempts", attempts)
	}
}

func TestBreakerTripsAndRecovers(t *testing.T) {
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	breaker := NewBreaker(3, time.Minute)
	breaker.now = func() time.Time { return current }

	for i := 0; i < 2; i++ {
		breaker.Failure()
		if !breaker.Allow() {
			t.Fatalf("breaker opened early after %d failures", i+1)
		}
	}
	breaker.Failure()
	if breaker.Allow() {
		t.Fatal("breaker should be open after threshold failures")
	}
	if !breaker.Open() {
		t.Fatal("Open should report tripped breaker")
	}

	current = current.Add(30 * time.Second)
	if breaker.Allow() {
		t.Fatal("breaker should stay open during cooldown")
	}

	current = current.Add(31 * time.Second)
	if !breaker.Allow() {
		t.Fatal("breaker should close once the cooldown elapses")
	}

	// The cooldown resets the failure count, so it takes a full run of
	// threshold failures to trip again.
	breaker.Failure()
	breaker.Failure()
	if !breaker.Allow() {
		t.Fatal("cooldown expiry must reset the failure count")
	}
	breaker.Failure()
	if breaker.Allow() {
		t.Fatal("breaker should re-open after another threshold run")
	}

	current = current.Add(2 * time.Minute)
	if !breaker.Allow() {
		t.Fatal("breaker should close again after the second cooldown")
	}
	breaker.Success()
	breaker.Failure()
	if !breaker.Allow() {
		t.Fatal("success should fully reset the failure count")
	}
}

func TestBreakerDisabledThreshold(t *testing.T) {
	breaker := NewBreaker(0, time.Minute)
	for i := 0; i < 10; i++ {
		breaker.Failure()
	}
	if !breaker.Allow() {
		t.Fatal("breaker with zero threshold must never trip")
	}
}
