package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
		BreakerEnabled: false,
	}
}

func retryAll(err error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	exec := NewExecutor(testConfig(), nil)

	attempts := 0
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, retryAll)

	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(testConfig(), nil)

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	})

	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteExhaustsRetryBudget(t *testing.T) {
	exec := NewExecutor(testConfig(), nil)

	attempts := 0
	errTransient := errors.New("transient")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errTransient
	}, retryAll)

	if !errors.Is(err, errTransient) {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected the full budget of 3 attempts, got %d", attempts)
	}
}

func TestExecuteStopsOnContextCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 10
	cfg.InitialBackoff = 50 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	exec := NewExecutor(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	start := time.Now()
	err := exec.Execute(ctx, "op", func(context.Context) error {
		attempts++
		return errors.New("transient")
	}, retryAll)

	if err == nil {
		t.Fatal("expected failure")
	}
	if attempts > 2 {
		t.Fatalf("expected early abort, got %d attempts", attempts)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("expected quick abort, took %v", elapsed)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		MaxAttempts:             1,
		InitialBackoff:          time.Millisecond,
		MaxBackoff:              time.Millisecond,
		Multiplier:              2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, nil)

	errTransient := errors.New("transient")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		_ = exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTransient
		}, classifier)
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatal("call should be rejected by the open breaker")
		return nil
	}, classifier)

	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit error, got %v", err)
	}
}

func TestExecuteSeparateBreakersPerOperation(t *testing.T) {
	exec := NewExecutor(Config{
		MaxAttempts:         1,
		InitialBackoff:      time.Millisecond,
		MaxBackoff:          time.Millisecond,
		Multiplier:          2,
		BreakerEnabled:      true,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	}, nil)

	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 3; i++ {
		_ = exec.Execute(context.Background(), "failing", func(context.Context) error {
			return errors.New("down")
		}, classifier)
	}

	err := exec.Execute(context.Background(), "healthy", func(context.Context) error {
		return nil
	}, classifier)
	if err != nil {
		t.Fatalf("independent operation must not share the open breaker: %v", err)
	}
}
