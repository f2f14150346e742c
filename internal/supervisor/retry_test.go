package supervisor

import (
	"context"
	"testing"
	"time"
)

// =============================================================================
// Retry
// =============================================================================

func TestRetry_DoneBeforeFirstAttempt(t *testing.T) {
	calls := 0
	res := Retry(context.Background(),
		RetryConfig{Attempts: 3, Interval: 0},
		func(context.Context, int) { calls++ },
		func(context.Context) bool { return true },
	)

	if calls != 0 {
		t.Errorf("action ran %d times, want 0", calls)
	}
	if !res.Done || res.Attempts != 0 {
		t.Errorf("result = %+v, want done after 0 attempts", res)
	}
}

func TestRetry_StopsWhenDone(t *testing.T) {
	remaining := 2
	res := Retry(context.Background(),
		RetryConfig{Attempts: 5, Interval: 0},
		func(context.Context, int) { remaining-- },
		func(context.Context) bool { return remaining == 0 },
	)

	if !res.Done {
		t.Error("expected Done")
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	var attempts []int
	res := Retry(context.Background(),
		RetryConfig{Attempts: 3, Interval: time.Millisecond},
		func(_ context.Context, attempt int) { attempts = append(attempts, attempt) },
		func(context.Context) bool { return false },
	)

	if res.Done {
		t.Error("should not be done")
	}
	if res.Attempts != 3 || len(attempts) != 3 {
		t.Errorf("Attempts = %d, calls = %v, want 3", res.Attempts, attempts)
	}
	if attempts[0] != 1 || attempts[2] != 3 {
		t.Errorf("attempt numbers = %v, want 1..3", attempts)
	}
}

func TestRetry_WaitsInterval(t *testing.T) {
	start := time.Now()
	res := Retry(context.Background(),
		RetryConfig{Attempts: 2, Interval: 10 * time.Millisecond},
		func(context.Context, int) {},
		func(context.Context) bool { return false },
	)

	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("elapsed = %v, want at least two intervals", elapsed)
	}
}

func TestRetry_LastAttemptSucceeds(t *testing.T) {
	calls := 0
	res := Retry(context.Background(),
		RetryConfig{Attempts: 3, Interval: 0},
		func(context.Context, int) { calls++ },
		func(context.Context) bool { return calls == 3 },
	)

	if !res.Done || res.Attempts != 3 {
		t.Errorf("result = %+v, want done after 3 attempts", res)
	}
}

func TestRetry_ZeroAttempts(t *testing.T) {
	res := Retry(context.Background(),
		RetryConfig{Attempts: 0},
		func(context.Context, int) { t.Error("action should not run") },
		func(context.Context) bool { return false },
	)
	if res.Attempts != 0 || res.Done {
		t.Errorf("result = %+v", res)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	start := time.Now()
	res := Retry(ctx,
		RetryConfig{Attempts: 10, Interval: time.Hour},
		func(context.Context, int) {
			calls++
			cancel()
		},
		func(context.Context) bool { return false },
	)

	if time.Since(start) > time.Second {
		t.Error("Retry did not stop on cancellation")
	}
	if calls != 1 || res.Attempts != 1 || res.Done {
		t.Errorf("calls = %d, result = %+v", calls, res)
	}
}

func TestSleep(t *testing.T) {
	if !Sleep(context.Background(), time.Millisecond) {
		t.Error("Sleep should complete")
	}
	if !Sleep(context.Background(), 0) {
		t.Error("zero Sleep should complete")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Sleep(ctx, time.Hour) {
		t.Error("Sleep should stop on cancelled context")
	}
	if Sleep(ctx, 0) {
		t.Error("zero Sleep on cancelled context should report false")
	}
}
