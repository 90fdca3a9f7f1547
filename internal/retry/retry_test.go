package retry

import (
	"context"
	"testing"
	"time"
)

func TestBackoffDoubles(t *testing.T) {
	base := 100 * time.Millisecond
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for i, w := range want {
		if got := Backoff(i+1, base); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoffClampsAttempt(t *testing.T) {
	base := 50 * time.Millisecond
	if got := Backoff(0, base); got != base {
		t.Errorf("Backoff(0) = %v, want %v", got, base)
	}
	if got := Backoff(-3, base); got != base {
		t.Errorf("Backoff(-3) = %v, want %v", got, base)
	}
}

func TestSleepCompletes(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep() = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Sleep returned after %v, want >= 10ms", elapsed)
	}
}

func TestSleepCancelable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Sleep(ctx, 10*time.Second)
	if err != context.Canceled {
		t.Fatalf("Sleep() = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Sleep did not abort promptly, took %v", elapsed)
	}
}
