package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	if _, ok := New(0).(NoOp); !ok {
		t.Error("New(0) should return NoOp")
	}
	if _, ok := New(time.Second).(*Interval); !ok {
		t.Error("New(1s) should return *Interval")
	}
}

func TestInterval_Wait(t *testing.T) {
	rl := NewInterval(30 * time.Millisecond)
	start := time.Now()

	for range 3 {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	// first call is immediate, the next two wait
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("three Wait() calls took %v, want at least ~60ms", elapsed)
	}
}

func TestInterval_WaitCancelled(t *testing.T) {
	rl := NewInterval(time.Hour)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestInterval_CanProceed(t *testing.T) {
	rl := NewInterval(time.Hour)
	if !rl.CanProceed() {
		t.Error("CanProceed() should be true before the first call")
	}
	_ = rl.Wait(context.Background())
	if rl.CanProceed() {
		t.Error("CanProceed() should be false right after a call")
	}
}

func TestTokenBucket_Burst(t *testing.T) {
	rl := NewTokenBucket(3, time.Hour)
	ctx := context.Background()

	for i := range 3 {
		if !rl.CanProceed() {
			t.Fatalf("CanProceed() false before token %d", i)
		}
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	if rl.CanProceed() {
		t.Error("CanProceed() should be false once the bucket is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() on empty bucket error = %v, want DeadlineExceeded", err)
	}
}

func TestTokenBucket_Concurrent(t *testing.T) {
	rl := NewTokenBucket(10, time.Millisecond)
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rl.Wait(context.Background()); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestInterval_Allow(t *testing.T) {
	rl := NewInterval(time.Hour)
	if !rl.Allow() {
		t.Fatal("Allow() should be true before the first call")
	}
	if rl.Allow() {
		t.Error("Allow() should be false right after a call")
	}
}

func TestTokenBucket_AllowIsAtomic(t *testing.T) {
	rl := NewTokenBucket(5, time.Hour)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Errorf("Allow() granted %d slots, want 5", allowed)
	}
	if rl.CanProceed() {
		t.Error("bucket should be empty")
	}
}

func TestNoOp(t *testing.T) {
	var rl Limiter = NoOp{}
	if !rl.CanProceed() || !rl.Allow() {
		t.Error("NoOp refused a call")
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Errorf("NoOp.Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("NoOp.Wait(cancelled) error = %v", err)
	}
}
