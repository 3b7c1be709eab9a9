package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllJobs(t *testing.T) {
	p := New(3)
	var count int64
	jobs := make([]func(context.Context) error, 20)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		}
	}
	if err := p.Run(context.Background(), jobs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 20 {
		t.Fatalf("ran %d jobs, want 20", count)
	}
}

func TestPoolPropagatesFirstError(t *testing.T) {
	p := New(2)
	boom := errors.New("boom")
	jobs := []func(context.Context) error{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error { return nil },
	}
	if err := p.Run(context.Background(), jobs); err == nil {
		t.Fatal("expected error")
	}
}

func TestPoolZeroConcurrencyClampedToOne(t *testing.T) {
	p := New(0)
	if p.sem == nil {
		t.Fatal("expected semaphore to be initialized")
	}
	if !p.sem.TryAcquire(1) {
		t.Fatal("expected one slot to be available")
	}
	if p.sem.TryAcquire(1) {
		t.Fatal("expected capacity of exactly one")
	}
	p.sem.Release(1)
}
