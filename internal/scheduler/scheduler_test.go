package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAdd_InvalidSpec(t *testing.T) {
	s := New(testLogger(), time.Second)

	tests := []struct {
		name string
		spec string
		job  JobFunc
	}{
		{"bad spec", "every minute", func(context.Context) error { return nil }},
		{"nil job", "@every 1m", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Add("test", tt.spec, tt.job); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRun_ExecutesJobsUntilCancelled(t *testing.T) {
	s := New(testLogger(), time.Second)

	var runs atomic.Int32
	var failures atomic.Int32
	if err := s.Add("count", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add("fail", "@every 1s", func(ctx context.Context) error {
		failures.Add(1)
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add("panic", "@every 1s", func(ctx context.Context) error {
		panic("job exploded")
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if runs.Load() < 2 {
		t.Errorf("runs = %d, want at least 2", runs.Load())
	}
	if failures.Load() == 0 {
		t.Error("failing job should keep being scheduled")
	}
}

func TestRun_OnlyOnce(t *testing.T) {
	s := New(testLogger(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Run(ctx); err == nil {
		t.Error("second Run should fail")
	}
	cancel()
	<-done
}

func TestRun_JobSeesCancellation(t *testing.T) {
	s := New(testLogger(), time.Minute)

	started := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	if err := s.Add("slow", "@every 1s", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	cancel()
	<-done

	if !sawCancel.Load() {
		t.Error("running job should observe cancellation")
	}
}
