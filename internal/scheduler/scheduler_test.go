package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRejectsBadSpec(t *testing.T) {
	if _, err := New("every now and then", time.UTC, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for malformed spec")
	}
}

func TestNextBeforeRun(t *testing.T) {
	s, err := New("*/30 * * * *", time.UTC, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.Next().IsZero() {
		t.Errorf("Next before Run = %v, want zero", s.Next())
	}
}

func TestRunInvokesJobAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	s, err := New("@every 1s", time.UTC, func(jobCtx context.Context) error {
		if jobCtx != ctx {
			t.Error("job did not receive the Run context")
		}
		if calls.Add(1) == 1 {
			cancel()
		}
		return errors.New("logged, not fatal")
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after the job cancelled the context")
	}
	if calls.Load() < 1 {
		t.Errorf("job calls = %d, want at least 1", calls.Load())
	}
}
