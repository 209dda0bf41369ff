package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunSurvivesErrorsAndPanics(t *testing.T) {
	sched := New(Options{Name: "test", Interval: 5 * time.Millisecond, Immediate: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx, func(ctx context.Context, at time.Time) error {
			n := calls.Add(1)
			switch n {
			case 1:
				return errors.New("boom")
			case 2:
				panic("kaboom")
			case 4:
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	if calls.Load() < 4 {
		t.Fatalf("expected loop to continue after failures, got %d calls", calls.Load())
	}
}

func TestRunStopsDuringStartupDelay(t *testing.T) {
	sched := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sched.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("tick must not run")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestNextTickAlignment(t *testing.T) {
	sched := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2025, 1, 1, 10, 0, 30, 0, time.UTC)
	if got := sched.nextTick(now); !got.Equal(time.Date(2025, 1, 1, 10, 1, 0, 0, time.UTC)) {
		t.Fatalf("nextTick = %s", got)
	}

	free := New(Options{Interval: time.Minute}, zerolog.Nop())
	if got := free.nextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("unaligned nextTick = %s", got)
	}
}

func TestTaskLifecycle(t *testing.T) {
	started := make(chan struct{})
	task := NewTask("loop", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, zerolog.Nop())

	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := task.Start(context.Background()); !errors.Is(err, ErrTaskStarted) {
		t.Fatalf("second Start returned %v", err)
	}

	<-started
	if err := task.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-task.Done():
	default:
		t.Fatal("Done must be closed after Stop")
	}
}

func TestTaskStopReportsFailure(t *testing.T) {
	task := NewTask("broken", func(ctx context.Context) error {
		return errors.New("fatal")
	}, zerolog.Nop())
	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-task.Done()
	if err := task.Stop(); err == nil {
		t.Fatal("Stop should surface a non-cancellation error")
	}
}
