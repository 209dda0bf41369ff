package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrTaskStarted is returned when Start is called twice.
var ErrTaskStarted = errors.New("scheduler: task already started")

// Task is a long-lived background job owning its own cancellation.
// It is started once during process initialisation and stopped on shutdown.
type Task struct {
	name   string
	run    func(context.Context) error
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewTask wraps run as a named task.
func NewTask(name string, run func(context.Context) error, logger zerolog.Logger) *Task {
	return &Task{
		name:   name,
		run:    run,
		logger: logger.With().Str("component", "task").Str("task", name).Logger(),
	}
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Start launches the task in its own goroutine.
func (t *Task) Start(parent context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return ErrTaskStarted
	}

	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		t.logger.Info().Msg("task started")
		err := t.run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Error().Err(err).Msg("task exited with error")
		} else {
			t.logger.Info().Msg("task stopped")
		}
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}()
	return nil
}

// Done is closed once the task has returned. It is nil before Start.
func (t *Task) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Stop cancels the task and waits for it to return.
// Cancellation is not reported as an error.
func (t *Task) Stop() error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	<-done

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil && !errors.Is(t.err, context.Canceled) {
		return t.err
	}
	return nil
}
