// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

// Package worker runs database tasks on a single goroutine that owns one
// connection. Tasks run strictly one at a time in submission order.
package worker // import "github.com/toeirei/dbbridge/internal/worker"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/toeirei/dbbridge/internal/db"
	"github.com/toeirei/dbbridge/internal/logging"
)

var (
	// ErrStopped is returned by Enqueue after Stop and resolves tasks that
	// were still queued when the worker stopped.
	ErrStopped = errors.New("worker stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("worker already started")
	// ErrTaskPanic wraps the value of a panicking task.
	ErrTaskPanic = errors.New("task panicked")
)

// Task is one unit of work. It runs on the worker goroutine with exclusive
// use of m.
type Task func(ctx context.Context, m *db.ExportManager) (any, error)

// Report describes a finished task.
type Report struct {
	ID   uint64
	Name string
	// Value is nil when Err is set.
	Value    any
	Err      error
	Duration time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

// WithNotify registers fn to be called on the worker goroutine after every
// task, before the task's Future resolves.
func WithNotify(fn func(Report)) Option {
	return func(w *Worker) { w.notify = fn }
}

// WithLogger replaces the default component logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithDatabase selects the database Start connects to instead of the
// backend default.
func WithDatabase(name string) Option {
	return func(w *Worker) { w.database = name }
}

type job struct {
	name   string
	task   Task
	future *Future
}

// Worker owns one ExportManager and feeds it tasks from an unbounded FIFO
// queue. Enqueue is safe for concurrent use; everything the tasks touch is
// confined to the worker goroutine.
type Worker struct {
	manager  *db.ExportManager
	logger   *log.Logger
	notify   func(Report)
	database string

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex
	started   bool
	stopped   bool
	stopErr   error

	mu       sync.Mutex
	queue    []*job
	nextID   uint64
	stopping bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New returns a worker for b. It does not connect until Start.
func New(b db.Backend, opts ...Option) *Worker {
	w := &Worker{
		manager: db.NewExportManager(b),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	if w.logger == nil {
		w.logger = logging.With("worker")
	}
	return w
}

// Start connects and launches the worker goroutine. Tasks receive ctx.
// A failed connect leaves the worker unstarted so Start may be retried.
func (w *Worker) Start(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if w.stopped {
		return ErrStopped
	}
	if w.started {
		return ErrAlreadyStarted
	}
	if err := w.manager.Connect(ctx, w.database); err != nil {
		return fmt.Errorf("worker connect: %w", err)
	}
	w.started = true
	w.logger.Info("started", "backend", w.manager.Backend().Name(), "database", w.manager.Database())
	go w.loop(ctx)
	return nil
}

// Enqueue appends task to the queue and returns its Future. Tasks queued
// before Start run once the worker starts.
func (w *Worker) Enqueue(name string, task Task) (*Future, error) {
	if task == nil {
		return nil, fmt.Errorf("enqueue %q: nil task", name)
	}
	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		return nil, ErrStopped
	}
	w.nextID++
	j := &job{name: name, task: task, future: newFuture(w.nextID, name)}
	w.queue = append(w.queue, j)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return j.future, nil
}

// Do enqueues task and waits for its result or for ctx to end. A task whose
// wait is abandoned still runs.
func (w *Worker) Do(ctx context.Context, name string, task Task) (any, error) {
	f, err := w.Enqueue(name, task)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// Pending returns the number of queued tasks, excluding a running one.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Stop stops accepting tasks, waits for the running task to finish, fails
// the tasks still queued with ErrStopped and disconnects. It is idempotent
// and must not be called from inside a task.
func (w *Worker) Stop() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if w.stopped {
		return w.stopErr
	}
	w.stopped = true

	w.mu.Lock()
	w.stopping = true
	pending := w.queue
	w.queue = nil
	w.mu.Unlock()

	close(w.quit)
	if w.started {
		<-w.done
	}
	for _, j := range pending {
		j.future.resolve(nil, ErrStopped)
	}
	w.stopErr = w.manager.Disconnect()
	w.logger.Info("stopped", "dropped", len(pending))
	return w.stopErr
}

// next pops the head of the queue. ok is false once the worker is stopping.
func (w *Worker) next() (j *job, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopping {
		return nil, false
	}
	if len(w.queue) == 0 {
		return nil, true
	}
	j = w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]
	return j, true
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	for {
		j, ok := w.next()
		if !ok {
			return
		}
		if j == nil {
			select {
			case <-w.quit:
				return
			case <-w.wake:
			}
			continue
		}
		w.run(ctx, j)
	}
}

func (w *Worker) run(ctx context.Context, j *job) {
	start := time.Now()
	val, err := w.invoke(ctx, j)
	if err != nil {
		val = nil
	}
	rep := Report{ID: j.future.id, Name: j.name, Value: val, Err: err, Duration: time.Since(start)}
	if err != nil {
		w.logger.Error("task failed", "id", rep.ID, "task", rep.Name, "took", rep.Duration, "err", err)
	} else {
		w.logger.Debug("task done", "id", rep.ID, "task", rep.Name, "took", rep.Duration)
	}
	if w.notify != nil {
		w.safeNotify(rep)
	}
	j.future.resolve(val, err)
}

func (w *Worker) invoke(ctx context.Context, j *job) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val, err = nil, fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return j.task(ctx, w.manager)
}

func (w *Worker) safeNotify(rep Report) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("notify callback panicked", "task", rep.Name, "panic", r)
		}
	}()
	w.notify(rep)
}
