// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package worker

import "context"

// Future is the pending result of an enqueued task.
type Future struct {
	id   uint64
	name string
	done chan struct{}
	val  any
	err  error
}

func newFuture(id uint64, name string) *Future {
	return &Future{id: id, name: name, done: make(chan struct{})}
}

// ID is the task's position in submission order, starting at 1.
func (f *Future) ID() uint64 { return f.id }

// Name is the name the task was enqueued with.
func (f *Future) Name() string { return f.name }

// Done is closed once the task has finished or was dropped by Stop.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the task finishes and returns its outcome.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.val, f.err
}

// Wait is Result bounded by ctx.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(val any, err error) {
	f.val, f.err = val, err
	close(f.done)
}
