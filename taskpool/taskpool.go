// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package taskpool

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrFull is returned by Go when size tasks are already running.
	ErrFull = errors.New("taskpool full")
	// ErrStopped is returned by Go after Stop.
	ErrStopped = errors.New("taskpool stopped")
)

// TaskPool runs every task on its own goroutine, at most size at a time.
// Tasks are long lived, such as one connection each, so they are never
// queued: Go fails instead.
type TaskPool struct {
	size    int32
	running int32

	mux     sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates a TaskPool. A size <= 0 means no limit.
func New(size int) *TaskPool {
	return &TaskPool{size: int32(size)}
}

// Go .
func (tp *TaskPool) Go(f func()) error {
	// Add must not race a Wait that follows Stop
	tp.mux.Lock()
	if tp.stopped {
		tp.mux.Unlock()
		return ErrStopped
	}
	if n := atomic.AddInt32(&tp.running, 1); tp.size > 0 && n > tp.size {
		atomic.AddInt32(&tp.running, -1)
		tp.mux.Unlock()
		return ErrFull
	}
	tp.wg.Add(1)
	tp.mux.Unlock()

	go func() {
		defer func() {
			atomic.AddInt32(&tp.running, -1)
			tp.wg.Done()
		}()
		Call(f)
	}()
	return nil
}

// Running returns the number of tasks not finished yet.
func (tp *TaskPool) Running() int {
	return int(atomic.LoadInt32(&tp.running))
}

// Stop refuses new tasks.
func (tp *TaskPool) Stop() {
	tp.mux.Lock()
	tp.stopped = true
	tp.mux.Unlock()
}

// Wait blocks until every running task returned.
func (tp *TaskPool) Wait() {
	tp.wg.Wait()
}
