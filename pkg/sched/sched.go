// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sched provides a priority-ordered, run-to-completion task
// dispatcher with deferred (timer-armed) spawns.
//
// Tasks never block on each other. A task either runs to completion or, when
// it must share data with the interrupt context, does so through a Resource.
// Spawns are fire-and-forget requests; a request that cannot be honored is
// reported as an error and is expected to be treated as fatal by the caller.
package sched

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Priority levels. Higher values run first.
type Priority uint8

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityHigh
	PriorityInterrupt

	numPriorities = int(PriorityInterrupt) + 1
)

// Default limits
const (
	DefaultCapacity  = 1
	DefaultMaxTimers = 16
)

var (
	ErrQueueFull   = errors.New("sched: delay queue full")
	ErrTaskBusy    = errors.New("sched: task already pending")
	ErrUnknownTask = errors.New("sched: unknown task")
)

// TaskID identifies a registered task.
type TaskID int

// TaskFunc is the body of a task. arg is whatever was passed to Spawn.
type TaskFunc func(ctx context.Context, arg any) error

type task struct {
	id       TaskID
	name     string
	prio     Priority
	fn       TaskFunc
	capacity int
	coalesce bool
	pending  int // ready entries plus armed timers
	ready    int
}

// TaskOption configures a task at registration.
type TaskOption func(*task)

// WithCapacity sets how many spawns of the task may be pending at once.
func WithCapacity(n int) TaskOption {
	return func(t *task) {
		if n > 0 {
			t.capacity = n
		}
	}
}

// Coalesce makes an immediate Spawn of an already ready task a no-op
// instead of an error.
func Coalesce() TaskOption {
	return func(t *task) {
		t.coalesce = true
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxTimers bounds the delay queue.
func WithMaxTimers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxTimers = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

type entry struct {
	t   *task
	arg any
}

// Scheduler dispatches spawned tasks one at a time in priority order.
type Scheduler struct {
	mu        sync.Mutex
	tasks     []*task
	ready     [numPriorities][]entry
	timers    timerQueue
	maxTimers int
	seq       uint64
	now       func() time.Time

	wakeUpCh chan struct{}
}

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		maxTimers: DefaultMaxTimers,
		now:       time.Now,
		wakeUpCh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a task and returns its id.
func (s *Scheduler) Register(name string, prio Priority, fn TaskFunc, opts ...TaskOption) TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(prio) >= numPriorities {
		prio = PriorityInterrupt
	}
	t := &task{
		id:       TaskID(len(s.tasks)),
		name:     name,
		prio:     prio,
		fn:       fn,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(t)
	}
	s.tasks = append(s.tasks, t)
	return t.id
}

// Name returns the registered name of a task.
func (s *Scheduler) Name(id TaskID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, err := s.lookup(id); err == nil {
		return t.name
	}
	return fmt.Sprintf("task#%d", id)
}

// Pending reports how many spawns of a task are waiting to run.
func (s *Scheduler) Pending(id TaskID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, err := s.lookup(id); err == nil {
		return t.pending
	}
	return 0
}

func (s *Scheduler) lookup(id TaskID) (*task, error) {
	if id < 0 || int(id) >= len(s.tasks) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	return s.tasks[id], nil
}

// Spawn requests an immediate run of a task.
func (s *Scheduler) Spawn(id TaskID, arg any) error {
	s.mu.Lock()
	t, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if t.coalesce && t.ready > 0 {
		s.mu.Unlock()
		return nil
	}
	if t.pending >= t.capacity {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskBusy, t.name)
	}
	t.pending++
	s.push(entry{t: t, arg: arg})
	s.mu.Unlock()

	s.wakeUp()
	return nil
}

// SpawnAfter arms a run of a task after d.
func (s *Scheduler) SpawnAfter(id TaskID, d time.Duration, arg any) error {
	s.mu.Lock()
	t, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if len(s.timers) >= s.maxTimers {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrQueueFull, t.name)
	}
	if t.pending >= t.capacity {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskBusy, t.name)
	}
	t.pending++
	s.seq++
	heap.Push(&s.timers, &timer{at: s.now().Add(d), seq: s.seq, e: entry{t: t, arg: arg}})
	s.mu.Unlock()

	s.wakeUp()
	return nil
}

func (s *Scheduler) push(e entry) {
	s.ready[e.t.prio] = append(s.ready[e.t.prio], e)
	e.t.ready++
}

func (s *Scheduler) wakeUp() {
	select {
	case s.wakeUpCh <- struct{}{}:
	default:
	}
}

// promote moves due timers onto the ready queues. Caller holds mu.
func (s *Scheduler) promote(now time.Time) {
	for len(s.timers) > 0 && !s.timers[0].at.After(now) {
		tm := heap.Pop(&s.timers).(*timer)
		s.push(tm.e)
	}
}

// next pops the highest priority ready entry. Caller holds mu.
func (s *Scheduler) next() (entry, bool) {
	for p := numPriorities - 1; p >= 0; p-- {
		q := s.ready[p]
		if len(q) == 0 {
			continue
		}
		e := q[0]
		q[0] = entry{}
		s.ready[p] = q[1:]
		e.t.pending--
		e.t.ready--
		return e, true
	}
	return entry{}, false
}

func (s *Scheduler) dispatch(ctx context.Context, e entry) error {
	if err := e.t.fn(ctx, e.arg); err != nil {
		return fmt.Errorf("task %s: %w", e.t.name, err)
	}
	return nil
}

// RunPending promotes due timers and runs ready tasks until none remain.
// It returns the number of tasks run.
func (s *Scheduler) RunPending(ctx context.Context) (int, error) {
	n := 0
	for {
		s.mu.Lock()
		s.promote(s.now())
		e, ok := s.next()
		s.mu.Unlock()
		if !ok {
			return n, nil
		}
		n++
		if err := s.dispatch(ctx, e); err != nil {
			return n, err
		}
	}
}

// Run dispatches tasks until ctx is done or a task fails.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if _, err := s.RunPending(ctx); err != nil {
			return err
		}

		var timeout <-chan time.Time
		s.mu.Lock()
		if len(s.timers) > 0 {
			d := s.timers[0].at.Sub(s.now())
			if d < 0 {
				d = 0
			}
			timeout = time.After(d)
		}
		s.mu.Unlock()

		// Nothing runnable: wait for a spawn, a timer or shutdown.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wakeUpCh:
		case <-timeout:
		}
	}
}

type timer struct {
	at  time.Time
	seq uint64
	e   entry
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) { *q = append(*q, x.(*timer)) }

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
