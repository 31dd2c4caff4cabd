// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestPriorityOrder(t *testing.T) {
	s := New()
	var order []string
	record := func(name string) TaskFunc {
		return func(context.Context, any) error {
			order = append(order, name)
			return nil
		}
	}

	low := s.Register("low", PriorityLow, record("low"))
	high := s.Register("high", PriorityHigh, record("high"))
	idle := s.Register("idle", PriorityIdle, record("idle"))

	require.NoError(t, s.Spawn(idle, nil))
	require.NoError(t, s.Spawn(low, nil))
	require.NoError(t, s.Spawn(high, nil))

	n, err := s.RunPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"high", "low", "idle"}, order)
}

func TestFIFOWithinPriority(t *testing.T) {
	s := New()
	var order []any
	fn := func(_ context.Context, arg any) error {
		order = append(order, arg)
		return nil
	}
	a := s.Register("a", PriorityLow, fn, WithCapacity(4))
	b := s.Register("b", PriorityLow, fn)

	require.NoError(t, s.Spawn(a, "a1"))
	require.NoError(t, s.Spawn(b, "b1"))
	require.NoError(t, s.Spawn(a, "a2"))

	_, err := s.RunPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, []any{"a1", "b1", "a2"}, order)
}

func TestSpawnCapacity(t *testing.T) {
	s := New()
	id := s.Register("send", PriorityLow, func(context.Context, any) error { return nil })

	require.NoError(t, s.Spawn(id, "first"))
	err := s.Spawn(id, "second")
	require.ErrorIs(t, err, ErrTaskBusy)
	require.Equal(t, 1, s.Pending(id))
}

func TestSpawnCoalesce(t *testing.T) {
	s := New()
	runs := 0
	id := s.Register("parse", PriorityLow, func(context.Context, any) error {
		runs++
		return nil
	}, Coalesce())

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Spawn(id, nil))
	}
	require.Equal(t, 1, s.Pending(id))

	_, err := s.RunPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, runs)
	require.Equal(t, 0, s.Pending(id))
}

func TestSpawnWhileRunningRequeues(t *testing.T) {
	s := New()
	runs := 0
	var id TaskID
	id = s.Register("parse", PriorityLow, func(context.Context, any) error {
		runs++
		if runs == 1 {
			// a new request during the run is not redundant
			return s.Spawn(id, nil)
		}
		return nil
	}, Coalesce())

	require.NoError(t, s.Spawn(id, nil))
	_, err := s.RunPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, runs)
}

func TestSpawnAfter(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	runs := 0
	id := s.Register("tick", PriorityLow, func(context.Context, any) error {
		runs++
		return nil
	})

	require.NoError(t, s.SpawnAfter(id, 80*time.Second, nil))

	n, err := s.RunPending(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	clock.Advance(79 * time.Second)
	n, _ = s.RunPending(context.Background())
	require.Zero(t, n)

	clock.Advance(time.Second)
	n, err = s.RunPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, runs)
}

func TestSpawnAfterOrdering(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	var order []any
	id := s.Register("t", PriorityLow, func(_ context.Context, arg any) error {
		order = append(order, arg)
		return nil
	}, WithCapacity(3))

	require.NoError(t, s.SpawnAfter(id, 3*time.Second, "late"))
	require.NoError(t, s.SpawnAfter(id, time.Second, "early"))
	require.NoError(t, s.SpawnAfter(id, time.Second, "early-2"))

	clock.Advance(5 * time.Second)
	_, err := s.RunPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, []any{"early", "early-2", "late"}, order)
}

func TestDelayQueueFull(t *testing.T) {
	s := New(WithMaxTimers(2))
	fn := func(context.Context, any) error { return nil }
	a := s.Register("a", PriorityLow, fn)
	b := s.Register("b", PriorityLow, fn)
	c := s.Register("c", PriorityLow, fn)

	require.NoError(t, s.SpawnAfter(a, time.Second, nil))
	require.NoError(t, s.SpawnAfter(b, time.Second, nil))
	require.ErrorIs(t, s.SpawnAfter(c, time.Second, nil), ErrQueueFull)
}

func TestUnknownTask(t *testing.T) {
	s := New()
	require.ErrorIs(t, s.Spawn(TaskID(7), nil), ErrUnknownTask)
	require.ErrorIs(t, s.SpawnAfter(TaskID(-1), time.Second, nil), ErrUnknownTask)
}

func TestTaskErrorIsFatal(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	id := s.Register("broken", PriorityLow, func(context.Context, any) error { return boom })

	require.NoError(t, s.Spawn(id, nil))
	err := s.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "broken")
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunWakesOnSpawn(t *testing.T) {
	s := New()
	ran := make(chan any, 1)
	id := s.Register("wake", PriorityLow, func(_ context.Context, arg any) error {
		ran <- arg
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.NoError(t, s.Spawn(id, "hello"))
	select {
	case got := <-ran:
		require.Equal(t, "hello", got)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not dispatched")
	}
}

func TestResourceLockReleasesOnPanic(t *testing.T) {
	r := NewResource(PriorityInterrupt, 0)
	require.Equal(t, PriorityInterrupt, r.Ceiling())

	func() {
		defer func() { _ = recover() }()
		r.Lock(func(v *int) {
			*v = 1
			panic("mid critical section")
		})
	}()

	r.Lock(func(v *int) {
		*v++
	})
	r.Lock(func(v *int) {
		require.Equal(t, 2, *v)
	})
}
