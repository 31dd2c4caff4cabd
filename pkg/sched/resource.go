// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sched

import "sync"

// Resource is data shared between priority levels. Its ceiling is the
// priority of the highest context that may touch it; whoever holds the lock
// runs at that level until the scoped access returns.
//
// Access is only possible through Lock, so every critical section is
// released on all exit paths, panics included.
type Resource[T any] struct {
	mu      sync.Mutex
	ceiling Priority
	value   T
}

// NewResource wraps value with the given ceiling priority.
func NewResource[T any](ceiling Priority, value T) *Resource[T] {
	return &Resource[T]{ceiling: ceiling, value: value}
}

// Ceiling returns the resource's ceiling priority.
func (r *Resource[T]) Ceiling() Priority {
	return r.ceiling
}

// Lock runs fn with exclusive access to the value. fn must not retain the
// pointer past its return.
func (r *Resource[T]) Lock(fn func(v *T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.value)
}
