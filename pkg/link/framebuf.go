// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "fmt"

// DefaultCapacity is the frame buffer size in bytes.
const DefaultCapacity = 64

// FrameBuffer accumulates received bytes from index 0. It is not safe for
// concurrent use on its own; it lives inside a sched.Resource.
type FrameBuffer struct {
	bytes    []byte
	cursor   int
	received int // bytes pushed since the last Extract
	overrun  bool
}

// NewFrameBuffer allocates a zeroed buffer.
func NewFrameBuffer(capacity int) (FrameBuffer, error) {
	if capacity <= 0 {
		return FrameBuffer{}, fmt.Errorf("frame buffer capacity must be positive, got %d", capacity)
	}
	return FrameBuffer{bytes: make([]byte, capacity)}, nil
}

// Cap returns the buffer capacity.
func (b *FrameBuffer) Cap() int {
	return len(b.bytes)
}

// Cursor returns the next write index.
func (b *FrameBuffer) Cursor() int {
	return b.cursor
}

// Received returns the number of bytes pushed since the last Extract.
func (b *FrameBuffer) Received() int {
	return b.received
}

// Overran reports whether the current frame was overwritten by a wrap.
func (b *FrameBuffer) Overran() bool {
	return b.overrun
}

// Push stores c at the cursor and advances it modulo the capacity. Once the
// cursor has wrapped, the next push overwrites the in-flight frame from the
// start; overwrote reports that case.
func (b *FrameBuffer) Push(c byte) (overwrote bool) {
	overwrote = b.cursor == 0 && b.received > 0
	if overwrote {
		b.overrun = true
	}
	b.bytes[b.cursor] = c
	b.cursor = (b.cursor + 1) % len(b.bytes)
	b.received++
	return overwrote
}

// Extract copies the buffer into dst, zeroing each byte as it is consumed,
// resets the cursor and returns the frame length. dst must be at least Cap
// bytes long.
func (b *FrameBuffer) Extract(dst []byte) int {
	n := b.received
	if n > len(b.bytes) {
		n = len(b.bytes)
	}
	for i := range b.bytes {
		dst[i] = b.bytes[i]
		b.bytes[i] = 0
	}
	b.cursor = 0
	b.received = 0
	b.overrun = false
	return n
}

// Snapshot returns a copy of the buffer contents.
func (b *FrameBuffer) Snapshot() []byte {
	out := make([]byte, len(b.bytes))
	copy(out, b.bytes)
	return out
}
