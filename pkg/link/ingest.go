// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"time"

	"github.com/Thermoquad/rylink/pkg/sched"
)

// Scheduler is the dispatch capability the link consumes.
// *sched.Scheduler implements it.
type Scheduler interface {
	Spawn(id sched.TaskID, arg any) error
	SpawnAfter(id sched.TaskID, d time.Duration, arg any) error
}

// Receiver is the ingestion handler. HandleInterrupt runs in the interrupt
// context whenever the source signals received data.
type Receiver struct {
	src       ByteSource
	buf       *sched.Resource[FrameBuffer]
	framing   Framing
	sched     Scheduler
	parseTask sched.TaskID
	observer  Observer
}

// NewReceiver creates an ingestion handler that requests parseTask when a
// frame completes.
func NewReceiver(src ByteSource, buf *sched.Resource[FrameBuffer], framing Framing, s Scheduler, parseTask sched.TaskID, observer Observer) *Receiver {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Receiver{
		src:       src,
		buf:       buf,
		framing:   framing,
		sched:     s,
		parseTask: parseTask,
		observer:  observer,
	}
}

// HandleInterrupt drains the source into the frame buffer and requests the
// parse task when the framing policy detects a completed frame. A failed
// request is returned; the caller treats it as fatal.
func (r *Receiver) HandleInterrupt() error {
	var (
		read     int
		overruns int
		complete bool
	)

	r.buf.Lock(func(fb *FrameBuffer) {
		for {
			c, ok := r.src.TryReadByte()
			if !ok {
				break
			}
			read++
			if fb.Push(c) {
				overruns++
			}
			if r.framing.Mode == FramingFixed && fb.Received() == r.framing.Size {
				complete = true
			}
		}
		// Empty after at least one byte since the last reset ends the frame.
		if r.framing.Mode == FramingSentinel && fb.Received() > 0 {
			complete = true
		}
	})

	r.src.ClearStatus(StatusReceiveFull)

	if read > 0 {
		r.observer.BytesReceived(read)
	}
	for i := 0; i < overruns; i++ {
		r.observer.Overrun()
	}

	if !complete {
		return nil
	}
	return r.sched.Spawn(r.parseTask, nil)
}
