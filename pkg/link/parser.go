// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"context"
	"time"

	"github.com/Thermoquad/rylink/pkg/sched"
)

// Parser is the parse task. It moves a completed frame out of the shared
// buffer into its own work area and reports it.
type Parser struct {
	buf      *sched.Resource[FrameBuffer]
	work     []byte // touched only by Run
	diag     Diagnostic
	observer Observer
	now      func() time.Time
}

// NewParser creates the parse task for buf.
func NewParser(buf *sched.Resource[FrameBuffer], diag Diagnostic, observer Observer) *Parser {
	var capacity int
	buf.Lock(func(fb *FrameBuffer) {
		capacity = fb.Cap()
	})
	if diag == nil {
		diag = DiagnosticFunc(func(byte) {})
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Parser{
		buf:      buf,
		work:     make([]byte, capacity),
		diag:     diag,
		observer: observer,
		now:      time.Now,
	}
}

// Run is the task body. It never fails; the error return satisfies
// sched.TaskFunc.
func (p *Parser) Run(ctx context.Context, _ any) error {
	var (
		n       int
		overrun bool
	)
	p.buf.Lock(func(fb *FrameBuffer) {
		overrun = fb.Overran()
		n = fb.Extract(p.work)
	})

	data := p.work[:n]
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	if len(data) == 0 {
		return nil
	}

	for _, c := range data {
		p.diag.Char(c)
	}

	frame := Frame{
		Data:    append([]byte(nil), data...),
		At:      p.now(),
		Overrun: overrun,
	}
	p.observer.FrameParsed(frame)
	return nil
}
