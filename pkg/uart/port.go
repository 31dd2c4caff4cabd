// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package uart adapts host byte streams (serial ports, WebSocket bridges)
// into the UART view the link core works against.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/rs/zerolog"
)

// DefaultRxSize is the capacity of the receive ring.
const DefaultRxSize = 1024

// readChunk is how much Run asks the connection for at a time.
const readChunk = 256

// Handler is the receive interrupt handler. An error stops the port.
type Handler func() error

// Option configures a Port.
type Option func(*Port)

// WithRxSize sets the receive ring capacity.
func WithRxSize(n int) Option {
	return func(p *Port) {
		if n > 0 {
			p.rxSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Port) {
		p.log = log
	}
}

// Port is a UART over a byte stream connection. It implements
// link.ByteSource.
type Port struct {
	conn io.ReadWriteCloser
	name string

	mu      sync.Mutex
	rx      []byte
	rxSize  int
	status  link.Status
	dropped uint64

	txBusy  atomic.Bool
	handler Handler
	log     zerolog.Logger
}

// NewPort wraps conn. name is used in log messages only.
func NewPort(conn io.ReadWriteCloser, name string, opts ...Option) *Port {
	p := &Port{
		conn:   conn,
		name:   name,
		rxSize: DefaultRxSize,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the description given to NewPort.
func (p *Port) Name() string {
	return p.name
}

// Attach sets the receive interrupt handler. Call before Run.
func (p *Port) Attach(h Handler) {
	p.handler = h
}

// TryReadByte implements link.ByteSource.
func (p *Port) TryReadByte() (byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) == 0 {
		return 0, false
	}
	c := p.rx[0]
	p.rx = p.rx[1:]
	return c, true
}

// TransmitReady implements link.ByteSource. It is false while a write is in
// flight.
func (p *Port) TransmitReady() bool {
	return !p.txBusy.Load()
}

// WriteByte implements link.ByteSource.
func (p *Port) WriteByte(c byte) error {
	p.txBusy.Store(true)
	defer p.txBusy.Store(false)

	if _, err := p.conn.Write([]byte{c}); err != nil {
		return fmt.Errorf("%s: write: %w", p.name, err)
	}
	return nil
}

// Status implements link.ByteSource.
func (p *Port) Status() link.Status {
	p.mu.Lock()
	s := p.status
	p.mu.Unlock()
	if !p.txBusy.Load() {
		s |= link.StatusTransmitEmpty
	}
	return s
}

// ClearStatus implements link.ByteSource.
func (p *Port) ClearStatus(mask link.Status) {
	p.mu.Lock()
	p.status &^= mask
	p.mu.Unlock()
}

// Dropped returns how many received bytes were lost to a full ring.
func (p *Port) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// receive appends data to the ring and raises the receive flag. Bytes that
// do not fit are dropped and flagged as an overrun.
func (p *Port) receive(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	room := p.rxSize - len(p.rx)
	if room < len(data) {
		lost := len(data) - max(room, 0)
		p.dropped += uint64(lost)
		p.status |= link.StatusOverrun
		p.log.Warn().Str("port", p.name).Int("dropped", lost).Msg("receive ring full")
		data = data[:max(room, 0)]
	}
	p.rx = append(p.rx, data...)
	if len(p.rx) > 0 {
		p.status |= link.StatusReceiveFull
	}
}

// Run reads the connection until ctx is done, the connection fails or the
// handler returns an error. The handler runs on Run's goroutine, so it is
// never entered twice at once. The connection is closed on return.
func (p *Port) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.conn.Close()
		case <-done:
		}
	}()
	defer p.conn.Close()

	buf := make([]byte, readChunk)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			p.receive(buf[:n])
			if p.handler != nil {
				if herr := p.handler(); herr != nil {
					return fmt.Errorf("%s: interrupt handler: %w", p.name, herr)
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
				return fmt.Errorf("%s: %w", p.name, ErrConnectionClosed)
			}
			return fmt.Errorf("%s: read: %w", p.name, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
