// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Transmitter writes commands to the byte source one byte at a time.
type Transmitter struct {
	mu       sync.Mutex // exclusive use of the transmit side
	src      ByteSource
	observer Observer
	log      zerolog.Logger
}

// NewTransmitter creates a transmitter on src.
func NewTransmitter(src ByteSource, observer Observer, log zerolog.Logger) *Transmitter {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Transmitter{src: src, observer: observer, log: log}
}

// Send truncates every character of cmd to a byte and writes it, spinning
// until the source is ready before each byte. It stops at the first zero
// byte and returns the number of bytes written.
func (t *Transmitter) Send(cmd string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, r := range cmd {
		c := byte(r)
		if c == 0 {
			break
		}
		for !t.src.TransmitReady() {
		}
		if err := t.src.WriteByte(c); err != nil {
			return n, fmt.Errorf("write byte %d of %q: %w", n, cmd, err)
		}
		n++
	}
	return n, nil
}

// Run is the send task body; arg is the command string.
func (t *Transmitter) Run(ctx context.Context, arg any) error {
	cmd, ok := arg.(string)
	if !ok {
		return fmt.Errorf("send task: expected string argument, got %T", arg)
	}

	t.log.Info().Msg("Sending...")
	n, err := t.Send(cmd)
	if err != nil {
		return err
	}
	t.observer.CommandSent(cmd, n)
	t.log.Info().Str("command", strings.TrimRight(cmd, "\r\n")).Int("bytes", n).Msg("Successfully sent")
	return nil
}
