// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link is the UART side of the radio link: interrupt-driven byte
// ingestion into a shared frame buffer, a lower priority parse task that
// drains it, and a command sequencer that configures the modem through a
// busy-polling transmitter.
package link

import "strings"

// Status is the byte source's status register.
type Status uint8

const (
	StatusReceiveFull Status = 1 << iota
	StatusTransmitEmpty
	StatusOverrun
)

func (s Status) String() string {
	if s == 0 {
		return "0"
	}
	var parts []string
	if s&StatusReceiveFull != 0 {
		parts = append(parts, "RECEIVE_FULL")
	}
	if s&StatusTransmitEmpty != 0 {
		parts = append(parts, "TRANSMIT_EMPTY")
	}
	if s&StatusOverrun != 0 {
		parts = append(parts, "OVERRUN")
	}
	return strings.Join(parts, "|")
}

// ByteSource is the narrow view of a UART the link needs.
type ByteSource interface {
	// TryReadByte returns the next received byte, or false when empty.
	TryReadByte() (byte, bool)
	// TransmitReady reports whether WriteByte may be called.
	TransmitReady() bool
	// WriteByte transmits one byte.
	WriteByte(c byte) error
	Status() Status
	ClearStatus(mask Status)
}
