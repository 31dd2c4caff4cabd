// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rylr implements the AT command set and response lines of the
// REYAX RYLR896 LoRa UART modem.
//
// Commands are ASCII lines terminated by CR LF. The modem answers with
// +OK, +ERR=<code>, +READY, or delivers received radio payloads as
// +RECV=<address>,<length>,<data>,<rssi>,<snr>.
package rylr

import (
	"fmt"
	"strconv"
	"strings"
)

// Terminator ends every command line.
const Terminator = "\r\n"

// Field limits
const (
	MaxNetworkID   = 16
	MaxPayloadSize = 240
)

// Command builds an AT command line. With no arguments the line is a query
// or plain command ("AT+NAME"); otherwise "AT+NAME=a,b,c".
func Command(name string, args ...string) string {
	var b strings.Builder
	b.WriteString("AT")
	if name != "" {
		b.WriteString("+")
		b.WriteString(name)
	}
	if len(args) > 0 {
		b.WriteString("=")
		b.WriteString(strings.Join(args, ","))
	}
	b.WriteString(Terminator)
	return b.String()
}

// Test creates the bare AT probe. The modem answers +OK.
func Test() string {
	return Command("")
}

// NetworkID creates AT+NETWORKID. Radios must share a network id to talk.
func NetworkID(id uint8) (string, error) {
	if id > MaxNetworkID {
		return "", fmt.Errorf("network id %d out of range (0-%d)", id, MaxNetworkID)
	}
	return Command("NETWORKID", strconv.Itoa(int(id))), nil
}

// Address creates AT+ADDRESS, the transceiver's own address.
func Address(addr uint16) string {
	return Command("ADDRESS", strconv.Itoa(int(addr)))
}

// Parameters are the RF parameters set by AT+PARAMETER.
type Parameters struct {
	SpreadingFactor uint8 // 7-12
	Bandwidth       uint8 // 0-9
	CodingRate      uint8 // 1-4
	Preamble        uint8 // 4-7
}

// DefaultParameters are the values the link is configured with at start up.
var DefaultParameters = Parameters{SpreadingFactor: 8, Bandwidth: 7, CodingRate: 4, Preamble: 7}

// Validate checks every field against the modem's accepted range.
func (p Parameters) Validate() error {
	switch {
	case p.SpreadingFactor < 7 || p.SpreadingFactor > 12:
		return fmt.Errorf("spreading factor %d out of range (7-12)", p.SpreadingFactor)
	case p.Bandwidth > 9:
		return fmt.Errorf("bandwidth %d out of range (0-9)", p.Bandwidth)
	case p.CodingRate < 1 || p.CodingRate > 4:
		return fmt.Errorf("coding rate %d out of range (1-4)", p.CodingRate)
	case p.Preamble < 4 || p.Preamble > 7:
		return fmt.Errorf("preamble %d out of range (4-7)", p.Preamble)
	}
	return nil
}

// String renders the parameters as the command argument list.
func (p Parameters) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", p.SpreadingFactor, p.Bandwidth, p.CodingRate, p.Preamble)
}

// ParseParameters parses "SF,BW,CR,PP".
func ParseParameters(s string) (Parameters, error) {
	fields := strings.Split(strings.TrimSpace(s), ",")
	if len(fields) != 4 {
		return Parameters{}, fmt.Errorf("parameter %q: expected 4 comma separated values", s)
	}
	var vals [4]uint8
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
		if err != nil {
			return Parameters{}, fmt.Errorf("parameter %q: %w", s, err)
		}
		vals[i] = uint8(v)
	}
	p := Parameters{SpreadingFactor: vals[0], Bandwidth: vals[1], CodingRate: vals[2], Preamble: vals[3]}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// Parameter creates AT+PARAMETER.
func Parameter(p Parameters) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return Command("PARAMETER", p.String()), nil
}

// Send creates AT+SEND, transmitting data to addr (0 broadcasts).
func Send(addr uint16, data string) (string, error) {
	if len(data) > MaxPayloadSize {
		return "", fmt.Errorf("payload too large: %d bytes (max %d)", len(data), MaxPayloadSize)
	}
	return Command("SEND", strconv.Itoa(int(addr)), strconv.Itoa(len(data)), data), nil
}
