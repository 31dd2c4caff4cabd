// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rylr

import (
	"fmt"
	"strings"
	"time"
)

// FormatFrame formats a received frame into a human-readable string
func FormatFrame(data []byte, at time.Time) string {
	timestamp := at.Format("15:04:05.000")

	resp, err := ParseResponse(data)
	if err != nil {
		return fmt.Sprintf("[%s] MALFORMED len=%d (%v)\n", timestamp, len(data), err) + formatHex(data)
	}

	switch resp.Kind {
	case KindReceive:
		rx := resp.Reception
		return fmt.Sprintf("[%s] RECV addr=%d len=%d rssi=%d dBm snr=%d\n  Data: %q\n",
			timestamp, rx.Address, rx.Length, rx.RSSI, rx.SNR, rx.Data)
	case KindError:
		return fmt.Sprintf("[%s] ERR code=%d (%s)\n", timestamp, resp.Code, ErrorDescription(resp.Code))
	case KindOK, KindReady:
		return fmt.Sprintf("[%s] %s\n", timestamp, resp.Kind)
	}

	// Default: printable text plus hex dump
	return fmt.Sprintf("[%s] FRAME len=%d %q\n", timestamp, len(data), data) + formatHex(data)
}

// ErrorDescription returns the modem's meaning for a +ERR code
func ErrorDescription(code int) string {
	switch code {
	case 1:
		return "missing CR LF terminator"
	case 2:
		return "command does not start with AT"
	case 3:
		return "missing '=' in AT command"
	case 4:
		return "unknown command"
	case 10:
		return "TX timeout"
	case 11:
		return "RX timeout"
	case 12:
		return "CRC error"
	case 13:
		return "TX data longer than 240 bytes"
	case 15:
		return "unknown error"
	default:
		return "unrecognised error code"
	}
}

func formatHex(data []byte) string {
	var b strings.Builder
	b.WriteString("  Hex: ")
	for i, c := range data {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n       ")
		}
		fmt.Fprintf(&b, "%02X ", c)
	}
	b.WriteString("\n")
	return b.String()
}
