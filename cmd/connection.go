// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/uart"
	"golang.org/x/term"
)

// getPassword retrieves password from environment or prompts user
func getPassword() (string, error) {
	if pw := os.Getenv("RYLINK_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal: read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// openPort opens either a WebSocket or a serial connection from the
// resolved settings.
func openPort() (*uart.Port, error) {
	opts := []uart.Option{uart.WithLogger(logger)}

	if cfg.WebSocket.URL != "" {
		password := ""
		if cfg.WebSocket.Username != "" {
			var err error
			password, err = getPassword()
			if err != nil {
				return nil, err
			}
		}
		return uart.OpenWebSocket(cfg.WebSocket.URL, cfg.WebSocket.Username, password, cfg.WebSocket.NoSSLVerify, opts...)
	}

	if cfg.Serial.Port != "" {
		return uart.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud, opts...)
	}

	return nil, fmt.Errorf("either --port or --url must be specified")
}

// discardInput drains and drops whatever the port receives, for commands
// that only transmit.
func discardInput(port *uart.Port) {
	port.Attach(func() error {
		for {
			if _, ok := port.TryReadByte(); !ok {
				break
			}
		}
		port.ClearStatus(link.StatusReceiveFull)
		return nil
	})
}
