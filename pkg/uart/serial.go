// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uart

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the RYLR896 factory setting.
const DefaultBaudRate = 115200

// serialReadTimeout bounds each Read so Run notices cancellation.
const serialReadTimeout = 100 * time.Millisecond

// OpenSerial opens a serial port at baud, 8N1.
func OpenSerial(portName string, baud int, opts ...Option) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	sp, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := sp.SetReadTimeout(serialReadTimeout); err != nil {
		sp.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	return NewPort(sp, fmt.Sprintf("Serial: %s @ %d baud", portName, baud), opts...), nil
}

// ListPorts returns the serial ports on this host, without Bluetooth ports.
func ListPorts() ([]string, error) {
	all, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, p := range all {
		if !isBluetoothPort(p) {
			ports = append(ports, p)
		}
	}
	sort.Strings(ports)
	return ports, nil
}

func isBluetoothPort(name string) bool {
	low := strings.ToLower(name)
	if strings.Contains(low, "bluetooth-incoming-port") {
		return true
	}
	return strings.Contains(low, "bluetooth") && !strings.Contains(low, "usb")
}
