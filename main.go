// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// rylink - REYAX RYLR896 LoRa modem link controller
//
// A CLI tool that receives modem frames over a UART, logs them in
// human-readable format and configures the modem with a timed AT
// command sequence.

package main

import (
	"os"

	"github.com/Thermoquad/rylink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
