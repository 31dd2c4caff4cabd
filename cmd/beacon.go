// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/uart"
	"github.com/spf13/cobra"
)

var (
	beaconWord  string
	beaconDelay time.Duration
	beaconCount int
)

var beaconCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Repeatedly transmit a fixed word",
	Long: `Transmit a word one byte at a time, waiting for the transmitter before
each byte, then pause before sending it again.

The default word is a +RECV line of exactly the default fixed frame size,
so a second rylink instance running "listen" on the other end of the cable
sees one complete frame per transmission.`,
	RunE: runBeacon,
}

func init() {
	rootCmd.AddCommand(beaconCmd)
	beaconCmd.Flags().StringVar(&beaconWord, "word", "+RECV=0,8,COMMANDS,-54,40", "Word to transmit")
	beaconCmd.Flags().DurationVar(&beaconDelay, "delay", 10*time.Second, "Pause after each complete transmission")
	beaconCmd.Flags().IntVar(&beaconCount, "count", 0, "Number of transmissions (0 = forever)")
}

func runBeacon(cmd *cobra.Command, args []string) error {
	if beaconWord == "" {
		return fmt.Errorf("--word must not be empty")
	}

	port, err := openPort()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	discardInput(port)
	portDone := make(chan error, 1)
	go func() { portDone <- port.Run(ctx) }()

	tx := link.NewTransmitter(port, nil, logger)
	logger.Info().Str("connection", port.Name()).Str("word", beaconWord).Dur("delay", beaconDelay).Msg("beacon started")

	for sent := 0; beaconCount == 0 || sent < beaconCount; sent++ {
		n, err := tx.Send(beaconWord)
		if err != nil {
			return err
		}
		logger.Info().Int("size", n).Msgf("%s was sent!", beaconWord)

		select {
		case <-ctx.Done():
			return nil
		case err := <-portDone:
			return portStopped(err)
		case <-time.After(beaconDelay):
		}
	}
	return nil
}

// portStopped maps the port's exit to the command result: a closed
// connection ends the beacon quietly, anything else is an error.
func portStopped(err error) error {
	if err == nil || errors.Is(err, uart.ErrConnectionClosed) || errors.Is(err, context.Canceled) {
		logger.Info().Msg("Connection closed")
		return nil
	}
	return fmt.Errorf("port: %w", err)
}
