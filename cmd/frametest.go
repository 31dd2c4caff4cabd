// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/spf13/cobra"
)

var frameTestTimeout time.Duration

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test the connection by waiting for a valid modem response",
	Long: `Wait for a frame that decodes as a modem response until timeout.

Frames that do not decode are counted and skipped. Nothing is transmitted.

Exit codes:
  0 - Response received before timeout
  1 - Timeout reached without receiving a valid response
  2 - Connection error`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().DurationVar(&frameTestTimeout, "timeout", 10*time.Second, "How long to wait for a response")
}

// firstResponse reports the first frame that decodes.
type firstResponse struct {
	link.NopObserver
	invalid int
	found   chan rylr.Response
}

// FrameParsed runs on the scheduler goroutine only.
func (f *firstResponse) FrameParsed(frame link.Frame) {
	resp, err := rylr.ParseResponse(frame.Data)
	if err != nil || resp.Kind == rylr.KindUnknown {
		f.invalid++
		return
	}
	if f.invalid > 0 {
		fmt.Printf("(skipped %d invalid frames)\n", f.invalid)
		f.invalid = 0
	}
	select {
	case f.found <- resp:
	default:
	}
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	waiter := &firstResponse{found: make(chan rylr.Response, 1)}
	s, err := newSession(sessionOptions{observers: []link.Observer{waiter}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	fmt.Printf("rylink - Frame Test\n")
	fmt.Printf("Connection: %s\n", s.port.Name())
	fmt.Printf("Timeout: %s\n", frameTestTimeout)
	fmt.Printf("Waiting for a valid modem response...\n\n")

	select {
	case resp := <-waiter.found:
		fmt.Printf("SUCCESS: Received valid response\n")
		fmt.Printf("  Kind: %s\n", resp.Kind)
		fmt.Printf("  Length: %d bytes\n", len(resp.Raw))
		if r := resp.Reception; r != nil {
			fmt.Printf("  From: %d (RSSI %d dBm, SNR %d)\n", r.Address, r.RSSI, r.SNR)
		}
		return nil

	case err := <-done:
		fmt.Fprintf(os.Stderr, "Link error: %v\n", err)
		os.Exit(2)

	case <-time.After(frameTestTimeout):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid response received within %s\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}
