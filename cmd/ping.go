// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/spf13/cobra"
)

var (
	pingTimeout time.Duration
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the modem by sending AT and waiting for +OK",
	Long: `Send the AT test command and wait for the modem to answer +OK.

Replies are short, so unless --framing is given the link uses sentinel
framing for this command.

This is useful for verifying:
  - the connection is established
  - the baud rate matches the modem
  - commands are transmitted and answered

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 2*time.Second, "Timeout for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

// lineCollector reassembles modem lines from parsed frames, which may
// split or join lines depending on the framing.
type lineCollector struct {
	link.NopObserver
	pending []byte
	lines   chan rylr.Response
}

func newLineCollector() *lineCollector {
	return &lineCollector{lines: make(chan rylr.Response, 16)}
}

// FrameParsed runs on the scheduler goroutine only.
func (c *lineCollector) FrameParsed(f link.Frame) {
	c.pending = append(c.pending, f.Data...)
	for {
		i := bytes.Index(c.pending, []byte(rylr.Terminator))
		if i < 0 {
			return
		}
		line := c.pending[:i]
		c.pending = c.pending[i+len(rylr.Terminator):]
		if len(line) == 0 {
			continue
		}
		resp, err := rylr.ParseResponse(line)
		if err != nil {
			continue
		}
		select {
		case c.lines <- resp:
		default:
		}
	}
}

func runPing(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("framing") {
		cfg.Buffer.Framing = "sentinel"
	}

	lines := newLineCollector()
	s, err := newSession(sessionOptions{observers: []link.Observer{lines}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	fmt.Printf("rylink - Modem Ping\n")
	fmt.Printf("Connection: %s\n", s.port.Name())
	fmt.Printf("Timeout: %s per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0

ping:
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		if err := s.link.Send(rylr.Test()); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		timeout := time.After(pingTimeout)
	wait:
		for {
			select {
			case resp := <-lines.lines:
				switch resp.Kind {
				case rylr.KindOK:
					fmt.Printf("+OK, rtt=%v\n", time.Since(startTime).Round(time.Millisecond))
					successCount++
					break wait
				case rylr.KindError:
					fmt.Printf("+ERR=%d %s\n", resp.Code, rylr.ErrorDescription(resp.Code))
					failCount++
					break wait
				}
				// Ignore receptions and other unsolicited lines

			case err := <-done:
				fmt.Printf("LINK FAILED: %v\n", err)
				failCount += pingCount - i + 1
				break ping

			case <-timeout:
				fmt.Printf("TIMEOUT (no response in %s)\n", pingTimeout)
				failCount++
				break wait
			}
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
