// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/logging"
	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/spf13/cobra"
)

var listenChars bool

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Display received frames in human-readable format",
	Long: `Receive only: collect frames from the modem and print each one as it is
parsed, with its timestamp and decoded response.

The command sequencer is not started and nothing is transmitted.

Supports both serial and WebSocket connections.`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().BoolVar(&listenChars, "chars", false, "Also log every received character")
}

// framePrinter prints parsed frames to out.
type framePrinter struct {
	link.NopObserver
	mu  sync.Mutex
	out io.Writer
}

func (p *framePrinter) FrameParsed(f link.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, rylr.FormatFrame(f.Data, f.At))
	if f.Overrun {
		fmt.Fprintln(p.out, "  (buffer wrapped: frame incomplete)")
	}
}

func runListen(cmd *cobra.Command, args []string) error {
	opts := sessionOptions{
		observers: []link.Observer{&framePrinter{out: os.Stdout}},
	}
	if listenChars {
		opts.diag = logging.CharSink{Log: logger}
	}

	s, err := newSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Printf("rylink - Frame Log\n")
	fmt.Printf("Connection: %s\n", s.port.Name())
	if f, err := cfg.Framing(); err == nil {
		fmt.Printf("Framing: %s\n", f)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	err = s.run(context.Background())
	fmt.Print(s.stats.String())
	return err
}
