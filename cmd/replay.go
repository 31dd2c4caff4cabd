// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/rylink/pkg/capture"
	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/spf13/cobra"
)

var (
	replayResend bool
	replayFast   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print the contents of a capture file",
	Long: `Read a capture file written with --capture and print every received frame
and transmitted command with its original timestamp.

With --resend, transmitted commands are written to the connection again,
spaced as they were recorded (or back to back with --fast).`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayResend, "resend", false, "Transmit recorded commands again")
	replayCmd.Flags().BoolVar(&replayFast, "fast", false, "Do not wait between resent commands")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tx *link.Transmitter
	if replayResend {
		port, err := openPort()
		if err != nil {
			return err
		}
		discardInput(port)
		go port.Run(ctx)
		tx = link.NewTransmitter(port, nil, logger)
	}

	out := cmd.OutOrStdout()
	r := capture.NewReader(f)
	var (
		count, corrupt, resent int
		last                   time.Time
	)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, capture.ErrChecksum) {
			corrupt++
			logger.Warn().Err(err).Msg("skipping record")
			continue
		}
		if err != nil {
			return err
		}
		count++

		switch rec.Dir {
		case capture.DirRx:
			fmt.Fprint(out, rylr.FormatFrame(rec.Data, rec.At()))
		case capture.DirTx:
			fmt.Fprintf(out, "[%s] TX %q\n\n", rec.At().Format("15:04:05.000"), rec.Data)
			if tx == nil {
				continue
			}
			if !replayFast && !last.IsZero() {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(rec.At().Sub(last)):
				}
			}
			last = rec.At()
			if _, err := tx.Send(string(rec.Data)); err != nil {
				return err
			}
			resent++
		}

		if ctx.Err() != nil {
			break
		}
	}

	fmt.Fprintf(out, "%d records", count)
	if corrupt > 0 {
		fmt.Fprintf(out, ", %d corrupt", corrupt)
	}
	if replayResend {
		fmt.Fprintf(out, ", %d resent", resent)
	}
	fmt.Fprintln(out)
	return nil
}
