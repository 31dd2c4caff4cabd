// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/logging"
	"github.com/spf13/cobra"
)

var runNoSequence bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the link controller with the command sequencer",
	Long: `Run the full controller: receive frames, log every received character,
and configure the modem with the command sequencer.

The sequencer waits the initial delay (30s by default), then sends one
command per step (80s by default):

  AT+NETWORKID=<id>
  AT+ADDRESS=<addr>
  AT+PARAMETER=<sf>,<bw>,<cr>,<pp>

after which it keeps its schedule without sending anything further.

A heartbeat line with link statistics is logged every heartbeat interval.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runNoSequence, "no-sequence", false, "Do not run the command sequencer")
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := newSession(sessionOptions{
		sequence:  !runNoSequence,
		heartbeat: true,
		diag:      logging.CharSink{Log: logger},
		observers: []link.Observer{&framePrinter{out: cmd.OutOrStdout()}},
	})
	if err != nil {
		return err
	}
	defer s.close()

	logger.Info().
		Str("connection", s.port.Name()).
		Bool("sequence", cfg.Sequencer.Enabled && !runNoSequence).
		Msg("rylink running")

	err = s.run(context.Background())
	fmt.Fprint(cmd.OutOrStdout(), s.stats.String())
	return err
}
