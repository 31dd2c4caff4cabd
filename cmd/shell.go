// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell [command...]",
	Short: "Interactive shell for ad-hoc AT commands",
	Long: `Open the link without the sequencer and read commands from an interactive
shell. Received frames are printed as they arrive.

With arguments, the arguments are run as a single shell command and the
shell exits, e.g.:

  rylink shell networkid 6`,
	RunE: runShell,
}

var shellWait time.Duration

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().DurationVar(&shellWait, "wait", 2*time.Second, "How long a one-shot command keeps listening for the response")
}

const linkKey = "$link"

// linkShell holds what the shell commands operate on.
type linkShell struct {
	sess *session
}

func linkFrom(c *ishell.Context) *linkShell {
	return c.Get(linkKey).(*linkShell)
}

// submit queues cmd on the link and echoes it.
func submit(c *ishell.Context, cmd string, err error) {
	if err != nil {
		c.Err(err)
		return
	}
	if err := linkFrom(c).sess.link.Send(cmd); err != nil {
		c.Err(err)
		return
	}
	c.Printf("queued %s\n", strings.TrimSpace(cmd))
}

var shellCommands = []*ishell.Cmd{
	{
		Name: "test",
		Help: "send AT",
		Func: func(c *ishell.Context) {
			submit(c, rylr.Test(), nil)
		},
	},
	{
		Name: "at",
		Help: "RAW - send AT+RAW, e.g. at VER?",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("usage: at COMMAND"))
				return
			}
			submit(c, "AT+"+strings.Join(c.Args, " ")+rylr.Terminator, nil)
		},
	},
	{
		Name:    "networkid",
		Aliases: []string{"nid"},
		Help:    "ID - set the network id (0-16)",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: networkid ID"))
				return
			}
			id, err := strconv.ParseUint(c.Args[0], 10, 8)
			if err != nil {
				c.Err(fmt.Errorf("invalid network id %q", c.Args[0]))
				return
			}
			cmd, err := rylr.NetworkID(uint8(id))
			submit(c, cmd, err)
		},
	},
	{
		Name:    "address",
		Aliases: []string{"addr"},
		Help:    "ADDR - set the module address (0-65535)",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: address ADDR"))
				return
			}
			addr, err := strconv.ParseUint(c.Args[0], 10, 16)
			if err != nil {
				c.Err(fmt.Errorf("invalid address %q", c.Args[0]))
				return
			}
			submit(c, rylr.Address(uint16(addr)), nil)
		},
	},
	{
		Name:    "parameter",
		Aliases: []string{"param"},
		Help:    "SF,BW,CR,PP - set the RF parameters",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: parameter SF,BW,CR,PP"))
				return
			}
			p, err := rylr.ParseParameters(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			cmd, err := rylr.Parameter(p)
			submit(c, cmd, err)
		},
	},
	{
		Name: "send",
		Help: "ADDR DATA - transmit DATA to ADDR over the air",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("usage: send ADDR DATA"))
				return
			}
			addr, err := strconv.ParseUint(c.Args[0], 10, 16)
			if err != nil {
				c.Err(fmt.Errorf("invalid address %q", c.Args[0]))
				return
			}
			cmd, err := rylr.Send(uint16(addr), strings.Join(c.Args[1:], " "))
			submit(c, cmd, err)
		},
	},
	{
		Name: "stats",
		Help: "print link statistics",
		Func: func(c *ishell.Context) {
			c.Print(linkFrom(c).sess.stats.String())
		},
	},
	{
		Name: "reset",
		Help: "reset link statistics",
		Func: func(c *ishell.Context) {
			linkFrom(c).sess.stats.Reset()
			c.Println("Statistics reset")
		},
	},
}

func runShell(cmd *cobra.Command, args []string) error {
	s, err := newSession(sessionOptions{
		observers: []link.Observer{&framePrinter{out: os.Stdout}},
	})
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	sh := ishell.New()
	sh.Set(linkKey, &linkShell{sess: s})
	sh.SetPrompt(s.port.Name() + " > ")
	for _, c := range shellCommands {
		sh.AddCmd(c)
	}

	if len(args) > 0 {
		err = sh.Process(args...)
		select {
		case <-time.After(shellWait):
		case runErr := <-done:
			return runErr
		}
	} else {
		sh.Printf("Connected to %s. Type help for commands.\n", s.port.Name())
		sh.Run()
	}
	sh.Close()

	cancel()
	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}
