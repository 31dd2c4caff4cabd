// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/rylink/pkg/config"
	"github.com/Thermoquad/rylink/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Link flags
	framing     string
	capturePath string
	mqttBroker  string
	metricsAddr string

	// Resolved in PersistentPreRunE
	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rylink",
	Short: "RYLR896 LoRa modem link controller",
	Long: `rylink - Drive a REYAX RYLR896 LoRa modem over a UART.

Received bytes are collected into frames by an interrupt-style handler and
parsed by a lower priority task. The command sequencer configures the modem
(network id, address, RF parameters) on a fixed schedule.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the RYLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Settings can be loaded from a TOML file with --config; flags given on the
command line override the file.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, disabled)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Link flags
	rootCmd.PersistentFlags().StringVar(&framing, "framing", "fixed", "Frame completion policy: fixed[:size] or sentinel")
	rootCmd.PersistentFlags().StringVar(&capturePath, "capture", "", "Append traffic to a capture file")
	rootCmd.PersistentFlags().StringVar(&mqttBroker, "mqtt", "", "MQTT broker URL to forward traffic to")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
}

// loadSettings resolves the configuration file, applies flags that were set
// explicitly and configures logging.
func loadSettings(cmd *cobra.Command, args []string) error {
	cfg = config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.WebSocket.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.WebSocket.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("framing") {
		cfg.Buffer.Framing = framing
	}
	if flags.Changed("capture") {
		cfg.Capture.Path = capturePath
	}
	if flags.Changed("mqtt") {
		cfg.MQTT.Broker = mqttBroker
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	logger = logging.Configure(logging.ProfileRuntime)
	if logLevel != "" {
		l, ok := logging.SetLevel(logger, logLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", logLevel)
		}
		logger = l
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
