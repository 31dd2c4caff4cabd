// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the rylink TOML configuration file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/Thermoquad/rylink/pkg/uart"
)

// Duration is a time.Duration written as a string ("30s", "1m20s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Serial struct {
	Port string `toml:"port"`
	Baud int    `toml:"baud"`
}

type WebSocket struct {
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	NoSSLVerify bool   `toml:"no_ssl_verify"`
}

type Buffer struct {
	Capacity  int    `toml:"capacity"`
	Framing   string `toml:"framing"`
	FrameSize int    `toml:"frame_size"`
}

type Sequencer struct {
	Enabled      bool     `toml:"enabled"`
	InitialDelay Duration `toml:"initial_delay"`
	StepDelay    Duration `toml:"step_delay"`
	NetworkID    uint8    `toml:"network_id"`
	Address      uint16   `toml:"address"`
	Parameter    string   `toml:"parameter"`
}

type Heartbeat struct {
	Interval Duration `toml:"interval"`
}

type Capture struct {
	Path string `toml:"path"`
}

type MQTT struct {
	Broker   string `toml:"broker"`
	Topic    string `toml:"topic"`
	ClientID string `toml:"client_id"`
}

type Metrics struct {
	Addr string `toml:"addr"`
}

// Config is the whole file.
type Config struct {
	Serial    Serial    `toml:"serial"`
	WebSocket WebSocket `toml:"websocket"`
	Buffer    Buffer    `toml:"buffer"`
	Sequencer Sequencer `toml:"sequencer"`
	Heartbeat Heartbeat `toml:"heartbeat"`
	Capture   Capture   `toml:"capture"`
	MQTT      MQTT      `toml:"mqtt"`
	Metrics   Metrics   `toml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Serial: Serial{Baud: uart.DefaultBaudRate},
		Buffer: Buffer{
			Capacity:  link.DefaultCapacity,
			Framing:   "fixed",
			FrameSize: link.DefaultFrameSize,
		},
		Sequencer: Sequencer{
			Enabled:      true,
			InitialDelay: Duration{link.DefaultInitialDelay},
			StepDelay:    Duration{link.DefaultStepDelay},
			NetworkID:    2,
			Address:      2,
			Parameter:    rylr.DefaultParameters.String(),
		},
		Heartbeat: Heartbeat{Interval: Duration{link.DefaultHeartbeatInterval}},
		MQTT:      MQTT{Topic: "rylink"},
	}
}

// Load reads path on top of the defaults and validates the result. Keys
// missing from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values that cannot be checked by decoding alone.
func (c Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if _, err := c.Link(); err != nil {
		return err
	}
	if c.Heartbeat.Interval.Duration < 0 {
		return fmt.Errorf("heartbeat.interval must not be negative")
	}
	if c.MQTT.Broker != "" && strings.TrimSpace(c.MQTT.Topic) == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt.broker is set")
	}
	return nil
}

// Framing resolves the [buffer] framing settings.
func (c Config) Framing() (link.Framing, error) {
	f, err := link.ParseFraming(c.Buffer.Framing)
	if err != nil {
		return link.Framing{}, fmt.Errorf("buffer.framing: %w", err)
	}
	if f.Mode == link.FramingFixed && !strings.Contains(c.Buffer.Framing, ":") {
		f.Size = c.Buffer.FrameSize
	}
	return f, nil
}

// Program builds the sequencer's commands from [sequencer].
func (c Config) Program() (link.Program, error) {
	netID, err := rylr.NetworkID(c.Sequencer.NetworkID)
	if err != nil {
		return link.Program{}, fmt.Errorf("sequencer.network_id: %w", err)
	}
	params, err := rylr.ParseParameters(c.Sequencer.Parameter)
	if err != nil {
		return link.Program{}, fmt.Errorf("sequencer.parameter: %w", err)
	}
	param, err := rylr.Parameter(params)
	if err != nil {
		return link.Program{}, fmt.Errorf("sequencer.parameter: %w", err)
	}
	return link.Program{
		NetworkID: netID,
		Address:   rylr.Address(c.Sequencer.Address),
		Parameter: param,
	}, nil
}

// Link converts the file into the core link configuration.
func (c Config) Link() (link.Config, error) {
	framing, err := c.Framing()
	if err != nil {
		return link.Config{}, err
	}
	if c.Buffer.Capacity <= 0 {
		return link.Config{}, fmt.Errorf("buffer.capacity must be positive, got %d", c.Buffer.Capacity)
	}
	if err := framing.Validate(c.Buffer.Capacity); err != nil {
		return link.Config{}, fmt.Errorf("buffer: %w", err)
	}
	program, err := c.Program()
	if err != nil {
		return link.Config{}, err
	}
	if c.Sequencer.InitialDelay.Duration < 0 || c.Sequencer.StepDelay.Duration < 0 {
		return link.Config{}, fmt.Errorf("sequencer delays must not be negative")
	}
	return link.Config{
		Capacity:          c.Buffer.Capacity,
		Framing:           framing,
		Program:           program,
		Sequence:          c.Sequencer.Enabled,
		InitialDelay:      c.Sequencer.InitialDelay.Duration,
		StepDelay:         c.Sequencer.StepDelay.Duration,
		HeartbeatInterval: c.Heartbeat.Interval.Duration,
	}, nil
}
