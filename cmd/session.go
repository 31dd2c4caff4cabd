// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/Thermoquad/rylink/pkg/bridge"
	"github.com/Thermoquad/rylink/pkg/capture"
	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/Thermoquad/rylink/pkg/telemetry"
	"github.com/Thermoquad/rylink/pkg/uart"
)

// sessionOptions select what a command wires around the link.
type sessionOptions struct {
	sequence  bool
	heartbeat bool
	diag      link.Diagnostic
	observers []link.Observer
}

// session is one open port with a link and its optional sinks.
type session struct {
	port    *uart.Port
	link    *link.Link
	stats   *telemetry.Statistics
	metrics *telemetry.Metrics
	capture *capture.Writer
	bridge  *bridge.Publisher
}

func newSession(opts sessionOptions) (*session, error) {
	linkCfg, err := cfg.Link()
	if err != nil {
		return nil, err
	}
	linkCfg.Sequence = linkCfg.Sequence && opts.sequence
	if !opts.heartbeat {
		linkCfg.HeartbeatInterval = 0
	}

	s := &session{stats: telemetry.NewStatistics()}
	linkOpts := []link.Option{
		link.WithLogger(logger),
		link.WithObserver(s.stats),
		link.WithSummary(telemetry.Brief{Statistics: s.stats}),
	}
	if opts.diag != nil {
		linkOpts = append(linkOpts, link.WithDiagnostic(opts.diag))
	}
	for _, o := range opts.observers {
		linkOpts = append(linkOpts, link.WithObserver(o))
	}

	if cfg.Metrics.Addr != "" {
		s.metrics = telemetry.NewMetrics()
		linkOpts = append(linkOpts, link.WithObserver(s.metrics))
	}
	if cfg.Capture.Path != "" {
		w, err := capture.Create(cfg.Capture.Path)
		if err != nil {
			return nil, err
		}
		s.capture = w
		linkOpts = append(linkOpts, link.WithObserver(w))
	}
	if cfg.MQTT.Broker != "" {
		p, err := bridge.Dial(cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.ClientID, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.bridge = p
		linkOpts = append(linkOpts, link.WithObserver(p))
	}

	s.port, err = openPort()
	if err != nil {
		s.close()
		return nil, err
	}

	s.link, err = link.New(s.port, linkCfg, linkOpts...)
	if err != nil {
		s.close()
		return nil, err
	}
	s.port.Attach(s.link.HandleInterrupt)

	if s.bridge != nil {
		err := s.bridge.Subscribe(func(cmd string) {
			if !strings.HasSuffix(cmd, rylr.Terminator) {
				cmd += rylr.Terminator
			}
			if err := s.link.Send(cmd); err != nil {
				logger.Warn().Err(err).Str("command", strings.TrimSpace(cmd)).Msg("dropped MQTT command")
			}
		})
		if err != nil {
			s.close()
			return nil, fmt.Errorf("subscribe to %s: %w", s.bridge.Topic("cmd"), err)
		}
	}

	return s, nil
}

// run starts the link and runs the port, the task loop and the metrics
// server until the first of them fails or the process is interrupted.
func (s *session) run(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.link.Start(); err != nil {
		return err
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() { firstErr = err })
		cancel()
	}
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				fail(fmt.Errorf("%s: %w", name, err))
				return
			}
			cancel()
		}()
	}

	start("port", s.port.Run)
	start("scheduler", s.link.Run)
	if s.metrics != nil {
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("serving metrics")
		start("metrics", func(ctx context.Context) error {
			return s.metrics.Serve(ctx, cfg.Metrics.Addr)
		})
	}

	wg.Wait()
	if errors.Is(firstErr, uart.ErrConnectionClosed) {
		logger.Info().Msg("Connection closed")
		return nil
	}
	return firstErr
}

func (s *session) close() {
	if s.bridge != nil {
		s.bridge.Close()
	}
	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			logger.Warn().Err(err).Msg("capture file")
		}
	}
}
