// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rylink"

// Metrics exports link activity as Prometheus metrics on its own registry.
// It implements link.Observer.
type Metrics struct {
	registry *prometheus.Registry

	rxBytes    prometheus.Counter
	interrupts prometheus.Counter
	overruns   prometheus.Counter
	frames     *prometheus.CounterVec
	frameSize  prometheus.Histogram
	radioErrs  *prometheus.CounterVec
	rssi       prometheus.Gauge
	snr        prometheus.Gauge
	commands   prometheus.Counter
	txBytes    prometheus.Counter
	state      prometheus.Gauge
}

var _ link.Observer = (*Metrics)(nil)

// NewMetrics creates and registers the link metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uart",
			Name:      "rx_bytes_total",
			Help:      "Bytes drained by the receive interrupt handler.",
		}),
		interrupts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uart",
			Name:      "interrupts_total",
			Help:      "Receive interrupts that delivered data.",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "overruns_total",
			Help:      "Bytes written over an unparsed frame after the buffer wrapped.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "frames_total",
			Help:      "Parsed frames by response kind.",
		}, []string{"kind"}),
		frameSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "frame_bytes",
			Help:      "Parsed frame length in bytes.",
			Buckets:   prometheus.LinearBuckets(8, 8, 8),
		}),
		radioErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "errors_total",
			Help:      "+ERR responses by code.",
		}, []string{"code"}),
		rssi: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "rssi_dbm",
			Help:      "RSSI of the last reception.",
		}),
		snr: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "snr",
			Help:      "SNR of the last reception.",
		}),
		commands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "commands_total",
			Help:      "Commands written to the modem.",
		}),
		txBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "tx_bytes_total",
			Help:      "Bytes written to the modem.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "state",
			Help:      "Current sequencer state (0 = FIRST .. 3 = FOURTH).",
		}),
	}
	m.registry.MustRegister(
		m.rxBytes, m.interrupts, m.overruns, m.frames, m.frameSize,
		m.radioErrs, m.rssi, m.snr, m.commands, m.txBytes, m.state,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) BytesReceived(n int) {
	m.interrupts.Inc()
	m.rxBytes.Add(float64(n))
}

func (m *Metrics) Overrun() {
	m.overruns.Inc()
}

func (m *Metrics) FrameParsed(f link.Frame) {
	m.frameSize.Observe(float64(len(f.Data)))

	resp, err := rylr.ParseResponse(f.Data)
	if err != nil {
		m.frames.WithLabelValues("malformed").Inc()
		return
	}
	m.frames.WithLabelValues(resp.Kind.String()).Inc()
	switch resp.Kind {
	case rylr.KindError:
		m.radioErrs.WithLabelValues(strconv.Itoa(resp.Code)).Inc()
	case rylr.KindReceive:
		m.rssi.Set(float64(resp.Reception.RSSI))
		m.snr.Set(float64(resp.Reception.SNR))
	}
}

func (m *Metrics) CommandSent(_ string, n int) {
	m.commands.Inc()
	m.txBytes.Add(float64(n))
}

func (m *Metrics) Transition(_, to link.State, _ link.Action) {
	m.state.Set(float64(to))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
