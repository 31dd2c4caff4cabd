// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func frame(s string) link.Frame {
	return link.Frame{Data: []byte(s), At: time.Now()}
}

func feed(o link.Observer) {
	o.BytesReceived(25)
	o.BytesReceived(5)
	o.FrameParsed(frame("+RECV=1,5,HELLO,-54,40\r\n"))
	o.FrameParsed(frame("+OK\r\n"))
	o.FrameParsed(frame("+ERR=4\r\n"))
	o.FrameParsed(frame("garbage"))
	o.Overrun()
	o.CommandSent("AT+ADDRESS=2\r\n", 14)
	o.Transition(link.StateFirst, link.StateSecond, link.Action{Command: "AT+NETWORKID=2\r\n"})
}

func TestStatisticsCounts(t *testing.T) {
	st := NewStatistics()
	feed(st)

	s := st.Snapshot()
	require.Equal(t, uint64(2), s.Interrupts)
	require.Equal(t, uint64(30), s.BytesReceived)
	require.Equal(t, uint64(4), s.Frames)
	require.Equal(t, uint64(1), s.Receptions)
	require.Equal(t, uint64(1), s.Acks)
	require.Equal(t, uint64(1), s.RadioErrors)
	require.Equal(t, 4, s.LastError)
	require.Equal(t, uint64(1), s.UnknownFrames)
	require.Equal(t, uint64(1), s.Overruns)
	require.Equal(t, uint64(1), s.Commands)
	require.Equal(t, uint64(14), s.CommandBytes)
	require.Equal(t, link.StateSecond, s.State)

	out := st.String()
	require.Contains(t, out, "Radio Errors:")
	require.Contains(t, out, "Sequencer:")
	require.Contains(t, Brief{st}.String(), "frames=4")

	st.Reset()
	s = st.Snapshot()
	require.Zero(t, s.Frames)
	require.Equal(t, link.StateSecond, s.State, "state survives reset")
}

func TestMetricsCounts(t *testing.T) {
	m := NewMetrics()
	feed(m)

	require.Equal(t, 30.0, testutil.ToFloat64(m.rxBytes))
	require.Equal(t, 2.0, testutil.ToFloat64(m.interrupts))
	require.Equal(t, 1.0, testutil.ToFloat64(m.overruns))
	require.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("RECV")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("OK")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.radioErrs.WithLabelValues("4")))
	require.Equal(t, -54.0, testutil.ToFloat64(m.rssi))
	require.Equal(t, 40.0, testutil.ToFloat64(m.snr))
	require.Equal(t, 14.0, testutil.ToFloat64(m.txBytes))
	require.Equal(t, 1.0, testutil.ToFloat64(m.state))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.CommandSent("AT\r\n", 4)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "rylink_sender_commands_total 1"))
}
