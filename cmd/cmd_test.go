// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/Thermoquad/rylink/pkg/telemetry"
	"github.com/Thermoquad/rylink/pkg/uart"
	"github.com/stretchr/testify/require"
)

func TestLineCollectorJoinsSplitFrames(t *testing.T) {
	c := newLineCollector()

	c.FrameParsed(link.Frame{Data: []byte("+O")})
	require.Len(t, c.lines, 0)
	c.FrameParsed(link.Frame{Data: []byte("K\r\n+ERR=4\r\n+RECV=1,2,")})
	c.FrameParsed(link.Frame{Data: []byte("HI,-40,9\r\n")})

	require.Len(t, c.lines, 3)
	require.Equal(t, rylr.KindOK, (<-c.lines).Kind)
	errResp := <-c.lines
	require.Equal(t, rylr.KindError, errResp.Kind)
	require.Equal(t, 4, errResp.Code)
	rx := <-c.lines
	require.Equal(t, rylr.KindReceive, rx.Kind)
	require.Equal(t, []byte("HI"), rx.Reception.Data)
	require.Empty(t, c.pending)
}

func TestLineCollectorSkipsMalformed(t *testing.T) {
	c := newLineCollector()
	c.FrameParsed(link.Frame{Data: []byte("\r\n+ERR=x\r\n+OK\r\n")})

	require.Len(t, c.lines, 1)
	require.Equal(t, rylr.KindOK, (<-c.lines).Kind)
}

func TestFirstResponseSkipsInvalid(t *testing.T) {
	w := &firstResponse{found: make(chan rylr.Response, 1)}

	w.FrameParsed(link.Frame{Data: []byte("garbage")})
	w.FrameParsed(link.Frame{Data: []byte("+RECV=1")})
	require.Equal(t, 2, w.invalid)
	require.Len(t, w.found, 0)

	w.FrameParsed(link.Frame{Data: []byte("+READY\r\n")})
	require.Equal(t, 0, w.invalid)
	require.Equal(t, rylr.KindReady, (<-w.found).Kind)
}

func TestFramePrinterNotesOverrun(t *testing.T) {
	var out bytes.Buffer
	p := &framePrinter{out: &out}

	p.FrameParsed(link.Frame{Data: []byte("+OK"), At: time.Now(), Overrun: true})
	require.Contains(t, out.String(), "buffer wrapped")
}

func TestMonitorModelEvents(t *testing.T) {
	stats := telemetry.NewStatistics()
	m := newMonitorModel("test", stats)

	next, _ := m.Update(frameMsg(link.Frame{Data: []byte("+RECV=7,5,HELLO,-40,11")}))
	m = next.(monitorModel)
	next, _ = m.Update(commandMsg("AT+ADDRESS=2\r\n"))
	m = next.(monitorModel)
	next, _ = m.Update(transitionMsg{from: link.StateFirst, to: link.StateSecond})
	m = next.(monitorModel)
	next, _ = m.Update(frameMsg(link.Frame{Data: []byte("+ERR=4")}))
	m = next.(monitorModel)

	require.Len(t, m.events, 4)
	require.Equal(t, eventRx, m.events[0].kind)
	require.Contains(t, m.events[0].message, `"HELLO"`)
	require.Equal(t, eventTx, m.events[1].kind)
	require.Equal(t, "sent AT+ADDRESS=2", m.events[1].message)
	require.Equal(t, "sequencer FIRST -> SECOND", m.events[2].message)
	require.Equal(t, eventError, m.events[3].kind)
	require.NotNil(t, m.lastRx)
	require.Equal(t, uint16(7), m.lastRx.Address)

	view := m.View()
	require.True(t, strings.Contains(view, "RYLINK - MONITOR"))
	require.Contains(t, view, "RSSI -40 dBm")
}

func TestMonitorModelTrimsEvents(t *testing.T) {
	m := newMonitorModel("test", telemetry.NewStatistics())
	m.maxLogEntries = 3
	for i := 0; i < 5; i++ {
		m.addEvent(strings.Repeat("x", i+1), eventInfo)
	}
	require.Len(t, m.events, 3)
	require.Equal(t, "xxx", m.events[0].message)
}

func TestPortStopped(t *testing.T) {
	require.NoError(t, portStopped(nil))
	require.NoError(t, portStopped(fmt.Errorf("read: %w", uart.ErrConnectionClosed)))
	require.NoError(t, portStopped(context.Canceled))

	err := portStopped(errors.New("handler failed"))
	require.ErrorContains(t, err, "port: handler failed")
}
