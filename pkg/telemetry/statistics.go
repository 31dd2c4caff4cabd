// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry counts link activity for the CLI summaries, the
// monitor and the Prometheus endpoint.
package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/rylr"
)

// Statistics tracks link counters and rates. It implements link.Observer.
type Statistics struct {
	mu sync.Mutex
	s  Snapshot
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Interrupts    uint64
	BytesReceived uint64
	Frames        uint64
	Receptions    uint64 // +RECV
	Acks          uint64 // +OK / +READY
	RadioErrors   uint64 // +ERR
	UnknownFrames uint64
	Overruns      uint64
	Commands      uint64
	CommandBytes  uint64

	State     link.State
	LastError int // most recent +ERR code

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

var _ link.Observer = (*Statistics)(nil)

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{s: Snapshot{StartTime: now, LastUpdateTime: now}}
}

func (st *Statistics) BytesReceived(n int) {
	st.mu.Lock()
	st.s.Interrupts++
	st.s.BytesReceived += uint64(n)
	st.mu.Unlock()
}

func (st *Statistics) Overrun() {
	st.mu.Lock()
	st.s.Overruns++
	st.mu.Unlock()
}

// FrameParsed classifies the frame as a modem response.
func (st *Statistics) FrameParsed(f link.Frame) {
	resp, err := rylr.ParseResponse(f.Data)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Frames++
	st.s.LastUpdateTime = f.At
	if err != nil {
		st.s.UnknownFrames++
		return
	}
	switch resp.Kind {
	case rylr.KindReceive:
		st.s.Receptions++
	case rylr.KindOK, rylr.KindReady:
		st.s.Acks++
	case rylr.KindError:
		st.s.RadioErrors++
		st.s.LastError = resp.Code
	default:
		st.s.UnknownFrames++
	}
}

func (st *Statistics) CommandSent(_ string, n int) {
	st.mu.Lock()
	st.s.Commands++
	st.s.CommandBytes += uint64(n)
	st.mu.Unlock()
}

func (st *Statistics) Transition(_, to link.State, _ link.Action) {
	st.mu.Lock()
	st.s.State = to
	st.mu.Unlock()
}

// Snapshot returns the counters with rates calculated.
func (st *Statistics) Snapshot() Snapshot {
	st.mu.Lock()
	s := st.s
	st.mu.Unlock()

	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.Frames) / elapsed
		s.ErrorRate = float64(s.RadioErrors+s.UnknownFrames+s.Overruns) / elapsed
	}
	return s
}

// String returns a formatted statistics summary
func (st *Statistics) String() string {
	s := st.Snapshot()

	var receptionPercent, errorPercent, unknownPercent float64
	if s.Frames > 0 {
		receptionPercent = float64(s.Receptions) * 100.0 / float64(s.Frames)
		errorPercent = float64(s.RadioErrors) * 100.0 / float64(s.Frames)
		unknownPercent = float64(s.UnknownFrames) * 100.0 / float64(s.Frames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Bytes Received:  %8d (%d interrupts)\n", s.BytesReceived, s.Interrupts)
	result += fmt.Sprintf("Frames:          %8d\n", s.Frames)
	result += fmt.Sprintf("Receptions:      %8d (%.1f%%)\n", s.Receptions, receptionPercent)
	if s.Acks > 0 {
		result += fmt.Sprintf("Acks:            %8d\n", s.Acks)
	}
	if s.RadioErrors > 0 {
		result += fmt.Sprintf("Radio Errors:    %8d (%.1f%%)\n", s.RadioErrors, errorPercent)
		result += fmt.Sprintf("  Last: +ERR=%d %s\n", s.LastError, rylr.ErrorDescription(s.LastError))
	}
	if s.UnknownFrames > 0 {
		result += fmt.Sprintf("Unknown Frames:  %8d (%.1f%%)\n", s.UnknownFrames, unknownPercent)
	}
	if s.Overruns > 0 {
		result += fmt.Sprintf("Overruns:        %8d\n", s.Overruns)
	}
	result += fmt.Sprintf("Commands Sent:   %8d (%d bytes)\n", s.Commands, s.CommandBytes)
	result += fmt.Sprintf("Sequencer:       %8s\n", s.State)
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Brief renders the statistics on one line, for log fields.
type Brief struct {
	*Statistics
}

func (b Brief) String() string {
	s := b.Snapshot()
	return fmt.Sprintf("rx=%dB frames=%d rcv=%d err=%d overruns=%d tx=%d state=%s",
		s.BytesReceived, s.Frames, s.Receptions, s.RadioErrors, s.Overruns, s.Commands, s.State)
}

// Reset resets all statistics counters
func (st *Statistics) Reset() {
	now := time.Now()
	st.mu.Lock()
	state := st.s.State
	st.s = Snapshot{StartTime: now, LastUpdateTime: now, State: state}
	st.mu.Unlock()
}
