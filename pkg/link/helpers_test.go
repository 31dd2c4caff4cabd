// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"sync"
	"time"

	"github.com/Thermoquad/rylink/pkg/sched"
	"github.com/rs/zerolog"
)

// fakeSource is a ByteSource backed by an in-memory receive queue. It
// records transmit-ready polls and writes as an event log.
type fakeSource struct {
	mu     sync.Mutex
	rx     []byte
	tx     []byte
	status Status

	// busyPolls is how many TransmitReady polls report not ready before
	// each byte.
	busyPolls int
	polls     int
	events    []string
}

func (f *fakeSource) deliver(data []byte) {
	f.mu.Lock()
	f.rx = append(f.rx, data...)
	f.status |= StatusReceiveFull
	f.mu.Unlock()
}

func (f *fakeSource) TryReadByte() (byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rx) == 0 {
		return 0, false
	}
	c := f.rx[0]
	f.rx = f.rx[1:]
	return c, true
}

func (f *fakeSource) TransmitReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "wait")
	if f.polls < f.busyPolls {
		f.polls++
		return false
	}
	return true
}

func (f *fakeSource) WriteByte(c byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "write")
	f.tx = append(f.tx, c)
	f.polls = 0
	return nil
}

func (f *fakeSource) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) ClearStatus(mask Status) {
	f.mu.Lock()
	f.status &^= mask
	f.mu.Unlock()
}

type spawnCall struct {
	id    sched.TaskID
	delay time.Duration
	arg   any
	timed bool
}

// recordingScheduler implements Scheduler by recording requests.
type recordingScheduler struct {
	mu    sync.Mutex
	calls []spawnCall
	err   error
}

func (r *recordingScheduler) Spawn(id sched.TaskID, arg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, spawnCall{id: id, arg: arg})
	return r.err
}

func (r *recordingScheduler) SpawnAfter(id sched.TaskID, d time.Duration, arg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, spawnCall{id: id, delay: d, arg: arg, timed: true})
	return r.err
}

func (r *recordingScheduler) spawns(id sched.TaskID) []spawnCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []spawnCall
	for _, c := range r.calls {
		if c.id == id && !c.timed {
			out = append(out, c)
		}
	}
	return out
}

// recorder is an Observer that keeps everything it is told.
type recorder struct {
	mu          sync.Mutex
	received    int
	overruns    int
	frames      []Frame
	commands    []string
	transitions [][2]State
}

func (r *recorder) BytesReceived(n int) {
	r.mu.Lock()
	r.received += n
	r.mu.Unlock()
}

func (r *recorder) Overrun() {
	r.mu.Lock()
	r.overruns++
	r.mu.Unlock()
}

func (r *recorder) FrameParsed(f Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) CommandSent(cmd string, _ int) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
}

func (r *recorder) Transition(from, to State, _ Action) {
	r.mu.Lock()
	r.transitions = append(r.transitions, [2]State{from, to})
	r.mu.Unlock()
}

type charLog struct {
	mu    sync.Mutex
	chars []byte
}

func (c *charLog) Char(b byte) {
	c.mu.Lock()
	c.chars = append(c.chars, b)
	c.mu.Unlock()
}

func newBuffer(t interface{ Fatalf(string, ...any) }, capacity int) *sched.Resource[FrameBuffer] {
	fb, err := NewFrameBuffer(capacity)
	if err != nil {
		t.Fatalf("NewFrameBuffer(%d): %v", capacity, err)
	}
	return sched.NewResource(sched.PriorityInterrupt, fb)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
