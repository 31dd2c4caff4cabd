// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "time"

// Frame is a completed frame as handed out by the parse task. Data is owned
// by the receiver of the Frame.
type Frame struct {
	Data    []byte
	At      time.Time
	Overrun bool // the buffer wrapped while this frame was accumulating
}

// Diagnostic receives every byte of a parsed frame as a character.
type Diagnostic interface {
	Char(c byte)
}

// DiagnosticFunc is func type of Diagnostic.
type DiagnosticFunc func(c byte)

// Char implements Diagnostic.
func (f DiagnosticFunc) Char(c byte) {
	f(c)
}

// Observer is notified of link activity. Calls come from the interrupt
// context (BytesReceived, Overrun) and from the task context (the rest), so
// implementations must be safe for concurrent use.
type Observer interface {
	BytesReceived(n int)
	Overrun()
	FrameParsed(f Frame)
	CommandSent(cmd string, n int)
	Transition(from, to State, a Action)
}

// NopObserver implements Observer with no-ops, for embedding.
type NopObserver struct{}

func (NopObserver) BytesReceived(int) {}
func (NopObserver) Overrun() {}
func (NopObserver) FrameParsed(Frame) {}
func (NopObserver) CommandSent(string, int) {}
func (NopObserver) Transition(State, State, Action) {}

// Observers fans out to every observer in order.
type Observers []Observer

func (o Observers) BytesReceived(n int) {
	for _, obs := range o {
		obs.BytesReceived(n)
	}
}

func (o Observers) Overrun() {
	for _, obs := range o {
		obs.Overrun()
	}
}

func (o Observers) FrameParsed(f Frame) {
	for _, obs := range o {
		obs.FrameParsed(f)
	}
}

func (o Observers) CommandSent(cmd string, n int) {
	for _, obs := range o {
		obs.CommandSent(cmd, n)
	}
}

func (o Observers) Transition(from, to State, a Action) {
	for _, obs := range o {
		obs.Transition(from, to, a)
	}
}
