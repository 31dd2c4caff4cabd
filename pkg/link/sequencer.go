// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/Thermoquad/rylink/pkg/sched"
	"github.com/rs/zerolog"
)

// Sequencer timing
const (
	DefaultInitialDelay = 30 * time.Second
	DefaultStepDelay    = 80 * time.Second
)

// State is a step of the modem configuration sequence.
type State int

const (
	StateFirst State = iota
	StateSecond
	StateThird
	StateFourth
)

func (s State) String() string {
	switch s {
	case StateFirst:
		return "FIRST"
	case StateSecond:
		return "SECOND"
	case StateThird:
		return "THIRD"
	case StateFourth:
		return "FOURTH"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Action is what a transition does. An empty Command means nothing is sent.
type Action struct {
	Command string
}

// Emits reports whether the action transmits a command.
func (a Action) Emits() bool {
	return a.Command != ""
}

// Program is the command sent by each of the first three states.
type Program struct {
	NetworkID string
	Address   string
	Parameter string
}

// DefaultProgram configures network 2, address 2 and RF parameters 8,7,4,7.
func DefaultProgram() Program {
	netID, _ := rylr.NetworkID(2)
	param, _ := rylr.Parameter(rylr.DefaultParameters)
	return Program{
		NetworkID: netID,
		Address:   rylr.Address(2),
		Parameter: param,
	}
}

// Transition maps the current state to its action and successor. FOURTH is
// absorbing and sends nothing.
func (p Program) Transition(s State) (Action, State) {
	switch s {
	case StateFirst:
		return Action{Command: p.NetworkID}, StateSecond
	case StateSecond:
		return Action{Command: p.Address}, StateThird
	case StateThird:
		return Action{Command: p.Parameter}, StateFourth
	default:
		return Action{}, StateFourth
	}
}

// Sequencer is the self-rescheduling task that walks the Program.
type Sequencer struct {
	program      Program
	state        State // owned by the task
	initialDelay time.Duration
	stepDelay    time.Duration

	sched    Scheduler
	self     sched.TaskID
	sendTask sched.TaskID
	observer Observer
	log      zerolog.Logger
}

// NewSequencer creates the sequencer. self is the sequencer's own task id
// and sendTask the transmitter's.
func NewSequencer(program Program, initialDelay, stepDelay time.Duration, s Scheduler, self, sendTask sched.TaskID, observer Observer, log zerolog.Logger) *Sequencer {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Sequencer{
		program:      program,
		state:        StateFirst,
		initialDelay: initialDelay,
		stepDelay:    stepDelay,
		sched:        s,
		self:         self,
		sendTask:     sendTask,
		observer:     observer,
		log:          log,
	}
}

// Start resets the state to FIRST and arms the first run.
func (q *Sequencer) Start() error {
	q.state = StateFirst
	return q.sched.SpawnAfter(q.self, q.initialDelay, nil)
}

// Run performs exactly one transition, then re-arms itself.
func (q *Sequencer) Run(ctx context.Context, _ any) error {
	from := q.state
	action, next := q.program.Transition(from)

	if action.Emits() {
		if err := q.sched.Spawn(q.sendTask, action.Command); err != nil {
			return fmt.Errorf("request send in state %s: %w", from, err)
		}
	} else {
		q.log.Info().Str("state", from.String()).Msg("waiting for message")
	}

	q.state = next
	q.observer.Transition(from, next, action)

	return q.sched.SpawnAfter(q.self, q.stepDelay, nil)
}
