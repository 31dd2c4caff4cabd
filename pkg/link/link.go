// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/rylink/pkg/sched"
	"github.com/rs/zerolog"
)

// Task priorities. All cooperative tasks share one level so they run in
// request order.
const (
	PriorityTasks = sched.PriorityLow
	SendCapacity  = 4
)

// Task names as registered on the scheduler. The sequencer owns "send";
// ad-hoc commands from Link.Send go through "command" so a full queue of
// them cannot stall or fail the sequencer.
const (
	TaskParse     = "parse"
	TaskSend      = "send"
	TaskCommand   = "command"
	TaskSequence  = "sequence"
	TaskHeartbeat = "heartbeat"
)

// DefaultHeartbeatInterval is the period of the heartbeat task.
const DefaultHeartbeatInterval = 10 * time.Second

// Config selects the buffer size, framing policy and sequencer behaviour.
type Config struct {
	Capacity          int
	Framing           Framing
	Program           Program
	Sequence          bool // run the command sequencer
	InitialDelay      time.Duration
	StepDelay         time.Duration
	HeartbeatInterval time.Duration // zero disables the heartbeat
}

// DefaultConfig returns the receive buffer, framing and timing the modem
// link uses out of the box.
func DefaultConfig() Config {
	return Config{
		Capacity:          DefaultCapacity,
		Framing:           FixedFraming(DefaultFrameSize),
		Program:           DefaultProgram(),
		Sequence:          true,
		InitialDelay:      DefaultInitialDelay,
		StepDelay:         DefaultStepDelay,
		HeartbeatInterval: DefaultHeartbeatInterval,
	}
}

// Option configures a Link.
type Option func(*Link)

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(l *Link) {
		l.observers = append(l.observers, o)
	}
}

// WithDiagnostic sets the sink for parsed characters.
func WithDiagnostic(d Diagnostic) Option {
	return func(l *Link) {
		l.diag = d
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Link) {
		l.log = log
	}
}

// WithScheduler registers the link's tasks on an existing scheduler.
func WithScheduler(s *sched.Scheduler) Option {
	return func(l *Link) {
		l.sched = s
	}
}

// WithSummary gives the heartbeat something to report.
func WithSummary(s fmt.Stringer) Option {
	return func(l *Link) {
		l.summary = s
	}
}

// Link wires the ingestion handler, parse task, sequencer and transmitter
// around one byte source.
type Link struct {
	cfg       Config
	src       ByteSource
	sched     *sched.Scheduler
	buf       *sched.Resource[FrameBuffer]
	observers Observers
	diag      Diagnostic
	summary   fmt.Stringer
	log       zerolog.Logger

	receiver    *Receiver
	parser      *Parser
	transmitter *Transmitter
	sequencer   *Sequencer

	parseTask     sched.TaskID
	sendTask      sched.TaskID
	commandTask   sched.TaskID
	sequenceTask  sched.TaskID
	heartbeatTask sched.TaskID
}

// New builds a Link on src.
func New(src ByteSource, cfg Config, opts ...Option) (*Link, error) {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if err := cfg.Framing.Validate(cfg.Capacity); err != nil {
		return nil, err
	}
	fb, err := NewFrameBuffer(cfg.Capacity)
	if err != nil {
		return nil, err
	}

	l := &Link{
		cfg: cfg,
		src: src,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sched == nil {
		l.sched = sched.New()
	}

	var observer Observer = NopObserver{}
	if len(l.observers) > 0 {
		observer = l.observers
	}

	l.buf = sched.NewResource(sched.PriorityInterrupt, fb)
	l.parser = NewParser(l.buf, l.diag, observer)
	l.transmitter = NewTransmitter(src, observer, l.log)

	l.parseTask = l.sched.Register(TaskParse, PriorityTasks, l.parser.Run, sched.Coalesce())
	l.sendTask = l.sched.Register(TaskSend, PriorityTasks, l.transmitter.Run, sched.WithCapacity(SendCapacity))
	l.commandTask = l.sched.Register(TaskCommand, PriorityTasks, l.transmitter.Run, sched.WithCapacity(SendCapacity))
	l.receiver = NewReceiver(src, l.buf, cfg.Framing, l.sched, l.parseTask, observer)

	l.sequenceTask = l.sched.Register(TaskSequence, PriorityTasks, func(ctx context.Context, arg any) error {
		return l.sequencer.Run(ctx, arg)
	})
	l.sequencer = NewSequencer(cfg.Program, cfg.InitialDelay, cfg.StepDelay, l.sched, l.sequenceTask, l.sendTask, observer, l.log)

	l.heartbeatTask = l.sched.Register(TaskHeartbeat, PriorityTasks, l.heartbeat)

	return l, nil
}

// Scheduler returns the scheduler the link's tasks run on.
func (l *Link) Scheduler() *sched.Scheduler {
	return l.sched
}

// HandleInterrupt is the receive interrupt handler. Attach it to the port.
func (l *Link) HandleInterrupt() error {
	return l.receiver.HandleInterrupt()
}

// Start arms the sequencer and heartbeat as configured.
func (l *Link) Start() error {
	if l.cfg.Sequence {
		l.log.Info().
			Dur("initial_delay", l.cfg.InitialDelay).
			Dur("step_delay", l.cfg.StepDelay).
			Msg("starting command sequencer")
		if err := l.sequencer.Start(); err != nil {
			return fmt.Errorf("start sequencer: %w", err)
		}
	}
	if l.cfg.HeartbeatInterval > 0 {
		if err := l.sched.SpawnAfter(l.heartbeatTask, l.cfg.HeartbeatInterval, nil); err != nil {
			return fmt.Errorf("start heartbeat: %w", err)
		}
	}
	return nil
}

// Run runs the scheduler until ctx is done or a task fails.
func (l *Link) Run(ctx context.Context) error {
	return l.sched.Run(ctx)
}

// Send queues an ad-hoc command. The terminator is not added. When
// SendCapacity commands are already waiting it returns sched.ErrTaskBusy;
// the sequencer's own sends are unaffected.
func (l *Link) Send(cmd string) error {
	return l.sched.Spawn(l.commandTask, cmd)
}

func (l *Link) heartbeat(ctx context.Context, _ any) error {
	ev := l.log.Info()
	if l.summary != nil {
		ev = ev.Str("stats", l.summary.String())
	}
	ev.Msg("heartbeat")
	return l.sched.SpawnAfter(l.heartbeatTask, l.cfg.HeartbeatInterval, nil)
}
