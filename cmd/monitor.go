// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/Thermoquad/rylink/pkg/rylr"
	"github.com/Thermoquad/rylink/pkg/telemetry"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var monitorSequence bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive terminal monitor for the link",
	Long: `Show link statistics, the sequencer state and a scrolling log of received
frames, sent commands and log messages.

Keys: q quits, r resets the statistics, arrows/pgup/pgdn scroll the log.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorSequence, "sequence", false, "Run the command sequencer")
}

// Event log entry
type eventEntry struct {
	timestamp time.Time
	message   string
	kind      eventKind
}

type eventKind int

const (
	eventInfo eventKind = iota
	eventRx
	eventTx
	eventError
)

// Messages
type tickMsg time.Time
type frameMsg link.Frame
type commandMsg string
type transitionMsg struct{ from, to link.State }
type overrunMsg struct{}
type logMsg string
type sessionDoneMsg struct{ err error }

// TUI model
type monitorModel struct {
	connInfo      string
	stats         *telemetry.Statistics
	events        []eventEntry
	maxLogEntries int
	log           viewport.Model
	width         int
	height        int
	quitting      bool
	err           error
	lastRx        *rylr.Reception
}

func newMonitorModel(connInfo string, stats *telemetry.Statistics) monitorModel {
	return monitorModel{
		connInfo:      connInfo,
		stats:         stats,
		maxLogEntries: 500,
		log:           viewport.New(76, 10),
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addEvent("Statistics reset", eventInfo)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = max(msg.Width-4, 20)
		m.log.Height = max(msg.Height-14, 5)
		m.refreshLog()

	case tickMsg:
		return m, tickCmd()

	case frameMsg:
		f := link.Frame(msg)
		resp, err := rylr.ParseResponse(f.Data)
		switch {
		case err != nil:
			m.addEvent(fmt.Sprintf("MALFORMED %q (%v)", f.Data, err), eventError)
		case resp.Kind == rylr.KindReceive:
			m.lastRx = resp.Reception
			m.addEvent(fmt.Sprintf("RECV from %d: %q", resp.Reception.Address, resp.Reception.Data), eventRx)
		case resp.Kind == rylr.KindError:
			m.addEvent(fmt.Sprintf("+ERR=%d %s", resp.Code, rylr.ErrorDescription(resp.Code)), eventError)
		default:
			m.addEvent(fmt.Sprintf("%s %q", resp.Kind, f.Data), eventRx)
		}
		if f.Overrun {
			m.addEvent("buffer wrapped before the frame was parsed", eventError)
		}

	case commandMsg:
		m.addEvent("sent "+strings.TrimSpace(string(msg)), eventTx)

	case transitionMsg:
		if msg.from != msg.to {
			m.addEvent(fmt.Sprintf("sequencer %s -> %s", msg.from, msg.to), eventInfo)
		}

	case overrunMsg:
		// counted by the statistics

	case logMsg:
		m.addEvent(strings.TrimSpace(string(msg)), eventInfo)

	case sessionDoneMsg:
		m.err = msg.err
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m *monitorModel) addEvent(message string, kind eventKind) {
	m.events = append(m.events, eventEntry{
		timestamp: time.Now(),
		message:   message,
		kind:      kind,
	})

	// Keep only last N entries
	if len(m.events) > m.maxLogEntries {
		m.events = m.events[len(m.events)-m.maxLogEntries:]
	}
	m.refreshLog()
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statsLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	statsValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	txStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	infoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle        = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m *monitorModel) refreshLog() {
	var b strings.Builder
	if len(m.events) == 0 {
		b.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, e := range m.events {
		ts := headerStyle.Render(e.timestamp.Format("15:04:05.000"))
		var line string
		switch e.kind {
		case eventRx:
			line = statsValueStyle.Render("← " + e.message)
		case eventTx:
			line = txStyle.Render("→ " + e.message)
		case eventError:
			line = errorStyle.Render("✗ " + e.message)
		default:
			line = infoStyle.Render("ℹ " + e.message)
		}
		b.WriteString(ts + " " + line + "\n")
	}
	m.log.SetContent(b.String())
	m.log.GotoBottom()
}

func (m monitorModel) View() string {
	if m.quitting {
		if m.err != nil {
			return errorStyle.Render("Session ended: "+m.err.Error()) + "\n"
		}
		return "Shutting down...\n"
	}

	s := m.stats.Snapshot()

	var out strings.Builder
	out.WriteString(titleStyle.Render("RYLINK - MONITOR"))
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(fmt.Sprintf("%s | q quit, r reset", m.connInfo)))
	out.WriteString("\n\n")

	stats := strings.Builder{}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("RX:"), statsValueStyle.Render(fmt.Sprintf("%d B", s.BytesReceived)),
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", s.Frames)),
		statsLabelStyle.Render("Receptions:"), statsValueStyle.Render(fmt.Sprintf("%d", s.Receptions)),
	))
	errCount := s.RadioErrors + s.UnknownFrames + s.Overruns
	errText := statsValueStyle.Render(fmt.Sprintf("%d", errCount))
	if errCount > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%d (radio %d, unknown %d, overrun %d)",
			errCount, s.RadioErrors, s.UnknownFrames, s.Overruns))
	}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Errors:"), errText,
		statsLabelStyle.Render("TX:"), txStyle.Render(fmt.Sprintf("%d cmds / %d B", s.Commands, s.CommandBytes)),
	))
	stats.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Sequencer:"), statsValueStyle.Render(s.State.String()),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", s.FrameRate)),
	))
	if m.lastRx != nil {
		stats.WriteString(fmt.Sprintf("\n%s %s",
			statsLabelStyle.Render("Last RX:"),
			statsValueStyle.Render(fmt.Sprintf("addr %d  RSSI %d dBm  SNR %d", m.lastRx.Address, m.lastRx.RSSI, m.lastRx.SNR)),
		))
	}
	out.WriteString(boxStyle.Render(stats.String()))
	out.WriteString("\n\n")

	out.WriteString(statsLabelStyle.Render("Events:"))
	out.WriteString("\n")
	out.WriteString(boxStyle.Render(m.log.View()))
	return out.String()
}

// teaObserver forwards link events to the program.
type teaObserver struct {
	p *tea.Program
}

func (o teaObserver) BytesReceived(int) {}
func (o teaObserver) Overrun()          { o.p.Send(overrunMsg{}) }
func (o teaObserver) FrameParsed(f link.Frame) {
	o.p.Send(frameMsg(f))
}
func (o teaObserver) CommandSent(cmd string, _ int) {
	o.p.Send(commandMsg(cmd))
}
func (o teaObserver) Transition(from, to link.State, _ link.Action) {
	o.p.Send(transitionMsg{from: from, to: to})
}

// teaLogWriter turns log lines into events.
type teaLogWriter struct {
	p *tea.Program
}

func (w *teaLogWriter) Write(b []byte) (int, error) {
	// Lines logged before the program exists are dropped.
	if w.p != nil {
		w.p.Send(logMsg(string(b)))
	}
	return len(b), nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// The program must exist before the observers that send to it.
	var p *tea.Program
	obs := &teaObserver{}
	logW := &teaLogWriter{}

	// Logs would tear the alt screen; show them as events instead.
	logger = zerolog.New(zerolog.ConsoleWriter{Out: logW, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}}).
		Level(logger.GetLevel())

	s, err := newSession(sessionOptions{
		sequence:  monitorSequence,
		heartbeat: false,
		observers: []link.Observer{obs},
	})
	if err != nil {
		return err
	}
	defer s.close()

	p = tea.NewProgram(newMonitorModel(s.port.Name(), s.stats), tea.WithAltScreen())
	obs.p = p
	logW.p = p

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		err := s.run(ctx)
		done <- err
		p.Send(sessionDoneMsg{err: err})
	}()

	_, err = p.Run()
	cancel()
	sessionErr := <-done
	if err != nil {
		return err
	}
	fmt.Print(s.stats.String())
	return sessionErr
}
