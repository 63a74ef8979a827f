package tracker

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"courierwatch/internal/risk"
	"courierwatch/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// boardMsg replaces the alert board with the content of one publication.
type boardMsg struct {
	summary Summary
	alerts  []risk.Alert
}

const maxLogLines = 500

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	severityFmt = map[risk.Severity]lipgloss.Style{
		risk.SeverityHigh:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		risk.SeverityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		risk.SeverityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
)

// TUIWriter renders the alert board using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the TUI interrupts the process.
func NewTUIWriter() *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WritePublication implements PublicationWriter.
func (w *TUIWriter) WritePublication(p Publication) error {
	s := Summarize(&p)
	line := fmt.Sprintf("[%s] tick=%d couriers=%d applied=%d rejected=%d alerts=%d",
		p.At.Format(time.RFC3339), p.Seq, s.Total, p.Applied, p.Rejected, len(p.Alerts))
	w.program.Send(logMsg{line: line})
	w.program.Send(boardMsg{summary: s, alerts: p.Alerts})
	return nil
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	table      table.Model
	vp         viewport.Model
	logs       []string
	summary    Summary
	wrap       bool
	autoscroll bool
	help       bool
	width      int
	height     int
}

func newTUIModel() tuiModel {
	cols := []table.Column{
		{Title: "Severity", Width: 8},
		{Title: "Rule", Width: 16},
		{Title: "Courier", Width: 16},
		{Title: "Message", Width: 48},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(10), table.WithFocused(true))
	return tuiModel{
		table:      t,
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.resize()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		case "?", "h":
			m.help = true
			return m, nil
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case boardMsg:
		m.summary = msg.summary
		m.table.SetRows(alertTableRows(msg.alerts))
	}
	return m, nil
}

func alertTableRows(alerts []risk.Alert) []table.Row {
	rows := make([]table.Row, 0, len(alerts))
	for _, a := range alerts {
		courier := a.CourierID
		if a.CourierName != "" && a.CourierName != a.CourierID {
			courier = fmt.Sprintf("%s (%s)", a.CourierName, a.CourierID)
		}
		rows = append(rows, table.Row{a.Severity.String(), a.Rule.String(), courier, a.Message})
	}
	return rows
}

func (m *tuiModel) resize() {
	tableHeight := m.height / 2
	if tableHeight < 3 {
		tableHeight = 3
	}
	m.table.SetHeight(tableHeight)
	vpHeight := m.height - tableHeight - lipgloss.Height(m.renderHeader()) - 2
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.vp.Height = vpHeight
}

func (m *tuiModel) refreshViewport() {
	content := strings.Join(m.logs, "\n")
	if m.wrap && m.vp.Width > 0 {
		content = wordwrap.String(content, m.vp.Width)
	}
	m.vp.SetContent(content)
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) renderHeader() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("courierwatch"))
	fmt.Fprintf(&b, "  tick %d  couriers %d  reporting %d", m.summary.Seq, m.summary.Total, m.summary.Reporting)
	statuses := []telemetry.Status{telemetry.StatusActive, telemetry.StatusIdle, telemetry.StatusOffline}
	for _, st := range statuses {
		fmt.Fprintf(&b, "  %s %d", st, m.summary.ByStatus[st])
	}
	b.WriteString("\n")
	sevs := make([]risk.Severity, 0, len(m.summary.AlertsBySeverity))
	for sev := range m.summary.AlertsBySeverity {
		sevs = append(sevs, sev)
	}
	sort.Slice(sevs, func(i, j int) bool { return sevs[i] < sevs[j] })
	if len(sevs) == 0 {
		b.WriteString(mutedStyle.Render("no alerts"))
	}
	for i, sev := range sevs {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(severityFmt[sev].Render(fmt.Sprintf("%s %d", sev, m.summary.AlertsBySeverity[sev])))
	}
	return b.String()
}

func (m tuiModel) View() string {
	if m.help {
		return strings.Join([]string{
			titleStyle.Render("keys"),
			"  up/down  move in alert table",
			"  w        toggle log wrap",
			"  s        toggle autoscroll",
			"  q        quit",
			"  ?        close help",
		}, "\n")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.table.View(),
		mutedStyle.Render(strings.Repeat("─", max(m.width, 1))),
		m.vp.View(),
	)
}
