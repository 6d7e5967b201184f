package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"gengc/internal/scenario"
)

type progressModel struct {
	title   string
	events  <-chan scenario.Event
	spinner spinner.Model
	prog    progress.Model
	items   []replayItem
	index   map[string]int
	width   int
	done    bool
	failed  int
}

type replayItem struct {
	name   string
	status scenario.Status
	op     scenario.Op
	step   int
	total  int
}

type eventMsg scenario.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders scenario replay
// progress, one row per scenario. It quits once events is closed.
func NewProgressModel(title string, names []string, events <-chan scenario.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]replayItem, 0, len(names))
	index := make(map[string]int, len(names))
	for i, name := range names {
		items = append(items, replayItem{name: name, status: scenario.StatusQueued})
		index[name] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(scenario.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.failed > 0 {
		header = fmt.Sprintf("%s (%d failed)", header, m.failed)
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	const statusWidth = 12
	nameWidth := max(m.width-statusWidth-16, 20)
	for _, item := range m.items {
		label := statusLabel(item)
		statusStyled := styleStatus(item.status).Render(fmt.Sprintf("%12s", label))
		counter := ""
		if item.total > 0 {
			counter = fmt.Sprintf(" %d/%d", item.step, item.total)
		}
		fmt.Fprintf(&b, "  %s %s%s\n", statusStyled, truncate(item.name, nameWidth), counter)
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev scenario.Event) tea.Cmd {
	idx, ok := m.index[ev.Scenario]
	if !ok {
		return nil
	}
	item := &m.items[idx]
	if item.status == scenario.StatusError {
		return nil
	}
	item.status = ev.Status
	item.total = ev.Total
	switch ev.Status {
	case scenario.StatusWorking:
		item.step = ev.Step
		item.op = ev.Op
	case scenario.StatusDone:
		item.step = ev.Total
	case scenario.StatusError:
		item.step = ev.Step
		item.op = ev.Op
		m.failed++
	}
	return m.prog.SetPercent(m.percent())
}

// percent averages per-scenario completion; failed scenarios count as
// finished.
func (m *progressModel) percent() float64 {
	if len(m.items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range m.items {
		switch {
		case item.status == scenario.StatusDone || item.status == scenario.StatusError:
			total++
		case item.total > 0:
			total += float64(item.step-1) / float64(item.total)
		}
	}
	return total / float64(len(m.items))
}

func statusLabel(item replayItem) string {
	if item.status == scenario.StatusWorking && item.op != "" {
		return string(item.op)
	}
	return string(item.status)
}

func styleStatus(status scenario.Status) lipgloss.Style {
	switch status {
	case scenario.StatusDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case scenario.StatusError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case scenario.StatusWorking:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
