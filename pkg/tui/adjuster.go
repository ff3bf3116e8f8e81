package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/coreai-dashboard/pkg/allocation"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#eab308"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#3b82f6")).Bold(true)
	changedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a855f7"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10b981")).Bold(true)
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5a6278"))
	boxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#252a3a")).Padding(0, 1)
)

const barWidth = 30

// ApplyFunc persists an edited allocation. It is only called with a set that totals 100.
type ApplyFunc func(cats []allocation.Category) error

type appliedMsg struct{ err error }

// Model is the interactive allocation adjuster.
type Model struct {
	cats    []allocation.Category
	loaded  []allocation.Category
	cursor  int
	apply   ApplyFunc
	status  string
	failed  bool
	Applied bool
	saving  bool
}

func New(cats []allocation.Category, apply ApplyFunc) Model {
	return Model{
		cats:   append([]allocation.Category(nil), cats...),
		loaded: append([]allocation.Category(nil), cats...),
		apply:  apply,
	}
}

// Categories returns the edited values.
func (m Model) Categories() []allocation.Category {
	return append([]allocation.Category(nil), m.cats...)
}

func (m Model) Total() int {
	return allocation.Total(m.cats)
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case appliedMsg:
		m.saving = false
		if msg.err != nil {
			m.status, m.failed = "apply failed: "+msg.err.Error(), true
			return m, nil
		}
		m.Applied = true
		m.loaded = append([]allocation.Category(nil), m.cats...)
		m.status, m.failed = "allocation applied", false
		return m, tea.Quit

	case tea.KeyMsg:
		if m.saving {
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.cats)-1 {
				m.cursor++
			}
		case "left", "h", "-":
			m.adjust(-1)
		case "right", "l", "+":
			m.adjust(1)
		case "[":
			m.adjust(-5)
		case "]":
			m.adjust(5)
		case "r":
			m.cats = append([]allocation.Category(nil), m.loaded...)
			m.status, m.failed = "reset to loaded values", false
		case "a", "enter":
			if t := m.Total(); t != allocation.MaxPercent {
				m.status, m.failed = fmt.Sprintf("total is %d%%, must be 100%% to apply", t), true
				return m, nil
			}
			if m.apply == nil {
				return m, nil
			}
			m.saving = true
			m.status, m.failed = "applying...", false
			cats := m.Categories()
			return m, func() tea.Msg { return appliedMsg{err: m.apply(cats)} }
		}
	}
	return m, nil
}

func (m *Model) adjust(delta int) {
	if len(m.cats) == 0 {
		return
	}
	c := &m.cats[m.cursor]
	c.Allocation = allocation.Clamp(c.Allocation + delta)
	m.status = ""
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Portfolio allocation") + "\n\n")

	for i, c := range m.cats {
		pointer := "  "
		name := fmt.Sprintf("%-14s", c.Name)
		if i == m.cursor {
			pointer = cursorStyle.Render("▸ ")
			name = cursorStyle.Render(name)
		}
		filled := c.Allocation * barWidth / allocation.MaxPercent
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		value := fmt.Sprintf("%3d%%", c.Allocation)
		if c.Allocation != m.loaded[i].Allocation {
			value = changedStyle.Render(fmt.Sprintf("%s (%+d)", value, c.Allocation-m.loaded[i].Allocation))
		}
		fmt.Fprintf(&b, "%s%s %s %s\n", pointer, name, bar, value)
	}

	total := fmt.Sprintf("Total: %d%%", m.Total())
	if m.Total() == allocation.MaxPercent {
		total = okStyle.Render(total)
	} else {
		total = badStyle.Render(total)
	}
	b.WriteString("\n" + total + "\n")

	if m.status != "" {
		st := okStyle
		if m.failed {
			st = badStyle
		}
		b.WriteString(st.Render(m.status) + "\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ select  ←/→ ±1  [/] ±5  a apply  r reset  q quit"))
	return boxStyle.Render(b.String()) + "\n"
}
