// Package tui is a terminal drum machine over a samplerbox engine.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/samplerbox"
	"github.com/cbegin/samplerbox/internal/peaks"
	"github.com/cbegin/samplerbox/internal/sequencer"
)

const (
	nameWidth     = 14
	waveWidth     = 48
	trimNudge     = 0.01
	refreshPeriod = 50 * time.Millisecond
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	onStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	playStyle   = lipgloss.NewStyle().Background(lipgloss.Color("238"))
	cursorStyle = lipgloss.NewStyle().Reverse(true)
	flagStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	waveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("79"))
)

// StepMsg reports the step the sequencer just fired.
type StepMsg int

type refreshMsg time.Time

type Model struct {
	engine   *samplerbox.Engine
	meter    *Meter
	level    float32
	keys     keyMap
	help     help.Model
	pattern  string
	row, col int
	step     int
	status   string
	steps    chan int
	unsub    func()
	quitting bool
}

// NewModel builds the drum grid view. pattern names the slot used by save
// and load; meter may be nil.
func NewModel(e *samplerbox.Engine, meter *Meter, pattern string) Model {
	steps := make(chan int, 16)
	unsub := e.Sequencer().OnStep(func(step int) {
		select {
		case steps <- step:
		default:
		}
	})
	return Model{
		engine:  e,
		meter:   meter,
		keys:    defaultKeys(),
		help:    help.New(),
		pattern: pattern,
		step:    -1,
		steps:   steps,
		unsub:   unsub,
	}
}

func ListenForSteps(steps <-chan int) tea.Cmd {
	return func() tea.Msg {
		return StepMsg(<-steps)
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshPeriod, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(ListenForSteps(m.steps), refresh())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case StepMsg:
		m.step = int(msg)
		return m, ListenForSteps(m.steps)

	case refreshMsg:
		m.level = m.meter.Decay()
		return m, refresh()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	q := m.engine.Sequencer()
	rows := q.NumRows()
	m.status = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		q.Stop()
		m.engine.StopAll()
		if m.unsub != nil {
			m.unsub()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.row = max(0, m.row-1)
	case key.Matches(msg, m.keys.Down):
		m.row = min(max(0, rows-1), m.row+1)
	case key.Matches(msg, m.keys.Left):
		m.col = max(0, m.col-1)
	case key.Matches(msg, m.keys.Right):
		m.col = min(sequencer.NumSteps-1, m.col+1)

	case key.Matches(msg, m.keys.Toggle):
		q.Toggle(m.row, m.col)
	case key.Matches(msg, m.keys.Column):
		q.ToggleColumn(m.col)
	case key.Matches(msg, m.keys.Clear):
		q.Clear()

	case key.Matches(msg, m.keys.Mute):
		if r, ok := m.currentRow(); ok {
			q.SetMute(m.row, !r.Muted)
		}
	case key.Matches(msg, m.keys.Solo):
		if r, ok := m.currentRow(); ok {
			q.SetSolo(m.row, !r.Soloed)
		}
	case key.Matches(msg, m.keys.VolDown):
		if r, ok := m.currentRow(); ok {
			q.SetVolume(m.row, r.Volume-0.1)
		}
	case key.Matches(msg, m.keys.VolUp):
		if r, ok := m.currentRow(); ok {
			q.SetVolume(m.row, r.Volume+0.1)
		}

	case key.Matches(msg, m.keys.Play):
		if q.Running() {
			q.Stop()
			m.step = -1
		} else {
			q.Start()
		}
	case key.Matches(msg, m.keys.Audition):
		if _, err := m.engine.PlaySingle(m.row); err != nil {
			m.status = err.Error()
		}
	case key.Matches(msg, m.keys.Hush):
		m.engine.StopAll()

	case key.Matches(msg, m.keys.Faster):
		q.SetBPM(q.BPM() + 5)
	case key.Matches(msg, m.keys.Slower):
		q.SetBPM(q.BPM() - 5)
	case key.Matches(msg, m.keys.SwingUp):
		q.SetSwing(q.Swing() + 0.1)
	case key.Matches(msg, m.keys.SwingDown):
		q.SetSwing(q.Swing() - 0.1)

	case key.Matches(msg, m.keys.TrimStartEarlier):
		m.nudgeTrim(-trimNudge, 0)
	case key.Matches(msg, m.keys.TrimStartLater):
		m.nudgeTrim(trimNudge, 0)
	case key.Matches(msg, m.keys.TrimEndEarlier):
		m.nudgeTrim(0, -trimNudge)
	case key.Matches(msg, m.keys.TrimEndLater):
		m.nudgeTrim(0, trimNudge)

	case key.Matches(msg, m.keys.Save):
		if err := m.engine.SavePattern(m.pattern); err != nil {
			m.status = err.Error()
		} else {
			m.status = "pattern saved"
		}
	case key.Matches(msg, m.keys.Load):
		if err := m.engine.LoadPattern(m.pattern); err != nil {
			m.status = err.Error()
		} else {
			m.status = "pattern loaded"
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *Model) nudgeTrim(dStart, dEnd float64) {
	seg, err := m.engine.Trim(m.row)
	if err != nil {
		m.status = err.Error()
		return
	}
	if _, err := m.engine.SetTrim(m.row, seg.Start+dStart, seg.End+dEnd); err != nil {
		m.status = err.Error()
	}
}

func (m Model) currentRow() (sequencer.Row, bool) {
	rows := m.engine.Sequencer().Rows()
	if m.row < 0 || m.row >= len(rows) {
		return sequencer.Row{}, false
	}
	return rows[m.row], true
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	q := m.engine.Sequencer()

	playState := "STOP"
	if q.Running() {
		playState = "PLAY"
	}
	header := headerStyle.Render(fmt.Sprintf("samplerbox  %s  %s  %3.0fbpm  swing:%.2f  step:%02d",
		m.engine.Category(), playState, q.BPM(), q.Swing(), max(m.step, 0)+1))
	meter := dimStyle.Render("[") + onStyle.Render(levelBar(m.level, 20)) + dimStyle.Render("]")

	var b strings.Builder
	b.WriteString(header + "  " + meter + "\n\n")
	rows := q.Rows()
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("no sounds loaded") + "\n")
	}
	for i, r := range rows {
		b.WriteString(m.renderRow(i, r) + "\n")
	}
	b.WriteString("\n" + m.renderWave() + "\n")
	if m.status != "" {
		b.WriteString(dimStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m Model) renderRow(i int, r sequencer.Row) string {
	name := r.Name
	if len(name) > nameWidth {
		name = name[:nameWidth-1] + "~"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-*s ", nameWidth, name))
	for s := 0; s < sequencer.NumSteps; s++ {
		cell := dimStyle.Render("·")
		if r.Steps[s] {
			cell = onStyle.Render("■")
		}
		switch {
		case i == m.row && s == m.col:
			cell = cursorStyle.Render(cell)
		case s == m.step:
			cell = playStyle.Render(cell)
		}
		b.WriteString(cell)
		if s%4 == 3 {
			b.WriteString(" ")
		}
	}
	mute, solo := " ", " "
	if r.Muted {
		mute = "M"
	}
	if r.Soloed {
		solo = "S"
	}
	b.WriteString(flagStyle.Render(mute+solo) + fmt.Sprintf(" %3.0f%%", r.Volume*100))
	if r.Buffer == nil {
		b.WriteString(dimStyle.Render(" (no audio)"))
	}
	return b.String()
}

var sparks = []rune("▁▂▃▄▅▆▇█")

// renderWave draws the cursor row's sound and its trim window.
func (m Model) renderWave() string {
	pairs, err := m.engine.Peaks(m.row, waveWidth)
	if err != nil {
		return dimStyle.Render("no waveform")
	}
	seg, _ := m.engine.Trim(m.row)
	dur := m.engine.Sounds()[m.row].Duration()
	return waveStyle.Render(sparkline(pairs, seg.Start/dur, seg.End/dur)) +
		dimStyle.Render(fmt.Sprintf("  trim %.3fs to %.3fs of %.3fs", seg.Start, seg.End, dur))
}

// sparkline draws one character per column, blanking columns outside the
// [l, r) fraction of the sound.
func sparkline(pairs []peaks.Pair, l, r float64) string {
	out := make([]rune, len(pairs))
	for x, p := range pairs {
		pos := (float64(x) + 0.5) / float64(len(pairs))
		if p.Empty() || pos < l || pos > r {
			out[x] = ' '
			continue
		}
		amp := float64(max(p.Max, -p.Min))
		idx := int(amp * float64(len(sparks)-1))
		out[x] = sparks[min(len(sparks)-1, max(0, idx))]
	}
	return string(out)
}
