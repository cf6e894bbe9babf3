// Package tui provides the Bubble Tea split display.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/wlsplit/internal/display"
	"github.com/verte-zerg/wlsplit/internal/model"
	"github.com/verte-zerg/wlsplit/internal/splits"
)

const maxNameWidth = 32

// AttemptCounter reports how many attempts are already recorded.
type AttemptCounter interface {
	CountAttempts(ctx context.Context, game, category string) (int, error)
}

type tickMsg time.Time

type countMsg int

type tone int

const (
	toneNormal tone = iota
	toneDim
	toneCurrent
	toneGain
	toneLoss
	toneGold
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")).Padding(0, 1)
	totalStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	pausedStyle = totalStyle.Foreground(lipgloss.Color("#C89A3A"))
	finishStyle = totalStyle.Foreground(lipgloss.Color("#52C41A"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3A3A3A"))
	toneStyles  = map[tone]lipgloss.Style{
		toneNormal:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")),
		toneDim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E")),
		toneCurrent: lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true),
		toneGain:    lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")),
		toneLoss:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")),
		toneGold:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FAAD14")).Bold(true),
	}
)

type keyMap struct {
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// Model implements the Bubble Tea split display. It only reads snapshots.
type Model struct {
	src     display.SnapshotSource
	counter AttemptCounter
	tick    time.Duration
	help    help.Model

	width  int
	height int

	snap     model.Snapshot
	recorded int
	seenRuns map[string]struct{}
	quitting bool
}

// NewModel constructs a display model polling src every tick. counter may be
// nil.
func NewModel(src display.SnapshotSource, counter AttemptCounter, tick time.Duration) *Model {
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	m := &Model{
		src:      src,
		counter:  counter,
		tick:     tick,
		help:     help.New(),
		seenRuns: map[string]struct{}{},
	}
	m.observe(src.Snapshot())
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.scheduleTick(), m.loadCount())
}

func (m *Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) loadCount() tea.Cmd {
	if m.counter == nil {
		return nil
	}
	game, category := m.snap.Game, m.snap.Category
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := m.counter.CountAttempts(ctx, game, category)
		if err != nil {
			log.Warn().Err(err).Msg("tui: failed to count attempts")
			return nil
		}
		return countMsg(n)
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		m.observe(m.src.Snapshot())
		return m, m.scheduleTick()
	case countMsg:
		m.recorded = int(msg)
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) observe(s model.Snapshot) {
	m.snap = s
	if s.RunID != "" {
		m.seenRuns[s.RunID] = struct{}{}
	}
}

// attemptNumber counts the stored attempts plus the runs started since this
// display opened. Runs are recorded when they end, so a live run is included.
func (m *Model) attemptNumber() int {
	return m.recorded + len(m.seenRuns)
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	sections := []string{
		m.renderTitle(),
		m.renderTable(),
		m.renderTotal(),
		subtleStyle.Render(m.help.View(keys)),
	}
	content := lipgloss.JoinVertical(lipgloss.Left, sections...)
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) renderTitle() string {
	title := titleStyle.Render(strings.TrimSpace(m.snap.Game + "  " + m.snap.Category))
	return title + "  " + subtleStyle.Render(fmt.Sprintf("#%d", m.attemptNumber()))
}

func (m *Model) renderTable() string {
	rows, tones := splitRows(m.snap)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		BorderRow(false).
		BorderColumn(false).
		Headers("Split", "Segment", "Diff", "Time").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			style := toneStyles[tones[row][col]].Padding(0, 1)
			if col > 0 {
				style = style.Align(lipgloss.Right)
			}
			return style
		})
	return t.Render()
}

func (m *Model) renderTotal() string {
	text := splits.FormatShort(m.snap.Elapsed)
	style := totalStyle
	switch m.snap.Status {
	case model.StatusPaused:
		style = pausedStyle
		text += " (paused)"
	case model.StatusFinished:
		style = finishStyle
	case model.StatusIdle:
		style = subtleStyle.Bold(true)
	}
	return style.Render(text)
}

// splitRows turns a snapshot into table cells and their tones.
func splitRows(s model.Snapshot) ([][]string, [][]tone) {
	rows := make([][]string, len(s.Splits))
	tones := make([][]tone, len(s.Splits))
	var prevTime *time.Duration
	for i, v := range s.Splits {
		name := runewidth.Truncate(v.Name, maxNameWidth, "…")
		row := []string{name, "", "", ""}
		rt := []tone{toneNormal, toneDim, toneNormal, toneDim}

		switch {
		case v.Time != nil:
			row[3] = splits.FormatShort(*v.Time)
			rt[3] = toneNormal
			if v.Segment != nil {
				row[1] = splits.FormatShort(*v.Segment)
				rt[1] = toneNormal
			}
			if v.Diff != nil {
				row[2] = splits.FormatDiff(*v.Diff)
				rt[2] = diffTone(*v.Diff)
			}
			if v.IsGold {
				rt[1], rt[2] = toneGold, toneGold
			}
		case v.Skipped:
			row[1], row[2], row[3] = "-", "", "-"
			rt[0] = toneDim
		case v.Current:
			rt[0] = toneCurrent
			row[3] = splits.FormatShort(s.Elapsed)
			rt[3] = toneCurrent
			if prevTime != nil || i == 0 {
				var base time.Duration
				if prevTime != nil {
					base = *prevTime
				}
				row[1] = splits.FormatShort(s.Elapsed - base)
				rt[1] = toneCurrent
			}
			if v.Diff != nil {
				row[2] = splits.FormatDiff(*v.Diff)
				rt[2] = diffTone(*v.Diff)
			}
		default:
			if v.Gold != nil {
				row[1] = splits.FormatShort(*v.Gold)
			}
			if v.Best != nil {
				row[3] = splits.FormatShort(*v.Best)
			} else {
				row[3] = "-"
			}
		}
		if v.Time != nil {
			prevTime = v.Time
		} else if !v.Current {
			prevTime = nil
		}
		rows[i] = row
		tones[i] = rt
	}
	return rows, tones
}

func diffTone(d time.Duration) tone {
	if d < 0 {
		return toneGain
	}
	if d > 0 {
		return toneLoss
	}
	return toneNormal
}

// Renderer runs the terminal display.
type Renderer struct {
	model  *Model
	onQuit func()
}

// NewRenderer builds a terminal renderer. onQuit runs when the user closes
// the display with its quit key.
func NewRenderer(src display.SnapshotSource, counter AttemptCounter, tick time.Duration, onQuit func()) *Renderer {
	if onQuit == nil {
		onQuit = func() {}
	}
	return &Renderer{model: NewModel(src, counter, tick), onQuit: onQuit}
}

// Run draws until ctx is cancelled or the user quits.
func (r *Renderer) Run(ctx context.Context) error {
	p := tea.NewProgram(r.model, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("%w: terminal display failed: %w", model.ErrSurface, err)
	}
	r.onQuit()
	return nil
}
