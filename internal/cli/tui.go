package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Progress bar styles
var (
	barFullStyle  = lipgloss.NewStyle().Foreground(colorCyan)
	barEmptyStyle = lipgloss.NewStyle().Foreground(colorDim)
	barDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
)

const barWidth = 30

// =============================================================================
// ExportModel - live export progress
// =============================================================================

type progressMsg struct{ done, total int }

type finishedMsg struct{ err error }

// ExportModel is the bubbletea model shown while images render. Interrupting
// cancels the run; the model keeps drawing until the run settles so no
// goroutine outlives the program.
type ExportModel struct {
	Title      string
	Done       int
	Total      int
	Err        error
	Finished   bool
	Cancelling bool

	start  time.Time
	cancel context.CancelFunc
}

// NewExportModel creates a progress model for total images.
func NewExportModel(title string, total int, cancel context.CancelFunc) ExportModel {
	return ExportModel{Title: title, Total: total, start: time.Now(), cancel: cancel}
}

func (m ExportModel) Init() tea.Cmd {
	return nil
}

func (m ExportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.Cancelling && m.cancel != nil {
				m.cancel()
			}
			m.Cancelling = true
		}
	case progressMsg:
		m.Done, m.Total = msg.done, msg.total
	case finishedMsg:
		m.Finished = true
		m.Err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m ExportModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString("\n")
	b.WriteString(renderBar(m.Done, m.Total, barWidth))
	b.WriteString(" ")
	b.WriteString(StyleValue.Render(fmt.Sprintf("%d/%d", m.Done, m.Total)))
	b.WriteString(barDimStyle.Render(fmt.Sprintf("  %s", time.Since(m.start).Round(100*time.Millisecond))))
	b.WriteString("\n")

	switch {
	case m.Finished:
	case m.Cancelling:
		b.WriteString(StyleWarning.Render("cancelling, waiting for running images..."))
		b.WriteString("\n")
	default:
		b.WriteString(barDimStyle.Render("ctrl+c cancel"))
		b.WriteString("\n")
	}
	return b.String()
}

func renderBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	filled = min(max(filled, 0), width)
	return barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

// =============================================================================
// Runner
// =============================================================================

// progressFunc receives completed and total image counts.
type progressFunc func(done, total int)

// runWithProgress runs fn under a live progress bar on out. The returned
// error is fn's.
func runWithProgress(ctx context.Context, out io.Writer, title string, total int, fn func(context.Context, progressFunc) error, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)
	p := tea.NewProgram(NewExportModel(title, total, cancel), opts...)
	errc := make(chan error, 1)
	go func() {
		err := fn(ctx, func(done, total int) {
			p.Send(progressMsg{done: done, total: total})
		})
		errc <- err
		p.Send(finishedMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		loggerFromContext(ctx).Debug("progress display failed", "error", err)
	}
	return <-errc
}
