package cli

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestExportModel(t *testing.T) {
	cancelled := 0
	var m tea.Model = NewExportModel("Rendering 2 backgrounds", 2, func() { cancelled++ })

	m, _ = m.Update(progressMsg{done: 1, total: 2})
	if view := m.View(); !strings.Contains(view, "1/2") || !strings.Contains(view, "ctrl+c") {
		t.Errorf("view = %q", view)
	}

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil {
		t.Error("interrupt should wait for the run to settle, not quit")
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cancelled != 1 {
		t.Errorf("cancel called %d times, want 1", cancelled)
	}
	if !strings.Contains(m.View(), "cancelling") {
		t.Errorf("view = %q", m.View())
	}

	runErr := errors.New("boom")
	m, cmd = m.Update(finishedMsg{err: runErr})
	if cmd == nil {
		t.Fatal("finished run should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("finished run should return tea.Quit")
	}
	if got := m.(ExportModel); !got.Finished || got.Err != runErr {
		t.Errorf("model = %+v", got)
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		done, total, width int
		full               int
	}{
		{0, 4, 8, 0},
		{1, 4, 8, 2},
		{4, 4, 8, 8},
		{5, 4, 8, 8},
		{0, 0, 8, 0},
	}
	for _, tt := range tests {
		bar := renderBar(tt.done, tt.total, tt.width)
		if got := strings.Count(bar, "█"); got != tt.full {
			t.Errorf("renderBar(%d, %d) filled %d, want %d", tt.done, tt.total, got, tt.full)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != tt.width {
			t.Errorf("renderBar(%d, %d) width %d, want %d", tt.done, tt.total, got, tt.width)
		}
	}
}

func TestRunWithProgressReturnsRunError(t *testing.T) {
	var out strings.Builder
	want := errors.New("render failed")
	err := runWithProgress(context.Background(), &out, "Rendering", 1, func(ctx context.Context, progress progressFunc) error {
		progress(1, 1)
		return want
	}, tea.WithInput(nil), tea.WithoutSignalHandler())
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}
