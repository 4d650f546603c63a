package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestSpinnerNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinnerTo(context.Background(), &buf, "Fetching 3 templates...")
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	out := buf.String()
	if strings.Count(out, "Fetching 3 templates...") != 1 {
		t.Errorf("message should be printed once, got %q", out)
	}
	if strings.Contains(out, "\r") {
		t.Errorf("non-terminal output should not redraw, got %q", out)
	}
	if s.Cancelled() {
		t.Error("Stop should not count as cancellation")
	}
}

func TestSpinnerWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var buf bytes.Buffer
	s := newSpinnerTo(ctx, &buf, "Testing with context...")
	s.Start()
	cancel()
	time.Sleep(50 * time.Millisecond)

	if !s.Cancelled() {
		t.Error("Spinner should be cancelled after context cancellation")
	}
	s.Stop()
}

func TestSpinnerWithTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	s := newSpinnerTo(ctx, &buf, "Testing with timeout...")
	s.Start()
	time.Sleep(100 * time.Millisecond)

	if !s.Cancelled() {
		t.Error("Spinner should be cancelled after context timeout")
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinnerTo(context.Background(), &buf, "Testing idempotent stop...")
	s.Start()

	s.Stop()
	s.Stop()
	s.Stop()
}

func TestSpinnerStopWithResult(t *testing.T) {
	old := stdout
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = old })

	for _, stop := range []func(*Spinner){
		func(s *Spinner) { s.StopWithSuccess("Fetched") },
		func(s *Spinner) { s.StopWithError("Fetch failed") },
	} {
		s := newSpinnerTo(context.Background(), &bytes.Buffer{}, "Working...")
		s.Start()
		stop(s)
	}
	if !strings.Contains(out.String(), "Fetched") || !strings.Contains(out.String(), "Fetch failed") {
		t.Errorf("stdout = %q", out.String())
	}
}
