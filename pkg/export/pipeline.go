package export

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/backdrop/pkg/config"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/observability"
	"github.com/matzehuels/backdrop/pkg/raster"
	"github.com/matzehuels/backdrop/pkg/render"
	"github.com/matzehuels/backdrop/pkg/template"
)

const (
	// DefaultConcurrency bounds in-flight jobs when memory is not under
	// pressure.
	DefaultConcurrency = 4

	// DefaultDelay is the pause after each job.
	DefaultDelay = 50 * time.Millisecond
)

// Job is one scene to rasterize.
type Job struct {
	TemplateID string
	Scene      *render.Scene
	Background template.Image
}

// State is the lifecycle of a pipeline run.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Pipeline rasterizes jobs with a bounded worker pool. A Pipeline runs one
// batch at a time.
type Pipeline struct {
	Rasterizer raster.Rasterizer
	// Concurrency caps the workers; 0 uses [OptimalConcurrency].
	Concurrency int
	// Delay follows every job; negative disables it, 0 uses DefaultDelay.
	Delay time.Duration
	// Format is config.FormatPNG (default) or config.FormatJPEG.
	Format string
	Logger *log.Logger
	// Hooks defaults to the registered observability hooks.
	Hooks observability.ExportHooks
	// OnProgress is called after every settled job. Calls are serialized
	// and completed never decreases.
	OnProgress func(completed, total int)

	state    atomic.Int32
	inFlight atomic.Int32
}

// State returns the state of the current or last run.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Run rasterizes every job and encodes the images. If any job fails it
// returns a PARTIAL_FAILURE error wrapping a [*PartialFailureError] and no
// result. Cancelling ctx stops workers between jobs.
func (p *Pipeline) Run(ctx context.Context, jobs []Job) (*Result, error) {
	if p.Rasterizer == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "export pipeline has no rasterizer")
	}
	if len(jobs) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no templates selected")
	}
	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if seen[j.TemplateID] {
			return nil, errors.New(errors.ErrCodeInvalidInput, "template %q selected twice", j.TemplateID)
		}
		seen[j.TemplateID] = true
	}
	if State(p.state.Swap(int32(StateRunning))) == StateRunning {
		return nil, errors.New(errors.ErrCodeInternal, "export already running")
	}

	logger := p.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	hooks := p.Hooks
	if hooks == nil {
		hooks = observability.Export()
	}
	format := p.Format
	if format == "" {
		format = config.FormatPNG
	}
	delay := p.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = OptimalConcurrency(MemoryUsage)
	}
	workers := max(1, min(concurrency, len(jobs)))

	runID := uuid.NewString()
	start := time.Now()
	total := len(jobs)
	logger.Info("starting export", "run", runID, "templates", total, "workers", workers, "rasterizer", p.Rasterizer.Name())
	hooks.OnExportStart(ctx, runID, total, workers)

	queue := make(chan Job, total)
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	var (
		mu        sync.Mutex
		completed int
		outputs   = make(map[string][]byte, total)
		tasks     = make([]TaskResult, 0, total)
	)
	settle := func(tr TaskResult, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		tasks = append(tasks, tr)
		if tr.Status == StatusSuccess {
			outputs[tr.Name] = data
		}
		completed++
		if p.OnProgress != nil {
			p.OnProgress(completed, total)
		}
	}

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			for j := range queue {
				if err := ctx.Err(); err != nil {
					return err
				}
				tr, data := p.run(ctx, j, format, hooks)
				if tr.Err != nil {
					logger.Error("template failed", "worker", w, "template", j.TemplateID, "duration", tr.Duration, "err", tr.Err)
				} else {
					logger.Debug("template done", "worker", w, "template", j.TemplateID, "duration", tr.Duration, "bytes", len(data))
				}
				settle(tr, data)
				if delay > 0 {
					select {
					case <-time.After(delay):
					case <-ctx.Done():
					}
				}
			}
			return nil
		})
	}
	err := g.Wait()

	sort.Slice(tasks, func(a, b int) bool { return tasks[a].Name < tasks[b].Name })
	failed := 0
	for _, t := range tasks {
		if t.Status == StatusError {
			failed++
		}
	}
	duration := time.Since(start)
	hooks.OnExportComplete(ctx, runID, failed, total, duration)

	if err != nil {
		p.state.Store(int32(StateFailed))
		logger.Warn("export cancelled", "run", runID, "completed", completed, "templates", total)
		return nil, errors.Wrap(errors.ErrCodeTimeout, err, "export cancelled")
	}
	if failed > 0 {
		p.state.Store(int32(StateFailed))
		logger.Error("export failed", "run", runID, "failed", failed, "templates", total, "duration", duration)
		pf := &PartialFailureError{Failed: failed, Total: total, Results: tasks}
		return nil, errors.Wrap(errors.ErrCodePartialFailure, pf, "failed to generate %d images, %s", failed, retryHint)
	}

	p.state.Store(int32(StateSucceeded))
	logger.Info("export finished", "run", runID, "templates", total, "duration", duration)
	return &Result{
		RunID:    runID,
		Format:   format,
		Outputs:  outputs,
		Tasks:    tasks,
		Duration: duration,
	}, nil
}

// InFlight returns the number of jobs being rasterized right now.
func (p *Pipeline) InFlight() int {
	return int(p.inFlight.Load())
}

func (p *Pipeline) run(ctx context.Context, j Job, format string, hooks observability.ExportHooks) (TaskResult, []byte) {
	n := int(p.inFlight.Add(1))
	hooks.OnJobStart(ctx, j.TemplateID, n)
	start := time.Now()

	data, err := p.rasterize(ctx, j, format)

	d := time.Since(start)
	hooks.OnJobComplete(ctx, j.TemplateID, int(p.inFlight.Load()), d, err)
	p.inFlight.Add(-1)

	tr := TaskResult{Name: j.TemplateID, Status: StatusSuccess, Duration: d}
	if err != nil {
		tr.Status, tr.Err = StatusError, err
		return tr, nil
	}
	return tr, data
}

func (p *Pipeline) rasterize(ctx context.Context, j Job, format string) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrCodeInternal, "rasterize %s: %v", j.TemplateID, r)
		}
	}()
	if j.Scene == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "template %q has no scene", j.TemplateID)
	}
	img, err := p.Rasterizer.Rasterize(ctx, j.Scene, j.Background)
	if err != nil {
		return nil, err
	}
	return raster.EncodeBytes(img, format)
}
