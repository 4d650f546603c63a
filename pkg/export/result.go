package export

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/matzehuels/backdrop/pkg/errors"
)

// Status is the outcome of one job.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// TaskResult records one settled job.
type TaskResult struct {
	Name     string
	Status   Status
	Err      error
	Duration time.Duration
}

// Result is a finished run. Outputs holds encoded images keyed by template
// id; Tasks is ordered by template id.
type Result struct {
	RunID    string
	Format   string
	Outputs  map[string][]byte
	Tasks    []TaskResult
	Duration time.Duration
}

// IDs returns the template ids with output, sorted.
func (r *Result) IDs() []string {
	ids := make([]string, 0, len(r.Outputs))
	for id := range r.Outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Failed returns the failed tasks.
func (r *Result) Failed() []TaskResult {
	var out []TaskResult
	for _, t := range r.Tasks {
		if t.Status == StatusError {
			out = append(out, t)
		}
	}
	return out
}

// retryHint ends every user-facing partial failure message.
const retryHint = "please try again"

// PartialFailureError reports a batch where at least one job failed. The
// successful outputs are not kept.
type PartialFailureError struct {
	Failed  int
	Total   int
	Results []TaskResult
}

func (e *PartialFailureError) Error() string {
	names := make([]string, 0, e.Failed)
	for _, r := range e.Results {
		if r.Status == StatusError {
			names = append(names, r.Name)
		}
	}
	return fmt.Sprintf("failed to generate %d of %d images (%s)", e.Failed, e.Total, strings.Join(names, ", "))
}

// Code returns the error code for this error.
func (e *PartialFailureError) Code() errors.Code {
	return errors.ErrCodePartialFailure
}

// Unwrap exposes the per-job errors.
func (e *PartialFailureError) Unwrap() []error {
	var errs []error
	for _, r := range e.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// ErrorCode is [errors.GetCode] that also recognizes a partial failure,
// whose own code would otherwise be hidden behind its job errors.
func ErrorCode(err error) errors.Code {
	var pf *PartialFailureError
	if stderrors.As(err, &pf) {
		return pf.Code()
	}
	return errors.GetCode(err)
}

// UserMessage is [errors.UserMessage] with the same partial-failure rule as
// [ErrorCode]. A partial failure names the failed templates and asks the
// user to retry.
func UserMessage(err error) string {
	var pf *PartialFailureError
	if stderrors.As(err, &pf) {
		return pf.Error() + ", " + retryHint
	}
	return errors.UserMessage(err)
}
