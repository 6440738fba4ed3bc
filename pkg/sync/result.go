package sync

import (
	"fmt"
	"io"
	"sort"

	"github.com/sidkik/scratchsync/pkg/errors"
	"github.com/sidkik/scratchsync/pkg/shell"
)

// Outcome is what happened to a single var.
type Outcome int

const (
	// Skipped means no copy was needed, or the run was a dry run.
	Skipped Outcome = iota

	// Copied means rsync ran and a new marker was written.
	Copied

	// WarnedMissingSource means the source didn't exist. The target
	// directory was created empty so the var still points somewhere valid.
	WarnedMissingSource

	// Failed means the var could not be processed. Result.Err explains why.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Copied:
		return "copied"
	case WarnedMissingSource:
		return "warned-missing-source"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result describes how a single var was processed.
type Result struct {
	Name string

	// Path is the directory that was written to: the scratch directory for
	// a sync, and the persistent source for a push.
	Path string

	Outcome Outcome
	DryRun  bool
	Err     error
}

// Report collects the results of a run, sorted by name.
type Report struct {
	Results []Result
}

// NewReport returns a Report of results, sorted by name.
func NewReport(results []Result) Report {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})
	return Report{Results: results}
}

// Succeeded returns the results that didn't fail.
func (r Report) Succeeded() []Result {
	var succeeded []Result
	for _, res := range r.Results {
		if res.Outcome != Failed {
			succeeded = append(succeeded, res)
		}
	}
	return succeeded
}

// Failed returns the results that failed.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Outcome == Failed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err returns an error describing every failure, or nil if there were none.
func (r Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}

	var errs []error
	for _, res := range failed {
		errs = append(errs, errors.WithContext(res.Err, res.Name))
	}
	return &RunError{Count: len(failed), Errs: errs}
}

// RunError is returned when one or more vars failed.
type RunError struct {
	Count int
	Errs  []error
}

func (err *RunError) Error() string {
	msg := fmt.Sprintf("%d variable(s) failed", err.Count)
	for _, e := range err.Errs {
		msg += "\n  " + e.Error()
	}
	return msg
}

func (err *RunError) Unwrap() []error {
	return err.Errs
}

// WriteExports writes an export statement for every var that didn't fail.
// Nothing else is ever written to w, so its contents can be evaluated by a
// shell.
func WriteExports(w io.Writer, report Report) error {
	for _, res := range report.Succeeded() {
		if _, err := fmt.Fprintln(w, shell.Export(res.Name, res.Path)); err != nil {
			return err
		}
	}
	return nil
}
