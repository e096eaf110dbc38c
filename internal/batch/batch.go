// Package batch drives the example sequence: execute each discovered case,
// compare its captured output against the recorded baseline, and fold every
// outcome into a single additive verdict.
//
// The flow is strictly sequential. Exactly one child process runs at a time
// and exactly one capture file exists per run, truncated before each case.
// A case failure never short-circuits the batch, and the finalization case
// always runs once after the main sequence, whatever happened before it.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vre-tools/exrun/internal/compare"
	"github.com/vre-tools/exrun/internal/discovery"
	"github.com/vre-tools/exrun/internal/runner"
)

// CaseResult holds the outcome of a single case.
type CaseResult struct {
	Name      string   `json:"name"`
	Pass      bool     `json:"pass"`
	ExitCode  int      `json:"exit_code"`
	Compared  bool     `json:"compared"`
	Finalize  bool     `json:"finalize,omitempty"`
	Increment int      `json:"increment"`
	Errors    []string `json:"errors,omitempty"`
}

// Report holds the overall batch result, including the finalization case.
type Report struct {
	Cases   []CaseResult `json:"cases"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Total   int          `json:"total"`
	Verdict Verdict      `json:"verdict"`

	// CapturePath is where the scratch capture lived. The file itself
	// is removed at the end of the run unless KeepCapture was set.
	CapturePath string `json:"capture_path,omitempty"`
}

// Options configure one batch run.
type Options struct {
	// Sentinel names the case that executes without comparison.
	Sentinel string

	// Finalize names the finalization case, resolved inside the
	// examples directory. It is not part of the discovered set.
	Finalize string

	// KeepCapture leaves the scratch capture file behind after the run.
	KeepCapture bool
}

// Aggregator folds per-case outcomes into a batch verdict.
type Aggregator struct {
	runner   *runner.Runner
	comparer compare.Comparer
	baseline func(caseName string) string
	progress io.Writer
	logger   *slog.Logger
	opts     Options
}

// New creates an Aggregator.
//
// baseline maps a case name to its expected-output path. progress receives
// the human-readable per-case lines; pass io.Discard to silence them. A nil
// logger suppresses diagnostics.
func New(r *runner.Runner, c compare.Comparer, baseline func(string) string, progress io.Writer, logger *slog.Logger, opts Options) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Aggregator{
		runner:   r,
		comparer: c,
		baseline: baseline,
		progress: progress,
		logger:   logger,
		opts:     opts,
	}
}

// Run drives the full batch over the discovered cases, then the finalization
// case, and returns the report.
//
// The only hard error is failing to set up the scratch capture file; every
// per-case failure is folded and reported instead. On a hard error the
// capture file, if created, is left in place for inspection.
func (a *Aggregator) Run(ctx context.Context, examplesDir string, cases []discovery.Case) (*Report, error) {
	capture, err := os.CreateTemp("", "exrun-capture-*.out")
	if err != nil {
		return nil, fmt.Errorf("cannot create capture file: %w", err)
	}
	capturePath := capture.Name()
	capture.Close()
	if !a.opts.KeepCapture {
		defer os.Remove(capturePath)
	}

	report := &Report{
		Cases:       make([]CaseResult, 0, len(cases)+1),
		CapturePath: capturePath,
	}

	for _, c := range cases {
		result := a.runCase(ctx, c, capturePath, c.Name != a.opts.Sentinel, false)
		a.fold(report, result)
	}

	// The finalization case runs unconditionally, exactly once, and its
	// exit status folds like any other case.
	finalize := discovery.Case{
		Name: a.opts.Finalize,
		Path: filepath.Join(examplesDir, a.opts.Finalize),
	}
	a.fold(report, a.runCase(ctx, finalize, capturePath, false, true))

	a.logger.Info("batch complete",
		"passed", report.Passed,
		"failed", report.Failed,
		"verdict", int(report.Verdict),
	)
	return report, nil
}

func (a *Aggregator) fold(report *Report, result CaseResult) {
	report.Cases = append(report.Cases, result)
	report.Total++
	if result.Pass {
		report.Passed++
	} else {
		report.Failed++
	}
	report.Verdict = report.Verdict.Fold(result.Increment)
}

// runCase executes one case and, when compared is set, checks its capture
// against the baseline. The capture is fully written before comparison reads
// it: the synchronous process wait is the happens-before edge.
func (a *Aggregator) runCase(ctx context.Context, c discovery.Case, capturePath string, compared, finalize bool) CaseResult {
	fmt.Fprintf(a.progress, "running %s\n", c.Name)
	a.logger.Info("running case", "case", c.Name)

	result := CaseResult{Name: c.Name, Finalize: finalize}

	exitCode, err := a.runner.Run(ctx, c, capturePath)
	if err != nil {
		// Launch failure: the child never ran, so there is no capture
		// to compare. Record it and move on.
		var launchErr *runner.LaunchError
		if errors.As(err, &launchErr) {
			result.Errors = append(result.Errors, launchErr.Error())
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
		result.Increment = 1
		a.reportCase(result)
		return result
	}

	result.ExitCode = exitCode
	switch {
	case exitCode > 0:
		result.Increment = exitCode
		result.Errors = append(result.Errors, fmt.Sprintf("exited with status %d", exitCode))
	case exitCode < 0:
		// No usable exit status. It must still count as one failure,
		// never as a negative that cancels a later increment.
		result.Increment = 1
		result.Errors = append(result.Errors, fmt.Sprintf("terminated abnormally (%d)", exitCode))
	}

	if compared {
		result.Compared = true
		outcome, err := a.comparer.Compare(ctx, capturePath, a.baseline(c.Name))
		switch {
		case err != nil:
			result.Increment++
			result.Errors = append(result.Errors, fmt.Sprintf("comparison error: %v", err))
		case outcome == compare.Mismatch:
			result.Increment++
			result.Errors = append(result.Errors, fmt.Sprintf("output differs from expected for %s", c.Name))
		}
	}

	result.Pass = len(result.Errors) == 0
	a.reportCase(result)
	return result
}

func (a *Aggregator) reportCase(result CaseResult) {
	if result.Pass {
		switch {
		case result.Finalize:
			fmt.Fprintf(a.progress, "✓ %s (finalize)\n", result.Name)
		case !result.Compared:
			fmt.Fprintf(a.progress, "✓ %s (unverified)\n", result.Name)
		default:
			fmt.Fprintf(a.progress, "✓ %s\n", result.Name)
		}
		return
	}
	fmt.Fprintf(a.progress, "✗ %s\n", result.Name)
	for _, e := range result.Errors {
		fmt.Fprintf(a.progress, "  %s\n", e)
	}
}
