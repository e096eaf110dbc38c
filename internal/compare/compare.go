// Package compare decides whether a captured output matches its baseline.
//
// The harness's own logic never inspects output content. The default
// comparer shells out to an external utility with a fixed text-mode tag and
// interprets only its exit code; Literal compares in memory and exists so
// the aggregator can be unit-tested without spawning processes.
package compare

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/text/unicode/norm"
)

// Result is the outcome of one comparison.
type Result int

const (
	// Match means the capture equals the baseline.
	Match Result = iota
	// Mismatch means the capture differs from the baseline.
	Mismatch
)

// FormatTag is the fixed first argument passed to the external utility,
// selecting its text comparison mode.
const FormatTag = "txt"

// ErrBaselineMissing indicates the expected-output file does not exist.
// Aggregation treats it like a mismatch, but reporting distinguishes it.
var ErrBaselineMissing = errors.New("baseline not found")

// Comparer decides whether a capture matches a baseline.
//
// A returned error is a comparison error: the utility could not run or the
// baseline is unusable. Mismatch is a result, not an error.
type Comparer interface {
	Compare(ctx context.Context, capturePath, baselinePath string) (Result, error)
}

// Tool is a Comparer that invokes an external comparison utility:
//
//	<tool> txt <capture> <baseline>
//
// Exit code 0 means Match, any non-zero exit means Mismatch. The harness
// depends on nothing the utility writes.
type Tool struct {
	// Path is the comparison utility binary.
	Path string
}

// Compare invokes the utility for one capture/baseline pair.
func (t Tool) Compare(ctx context.Context, capturePath, baselinePath string) (Result, error) {
	if _, err := os.Stat(baselinePath); err != nil {
		if os.IsNotExist(err) {
			return Mismatch, fmt.Errorf("%w: %s", ErrBaselineMissing, baselinePath)
		}
		return Mismatch, fmt.Errorf("cannot read baseline %s: %w", baselinePath, err)
	}

	cmd := exec.CommandContext(ctx, t.Path, FormatTag, capturePath, baselinePath)
	err := cmd.Run()
	if err == nil {
		return Match, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Mismatch, nil
	}
	return Mismatch, fmt.Errorf("comparison utility failed to run: %w", err)
}

// Literal is an in-memory Comparer: it reads both files and compares their
// NFC-normalized bytes. Normalization keeps the comparison stable across
// Unicode representation differences in captured text.
type Literal struct{}

// Compare reads and compares the two files directly.
func (Literal) Compare(ctx context.Context, capturePath, baselinePath string) (Result, error) {
	baseline, err := os.ReadFile(baselinePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Mismatch, fmt.Errorf("%w: %s", ErrBaselineMissing, baselinePath)
		}
		return Mismatch, fmt.Errorf("cannot read baseline %s: %w", baselinePath, err)
	}
	capture, err := os.ReadFile(capturePath)
	if err != nil {
		return Mismatch, fmt.Errorf("cannot read capture %s: %w", capturePath, err)
	}

	if norm.NFC.String(string(capture)) == norm.NFC.String(string(baseline)) {
		return Match, nil
	}
	return Mismatch, nil
}
