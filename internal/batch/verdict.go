package batch

// Verdict is the additive batch accumulator. It starts at zero (success) and
// each case folds in its failure magnitude: the execution exit status counted
// once, plus one for a comparison mismatch. Zero iff the run was fully clean.
type Verdict int

// maxExitCode caps the process exit status. POSIX truncates exit status to
// eight bits, so an unbounded additive sum could wrap back to zero and break
// the zero-iff-clean guarantee. 126 and 127 stay reserved for launcher
// failures.
const maxExitCode = 125

// Fold returns the verdict with a case's failure magnitude added.
// Negative increments are ignored; a zero increment leaves a clean fold.
func (v Verdict) Fold(increment int) Verdict {
	if increment <= 0 {
		return v
	}
	return v + Verdict(increment)
}

// Clean reports whether no case contributed any failure.
func (v Verdict) Clean() bool {
	return v == 0
}

// ExitCode converts the verdict into a process exit status: 0 iff clean,
// otherwise the accumulated magnitude saturated at 125.
func (v Verdict) ExitCode() int {
	if v <= 0 {
		return 0
	}
	if v > maxExitCode {
		return maxExitCode
	}
	return int(v)
}
