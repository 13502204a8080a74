// Package exitcode maps a finished Run to the process exit code.
package exitcode

import (
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
)

const (
	// Pass: no findings at or above the configured threshold.
	Pass = 0
	// PolicyFailure: an error-severity finding, or a warning under strict mode.
	PolicyFailure = 1
	// FatalFailure: a fatal-severity finding (e.g. an unparseable artifact).
	FatalFailure = 2
	// InvalidInvocation: bad CLI usage, e.g. an artifact path that does not exist.
	InvalidInvocation = 64
	// SignalCancellation: the run was cancelled by a termination signal.
	SignalCancellation = 130
)

// Resolve implements the mapping, evaluated in order:
//  1. any fatal finding -> 2
//  2. any error finding, or a warning finding under strict mode -> 1
//  3. else -> 0
// Signal cancellation and invalid invocation are not findings-driven and
// must be applied by the caller after Resolve, since they override it.
func Resolve(findings []finding.Finding, strictMode bool) int {
	counts := finding.CountBySeverity(findings)

	if counts.Fatal > 0 {
		return FatalFailure
	}
	if counts.Error > 0 {
		return PolicyFailure
	}
	if counts.Warning > 0 && strictMode {
		return PolicyFailure
	}
	return Pass
}

// Final applies the full precedence: signal cancellation overrides
// everything, followed by invalid invocation, followed by the
// findings-driven Resolve mapping.
func Final(findings []finding.Finding, strictMode bool, cancelled bool, invalidInvocation bool) int {
	if cancelled {
		return SignalCancellation
	}
	if invalidInvocation {
		return InvalidInvocation
	}
	return Resolve(findings, strictMode)
}

// Passed reports whether code represents a passing run, for the Reporter's
// summary verdict.
func Passed(code int) bool {
	return code == Pass
}
