package analyzer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/procrunner"
	"github.com/cc-devops-skills/corevalidate/pkg/stringutil"
)

// errToolTimedOut signals a timeout from inside the circuit breaker's
// Execute callback, where procrunner.Run itself returns a nil error even on
// a deadline-exceeded run.
var errToolTimedOut = errors.New("tool invocation timed out")

// runTool resolves toolName through the registry, invokes it with argv
// through that tool's circuit breaker, and always releases the handle
// before returning, regardless of outcome. The bool result reports whether
// the caller should go on to parse Result.Stdout/Stderr: false means the
// tool was skipped, crashed, timed out, or its breaker is open, and the
// returned findings already describe why. Output is whitespace-normalized
// so trailing blanks on each line don't throw off the line-anchored regexes
// analyzers match against it.
func runTool(ctx context.Context, ac Context, toolName string, argv []string) (procrunner.Result, []finding.Finding, bool) {
	if ac.Tools == nil {
		return procrunner.Result{}, toolSkippedFinding(ac, toolName, "no tool registry configured"), false
	}

	handle, err := ac.Tools.Resolve(toolName)
	if err != nil {
		return procrunner.Result{}, toolSkippedFinding(ac, toolName, err.Error()), false
	}
	defer handle.Release()

	full := append(append([]string{}, handle.ArgvPrefix()...), argv...)
	ac.Tools.Throttle(ctx)

	deadline := time.Duration(ac.Config.TimeoutPerToolSeconds) * time.Second

	var result procrunner.Result
	_, breakerErr := ac.Tools.Breaker(toolName).Execute(func() (any, error) {
		var runErr error
		result, runErr = procrunner.Run(ctx, procrunner.Options{Argv: full, Cwd: "", Deadline: deadline})
		if runErr != nil {
			return nil, runErr
		}
		if result.TimedOut {
			return nil, errToolTimedOut
		}
		return nil, nil
	})

	if breakerErr != nil {
		if errors.Is(breakerErr, gobreaker.ErrOpenState) || errors.Is(breakerErr, gobreaker.ErrTooManyRequests) {
			return result, circuitOpenFinding(ac, toolName), false
		}
		if errors.Is(breakerErr, errToolTimedOut) {
			return result, []finding.Finding{finding.New(
				"CORE-TOOL-TIMEOUT", finding.Warning,
				fmt.Sprintf("%s did not finish before its deadline", toolName),
				finding.Location{Path: ac.Artifact.Path}, "core-tool-runner",
			)}, false
		}
		return result, []finding.Finding{finding.New(
			"CORE-TOOL-CRASH", finding.Warning,
			fmt.Sprintf("%s failed to run: %s", toolName, stringutil.SanitizeErrorMessage(breakerErr.Error())),
			finding.Location{Path: ac.Artifact.Path}, "core-tool-runner",
		)}, false
	}

	result.Stdout = stringutil.NormalizeWhitespace(result.Stdout)
	result.Stderr = stringutil.NormalizeWhitespace(result.Stderr)

	var findings []finding.Finding
	if result.StdoutTruncated || result.StderrTruncated {
		findings = append(findings, finding.New(
			"CORE-TOOL-OUTPUT-TRUNCATED", finding.Warning,
			fmt.Sprintf("%s produced more output than the captured buffer holds; results may be incomplete", toolName),
			finding.Location{Path: ac.Artifact.Path}, "core-tool-runner",
		))
	}
	return result, findings, true
}

// toolSkippedFinding reports a tool that could not be resolved at all,
// degrading per skip_if_tool_missing: an info note when the run tolerates
// missing tools (the default), a warning when it doesn't.
func toolSkippedFinding(ac Context, toolName, reason string) []finding.Finding {
	sev := finding.Warning
	if ac.Config.SkipIfToolMissing {
		sev = finding.Info
	}
	return []finding.Finding{finding.New(
		"CORE-TOOL-SKIPPED", sev,
		fmt.Sprintf("%s is unavailable, skipping this check: %s", toolName, stringutil.SanitizeErrorMessage(reason)),
		finding.Location{Path: ac.Artifact.Path}, "core-tool-runner",
	)}
}

// circuitOpenFinding reports at most once per tool per Run that repeated
// crashes have tripped toolName's breaker, so later documents don't each
// repeat the same CORE-TOOL-CRASH.
func circuitOpenFinding(ac Context, toolName string) []finding.Finding {
	if !ac.Tools.NoteCircuitOpen(toolName) {
		return nil
	}
	return []finding.Finding{finding.New(
		"CORE-TOOL-CIRCUIT-OPEN", finding.Warning,
		fmt.Sprintf("%s has failed repeatedly; further invocations are suspended for this run", toolName),
		finding.Location{Path: ac.Artifact.Path}, "core-tool-runner",
	)}
}

// YAMLLintAnalyzer wraps yamllint for syntax and style checking.
type YAMLLintAnalyzer struct{ Base }

func NewYAMLLintAnalyzer() *YAMLLintAnalyzer {
	return &YAMLLintAnalyzer{Base{
		AnalyzerName: "yaml-lint",
		Applies: []artifact.Kind{
			artifact.KindYAMLWorkflowGitHub, artifact.KindYAMLWorkflowGitLab, artifact.KindYAMLWorkflowAzure,
			artifact.KindYAMLK8s, artifact.KindYAMLHelmChart, artifact.KindYAMLFluentBit, artifact.KindLokiConfig,
		},
		Tools: []string{"yamllint"},
	}}
}

var yamllintLineRe = regexp.MustCompile(`(?m)^(.+):(\d+):(\d+):\s*\[(\w+)\]\s*(.+)$`)

func (a *YAMLLintAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	result, findings, ok := runTool(ctx, ac, "yamllint", []string{"-f", "parsable", ac.Artifact.Path})
	if !ok {
		return findings, nil
	}

	for _, match := range yamllintLineRe.FindAllStringSubmatch(result.Stdout, -1) {
		line, _ := strconv.Atoi(match[2])
		column, _ := strconv.Atoi(match[3])
		sev := finding.Warning
		if match[4] == "error" {
			sev = finding.Error
		}
		findings = append(findings, finding.New(
			"CORE-YAML-LINT", sev, stringutil.SanitizeErrorMessage(match[5]),
			finding.Location{Path: ac.Artifact.Path, Line: line, Column: column}, a.AnalyzerName,
		))
	}
	return findings, nil
}

// ShellLintAnalyzer wraps shellcheck, parsing its GCC-style output.
type ShellLintAnalyzer struct{ Base }

func NewShellLintAnalyzer() *ShellLintAnalyzer {
	return &ShellLintAnalyzer{Base{
		AnalyzerName: "shell-lint",
		Applies:      []artifact.Kind{artifact.KindBashScript},
		Tools:        []string{"shellcheck"},
	}}
}

var shellcheckLineRe = regexp.MustCompile(`(?m)^(.+):(\d+):(\d+):\s*(note|warning|error):\s*(.+?)\s*\[(SC\d+)\]$`)

func (a *ShellLintAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	result, findings, ok := runTool(ctx, ac, "shellcheck", []string{"-f", "gcc", ac.Artifact.Path})
	if !ok {
		return findings, nil
	}

	for _, match := range shellcheckLineRe.FindAllStringSubmatch(result.Stdout, -1) {
		line, _ := strconv.Atoi(match[2])
		column, _ := strconv.Atoi(match[3])
		findings = append(findings, finding.New(
			match[6], severityFromShellcheck(match[4]), stringutil.SanitizeErrorMessage(match[5]),
			finding.Location{Path: ac.Artifact.Path, Line: line, Column: column}, a.AnalyzerName,
		))
	}
	return findings, nil
}

func severityFromShellcheck(level string) finding.Severity {
	switch level {
	case "error":
		return finding.Error
	case "warning":
		return finding.Warning
	default:
		return finding.Info
	}
}

// DockerLintAnalyzer wraps hadolint, covering the DL* rule family.
type DockerLintAnalyzer struct{ Base }

func NewDockerLintAnalyzer() *DockerLintAnalyzer {
	return &DockerLintAnalyzer{Base{
		AnalyzerName: "docker-lint",
		Applies:      []artifact.Kind{artifact.KindDockerfile},
		Tools:        []string{"hadolint"},
	}}
}

var hadolintLineRe = regexp.MustCompile(`(?m)^(.+):(\d+)\s+(DL\d+|SC\d+)\s+(info|warning|error)\s+(.+)$`)

func (a *DockerLintAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	result, findings, ok := runTool(ctx, ac, "hadolint", []string{"--no-color", ac.Artifact.Path})
	if !ok {
		return findings, nil
	}

	for _, match := range hadolintLineRe.FindAllStringSubmatch(result.Stdout, -1) {
		line, _ := strconv.Atoi(match[2])
		findings = append(findings, finding.New(
			match[3], severityFromShellcheck(match[4]), stringutil.SanitizeErrorMessage(match[5]),
			finding.Location{Path: ac.Artifact.Path, Line: line}, a.AnalyzerName,
		))
	}
	return findings, nil
}

// MakeLintAnalyzer wraps mbake's format-check mode.
type MakeLintAnalyzer struct{ Base }

func NewMakeLintAnalyzer() *MakeLintAnalyzer {
	return &MakeLintAnalyzer{Base{
		AnalyzerName: "make-lint",
		Applies:      []artifact.Kind{artifact.KindMakefile},
		Tools:        []string{"mbake"},
	}}
}

func (a *MakeLintAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	result, findings, ok := runTool(ctx, ac, "mbake", []string{"format", "--check", ac.Artifact.Path})
	if !ok {
		return findings, nil
	}
	if result.ExitCode == 0 {
		return findings, nil
	}
	return append(findings, finding.New(
		"CORE-MAKE-FORMAT", finding.Warning,
		fmt.Sprintf("makefile formatting diverges from mbake's canonical style: %s",
			stringutil.SanitizeErrorMessage(firstLine(result.Stdout+result.Stderr))),
		finding.Location{Path: ac.Artifact.Path, Line: 1}, a.AnalyzerName,
	)), nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
