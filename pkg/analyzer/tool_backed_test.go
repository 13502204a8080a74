package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/config"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/toolregistry"
)

// writeFakeTool writes an executable shell script standing in for a real
// linter binary, and returns its path.
func writeFakeTool(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestYAMLLintAnalyzerParsesParsableOutput(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeTool(t, dir, "yamllint", `echo "$3:2:1: [warning] too many blank lines (empty-lines)"`)
	t.Setenv("TOOL_YAMLLINT_PATH", fake)

	tools := toolregistry.New(t.TempDir(), false)
	artifactPath := filepath.Join(dir, "ci.yml")
	require.NoError(t, os.WriteFile(artifactPath, []byte("on: push\njobs: {}\n"), 0o644))
	af := &artifact.Artifact{Path: artifactPath, Kind: artifact.KindYAMLWorkflowGitHub, Content: []byte("on: push\njobs: {}\n")}

	a := NewYAMLLintAnalyzer()
	findings, err := a.Run(context.Background(), Context{Artifact: af, Tools: tools})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-YAML-LINT", findings[0].ID)
	assert.Equal(t, 2, findings[0].Location.Line)
}

func TestShellLintAnalyzerParsesGCCOutput(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeTool(t, dir, "shellcheck", `echo "$3:3:5: warning: Double quote to prevent globbing [SC2086]"`)
	t.Setenv("TOOL_SHELLCHECK_PATH", fake)

	tools := toolregistry.New(t.TempDir(), false)
	artifactPath := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(artifactPath, []byte("#!/bin/bash\necho $1\n"), 0o644))
	af := &artifact.Artifact{Path: artifactPath, Kind: artifact.KindBashScript, Content: []byte("#!/bin/bash\necho $1\n")}

	a := NewShellLintAnalyzer()
	findings, err := a.Run(context.Background(), Context{Artifact: af, Tools: tools})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "SC2086", findings[0].ID)
}

func TestMakeLintAnalyzerCleanOnZeroExit(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeTool(t, dir, "mbake", `exit 0`)
	t.Setenv("TOOL_MBAKE_PATH", fake)

	tools := toolregistry.New(t.TempDir(), false)
	af := &artifact.Artifact{Path: filepath.Join(dir, "Makefile"), Kind: artifact.KindMakefile, Content: []byte("all:\n\techo hi\n")}

	a := NewMakeLintAnalyzer()
	findings, err := a.Run(context.Background(), Context{Artifact: af, Tools: tools})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestMakeLintAnalyzerFlagsFormatDrift(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeTool(t, dir, "mbake", `echo "would reformat Makefile"; exit 1`)
	t.Setenv("TOOL_MBAKE_PATH", fake)

	tools := toolregistry.New(t.TempDir(), false)
	af := &artifact.Artifact{Path: filepath.Join(dir, "Makefile"), Kind: artifact.KindMakefile, Content: []byte("all:\n\techo hi\n")}

	a := NewMakeLintAnalyzer()
	findings, err := a.Run(context.Background(), Context{Artifact: af, Tools: tools})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-MAKE-FORMAT", findings[0].ID)
}

func TestToolBackedAnalyzerDegradesGracefullyWhenToolMissing(t *testing.T) {
	tools := toolregistry.New(t.TempDir(), false)
	af := &artifact.Artifact{Path: "run.sh", Kind: artifact.KindBashScript, Content: []byte("echo hi\n")}

	a := NewShellLintAnalyzer()
	findings, err := a.Run(context.Background(), Context{
		Artifact: af, Tools: tools, Config: config.Configuration{SkipIfToolMissing: true},
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-TOOL-SKIPPED", findings[0].ID)
	assert.Equal(t, finding.Info, findings[0].Severity)
}

func TestToolBackedAnalyzerWarnsWhenToolMissingAndNotTolerated(t *testing.T) {
	tools := toolregistry.New(t.TempDir(), false)
	af := &artifact.Artifact{Path: "run.sh", Kind: artifact.KindBashScript, Content: []byte("echo hi\n")}

	a := NewShellLintAnalyzer()
	findings, err := a.Run(context.Background(), Context{
		Artifact: af, Tools: tools, Config: config.Configuration{SkipIfToolMissing: false},
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-TOOL-SKIPPED", findings[0].ID)
	assert.Equal(t, finding.Warning, findings[0].Severity)
}

func TestToolInvocationReportsCrashOnSpawnFailure(t *testing.T) {
	t.Setenv("TOOL_SHELLCHECK_PATH", filepath.Join(t.TempDir(), "no-such-binary"))

	tools := toolregistry.New(t.TempDir(), false)
	af := &artifact.Artifact{Path: "run.sh", Kind: artifact.KindBashScript, Content: []byte("echo hi\n")}

	a := NewShellLintAnalyzer()
	findings, err := a.Run(context.Background(), Context{Artifact: af, Tools: tools})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-TOOL-CRASH", findings[0].ID)
}

func TestToolInvocationReportsTimeout(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeTool(t, dir, "shellcheck", `sleep 2`)
	t.Setenv("TOOL_SHELLCHECK_PATH", fake)

	tools := toolregistry.New(t.TempDir(), false)
	af := &artifact.Artifact{Path: filepath.Join(dir, "run.sh"), Kind: artifact.KindBashScript, Content: []byte("echo hi\n")}

	a := NewShellLintAnalyzer()
	findings, err := a.Run(context.Background(), Context{
		Artifact: af, Tools: tools, Config: config.Configuration{TimeoutPerToolSeconds: 1},
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-TOOL-TIMEOUT", findings[0].ID)
}

func TestToolInvocationReportsOutputTruncation(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeTool(t, dir, "shellcheck", `head -c 17000000 /dev/zero`)
	t.Setenv("TOOL_SHELLCHECK_PATH", fake)

	tools := toolregistry.New(t.TempDir(), false)
	af := &artifact.Artifact{Path: filepath.Join(dir, "run.sh"), Kind: artifact.KindBashScript, Content: []byte("echo hi\n")}

	a := NewShellLintAnalyzer()
	findings, err := a.Run(context.Background(), Context{Artifact: af, Tools: tools})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-TOOL-OUTPUT-TRUNCATED", findings[0].ID)
}

func TestToolInvocationTripsCircuitBreakerAfterRepeatedCrashes(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-binary")
	t.Setenv("TOOL_SHELLCHECK_PATH", missing)

	tools := toolregistry.New(t.TempDir(), false)
	af := &artifact.Artifact{Path: "run.sh", Kind: artifact.KindBashScript, Content: []byte("echo hi\n")}
	a := NewShellLintAnalyzer()

	var last []finding.Finding
	for i := 0; i < 4; i++ {
		findings, err := a.Run(context.Background(), Context{Artifact: af, Tools: tools})
		require.NoError(t, err)
		last = findings
	}
	require.Len(t, last, 1)
	assert.Equal(t, "CORE-TOOL-CIRCUIT-OPEN", last[0].ID)
}
