package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/toolregistry"
)

func TestWorkflowLocalRunFlagsUnresolvableActGraph(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeTool(t, dir, "act", `echo "job graph error: circular need" >&2
exit 1`)
	t.Setenv("TOOL_ACT_PATH", fake)

	a := &artifact.Artifact{Path: "workflow.yml", Kind: artifact.KindYAMLWorkflowGitHub}
	analyzer := NewWorkflowLocalRunAnalyzer()
	ac := Context{Artifact: a, Tools: toolregistry.New(t.TempDir(), false)}

	findings, err := analyzer.Run(context.Background(), ac)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-WORKFLOW-GRAPH-UNRESOLVABLE", findings[0].ID)
}

func TestWorkflowLocalRunCleanOnZeroExit(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeTool(t, dir, "act", `exit 0`)
	t.Setenv("TOOL_ACT_PATH", fake)

	a := &artifact.Artifact{Path: "workflow.yml", Kind: artifact.KindYAMLWorkflowGitHub}
	analyzer := NewWorkflowLocalRunAnalyzer()
	ac := Context{Artifact: a, Tools: toolregistry.New(t.TempDir(), false)}

	findings, err := analyzer.Run(context.Background(), ac)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
