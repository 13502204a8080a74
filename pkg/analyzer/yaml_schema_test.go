package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
)

func workflowArtifact(t *testing.T, content string) *artifact.Artifact {
	t.Helper()
	a := &artifact.Artifact{Path: "workflow.yml", Kind: artifact.KindYAMLWorkflowGitHub, Content: []byte(content)}
	_, perr := a.Parsed()
	require.Nil(t, perr)
	return a
}

func TestYAMLSchemaFlagsMissingJobs(t *testing.T) {
	a := workflowArtifact(t, "on: push\n")
	analyzer := NewYAMLSchemaAnalyzer()
	findings, err := analyzer.Run(context.Background(), Context{Artifact: a})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-YAML-SCHEMA-VIOLATION", findings[0].ID)
}

func TestYAMLSchemaAcceptsValidWorkflow(t *testing.T) {
	a := workflowArtifact(t, "on: push\njobs:\n  build:\n    runs-on: ubuntu-latest\n")
	analyzer := NewYAMLSchemaAnalyzer()
	findings, err := analyzer.Run(context.Background(), Context{Artifact: a})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestYAMLSchemaSkipsUnrelatedKind(t *testing.T) {
	a := &artifact.Artifact{Path: "Dockerfile", Kind: artifact.KindDockerfile}
	analyzer := NewYAMLSchemaAnalyzer()
	findings, err := analyzer.Run(context.Background(), Context{Artifact: a})
	require.NoError(t, err)
	assert.Nil(t, findings)
}
