package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/config"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
)

func k8sArtifact(t *testing.T, content string) *artifact.Artifact {
	t.Helper()
	a := &artifact.Artifact{Path: "manifest.yaml", Kind: artifact.KindYAMLK8s, Content: []byte(content)}
	_, perr := a.Parsed()
	require.Nil(t, perr)
	return a
}

func TestK8sSchemaFlagsMissingName(t *testing.T) {
	a := k8sArtifact(t, "apiVersion: v1\nkind: ConfigMap\ndata:\n  x: \"1\"\n")
	analyzer := NewK8sSchemaAnalyzer()
	findings, err := analyzer.Run(context.Background(), Context{Artifact: a, Config: config.Configuration{SkipIfToolMissing: true}})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "CORE-K8S-MISSING-NAME", findings[0].ID)
	assert.Equal(t, "CORE-TOOL-SKIPPED", findings[1].ID)
	assert.Equal(t, finding.Info, findings[1].Severity)
}

func TestK8sSchemaAcceptsNamedResource(t *testing.T) {
	a := k8sArtifact(t, "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: my-config\ndata:\n  x: \"1\"\n")
	analyzer := NewK8sSchemaAnalyzer()
	findings, err := analyzer.Run(context.Background(), Context{Artifact: a, Config: config.Configuration{SkipIfToolMissing: true}})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-TOOL-SKIPPED", findings[0].ID)
}

func TestK8sSchemaWithoutTools(t *testing.T) {
	a := k8sArtifact(t, "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: my-config\ndata:\n  x: \"1\"\n")
	analyzer := NewK8sSchemaAnalyzer()
	findings, err := analyzer.Run(context.Background(), Context{Artifact: a})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-TOOL-SKIPPED", findings[0].ID)
	assert.Equal(t, finding.Warning, findings[0].Severity)
}

func TestK8sDryRunSkipsWithoutReachableCluster(t *testing.T) {
	t.Setenv("KUBECONFIG", "/nonexistent/kubeconfig")
	a := k8sArtifact(t, "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: my-config\n")
	analyzer := NewK8sDryRunAnalyzer()
	findings, err := analyzer.Run(context.Background(), Context{Artifact: a})
	require.NoError(t, err)
	assert.Nil(t, findings)
}
