package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
)

func TestCoreBestPracticesFlagsLatestTagAndMissingHealthcheck(t *testing.T) {
	a := NewCoreBestPracticesAnalyzer()
	src := "FROM nginx:latest\nCMD [\"nginx\"]\n"
	af := &artifact.Artifact{Path: "Dockerfile", Kind: artifact.KindDockerfile, Content: []byte(src)}

	findings, err := a.Run(context.Background(), Context{Artifact: af})
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, f := range findings {
		ids[f.ID] = true
	}
	assert.True(t, ids["CORE-DOCKER-UNPINNED-BASE-IMAGE"])
	assert.True(t, ids["CORE-DOCKER-MISSING-HEALTHCHECK"])
}

func TestCoreBestPracticesCleanDockerfile(t *testing.T) {
	a := NewCoreBestPracticesAnalyzer()
	src := "FROM nginx:1.25.3\nHEALTHCHECK CMD curl -f http://localhost/ || exit 1\n"
	af := &artifact.Artifact{Path: "Dockerfile", Kind: artifact.KindDockerfile, Content: []byte(src)}

	findings, err := a.Run(context.Background(), Context{Artifact: af})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCoreBestPracticesMissingPhony(t *testing.T) {
	a := NewCoreBestPracticesAnalyzer()
	src := "build:\n\tgo build ./...\n"
	af := &artifact.Artifact{Path: "Makefile", Kind: artifact.KindMakefile, Content: []byte(src)}

	findings, err := a.Run(context.Background(), Context{Artifact: af})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-MAKE-MISSING-PHONY", findings[0].ID)
}

func TestCoreBestPracticesFlagsUnpinnedActionRef(t *testing.T) {
	a := NewCoreBestPracticesAnalyzer()
	src := "steps:\n  - uses: actions/checkout@v4\n"
	af := &artifact.Artifact{Path: "ci.yml", Kind: artifact.KindYAMLWorkflowGitHub, Content: []byte(src)}

	findings, err := a.Run(context.Background(), Context{Artifact: af})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-ACTION-UNPINNED-REF", findings[0].ID)
}

func TestCoreBestPracticesFlagsPrivilegedContainer(t *testing.T) {
	a := NewCoreBestPracticesAnalyzer()
	src := "apiVersion: v1\nkind: Pod\nmetadata:\n  name: demo\nspec:\n  containers:\n    - name: app\n      image: demo:1.0\n      securityContext:\n        privileged: true\n"
	af := k8sArtifact(t, src)

	findings, err := a.Run(context.Background(), Context{Artifact: af})
	require.NoError(t, err)

	var found bool
	for _, f := range findings {
		if f.ID == "CORE-K8S-POLICY-VIOLATION" {
			found = true
		}
	}
	assert.True(t, found, "expected a CORE-K8S-POLICY-VIOLATION finding, got %v", findings)
}

func TestCoreBestPracticesFlagsPodWithNoContainers(t *testing.T) {
	a := NewCoreBestPracticesAnalyzer()
	src := "apiVersion: v1\nkind: Pod\nmetadata:\n  name: demo\nspec:\n  containers: []\n"
	af := k8sArtifact(t, src)

	findings, err := a.Run(context.Background(), Context{Artifact: af})
	require.NoError(t, err)

	var found bool
	for _, f := range findings {
		if f.ID == "CORE-K8S-POD-NO-CONTAINERS" {
			found = true
		}
	}
	assert.True(t, found, "expected a CORE-K8S-POD-NO-CONTAINERS finding, got %v", findings)
}

func TestCoreBestPracticesCleanPodPassesPolicy(t *testing.T) {
	a := NewCoreBestPracticesAnalyzer()
	src := "apiVersion: v1\nkind: Pod\nmetadata:\n  name: demo\nspec:\n  containers:\n    - name: app\n      image: demo:1.0\n      resources:\n        limits:\n          cpu: \"500m\"\n          memory: \"256Mi\"\n"
	af := k8sArtifact(t, src)

	findings, err := a.Run(context.Background(), Context{Artifact: af})
	require.NoError(t, err)
	assert.Empty(t, findings)
}
