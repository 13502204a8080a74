package reporter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/config"
	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/orchestrator"
)

func sampleRun() orchestrator.Run {
	a := &artifact.Artifact{Path: "Dockerfile", Kind: artifact.KindDockerfile}
	f := finding.New("CORE-DOCKER-UNPINNED-BASE-IMAGE", finding.Warning, "base image not pinned",
		finding.Location{Path: "Dockerfile", Line: 1}, "core-best-practices")
	return orchestrator.Run{
		Artifacts: []orchestrator.ArtifactReport{{Artifact: a, Findings: []finding.Finding{f}}},
		Findings:  []finding.Finding{f},
	}
}

func TestRenderJSONHasStableKeyOrderAndSummary(t *testing.T) {
	run := sampleRun()
	out, err := RenderJSON(run, true)
	require.NoError(t, err)

	keys := []string{"\"artifacts\"", "\"findings\"", "\"tool_audit\"", "\"summary\""}
	lastIdx := -1
	for _, k := range keys {
		idx := strings.Index(out, k)
		require.Greater(t, idx, lastIdx, "key %s out of order", k)
		lastIdx = idx
	}

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 1, doc.Summary.Counts.Warning)
	assert.True(t, doc.Summary.Pass)
}

func TestRenderJSONSeverityMarshalsAsName(t *testing.T) {
	run := sampleRun()
	out, err := RenderJSON(run, true)
	require.NoError(t, err)
	assert.Contains(t, out, `"severity": "warning"`)
}

func TestRenderHumanIncludesVerdict(t *testing.T) {
	run := sampleRun()
	out := RenderHuman(run, false)
	assert.Contains(t, out, "FAIL")
}

func TestRenderDispatchesOnOutputFormat(t *testing.T) {
	run := sampleRun()
	cfg := config.Default()
	cfg.OutputFormat = constants.OutputFormatJSON
	out, err := Render(run, cfg, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
}
