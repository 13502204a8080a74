package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
)

func TestDefaultMatchesSpecTable(t *testing.T) {
	cfg := Default()
	assert.Equal(t, finding.Warning, cfg.SeverityThreshold)
	assert.False(t, cfg.StrictMode)
	assert.Equal(t, constants.OutputFormatHuman, cfg.OutputFormat)
	assert.Equal(t, constants.ColorModeAuto, cfg.Color)
	assert.Equal(t, 120, cfg.TimeoutPerToolSeconds)
	assert.True(t, cfg.DocLookupEnabled)
	assert.Equal(t, 10, cfg.DocLookupTimeoutSeconds)
	assert.False(t, cfg.VenvCache)
	assert.True(t, cfg.SkipIfToolMissing)
}

func TestResolvePrecedenceFlagsOverrideFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "corevalidate.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("strict_mode: false\nseverity_threshold: info\n"), 0o644))

	t.Setenv("COREVALIDATE_STRICT_MODE", "true")

	strictFlag := false
	cfg, findings, err := Resolve(Flags{
		ConfigFile: cfgPath,
		StrictMode: &strictFlag,
	})
	require.NoError(t, err)
	assert.Empty(t, findings)

	assert.False(t, cfg.StrictMode, "flag value must win over both env and file")
	assert.Equal(t, finding.Info, cfg.SeverityThreshold, "file value applies when no flag/env override exists")
}

func TestResolveUnknownFileKeyProducesInfoFinding(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "corevalidate.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("not_a_real_key: 1\n"), 0o644))

	_, findings, err := Resolve(Flags{ConfigFile: cfgPath})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CORE-UNKNOWN-CONFIG-KEY", findings[0].ID)
	assert.Equal(t, finding.Info, findings[0].Severity)
}

func TestNoColorEnvForcesColorNever(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	cfg, _, err := Resolve(Flags{})
	require.NoError(t, err)
	assert.Equal(t, constants.ColorModeNever, cfg.Color)
}

func TestResolveMissingConfigFileReturnsError(t *testing.T) {
	_, _, err := Resolve(Flags{ConfigFile: "/nonexistent/path/corevalidate.yml"})
	assert.Error(t, err)
}
