package toolregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEnvOverrideTakesPrecedence(t *testing.T) {
	t.Setenv("TOOL_SHELLCHECK_PATH", "/custom/shellcheck")

	r := New(t.TempDir(), false)
	handle, err := r.Resolve("shellcheck")
	require.NoError(t, err)
	assert.Equal(t, []string{"/custom/shellcheck"}, handle.ArgvPrefix())
}

func TestResolvePathLookup(t *testing.T) {
	r := New(t.TempDir(), false)
	handle, err := r.Resolve("sh")
	require.NoError(t, err)
	assert.NotEmpty(t, handle.ArgvPrefix())
}

func TestResolveUnknownToolNotPipInstallableIsUnavailable(t *testing.T) {
	r := New(t.TempDir(), false)
	_, err := r.Resolve("totally-unknown-nonexistent-binary-xyz")
	require.Error(t, err)
	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, ReasonMissingFromPath, unavailable.Reason)
}

func TestConcurrentResolveSharesHandleByReferenceCount(t *testing.T) {
	r := New(t.TempDir(), false)
	h1, err := r.Resolve("sh")
	require.NoError(t, err)
	h2, err := r.Resolve("sh")
	require.NoError(t, err)

	entry := r.entries["sh"]
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.refCount)

	h1.Release()
	assert.Equal(t, 1, r.entries["sh"].refCount)

	h2.Release()
	_, stillCached := r.entries["sh"]
	assert.False(t, stillCached, "refcount reaching zero removes the entry")
}

func TestAuditRecordsEveryAttempt(t *testing.T) {
	r := New(t.TempDir(), false)
	_, _ = r.Resolve("sh")
	_, _ = r.Resolve("totally-unknown-nonexistent-binary-xyz")

	audit := r.Audit()
	require.Len(t, audit, 2)
	assert.True(t, audit[0].Available)
	assert.False(t, audit[1].Available)
}

func TestBreakerIsSharedPerToolName(t *testing.T) {
	r := New(t.TempDir(), false)
	b1 := r.Breaker("checkov")
	b2 := r.Breaker("checkov")
	assert.Same(t, b1, b2)
}

func TestNoteCircuitOpenFiresOncePerTool(t *testing.T) {
	r := New(t.TempDir(), false)
	assert.True(t, r.NoteCircuitOpen("checkov"))
	assert.False(t, r.NoteCircuitOpen("checkov"))
	assert.True(t, r.NoteCircuitOpen("tflint"))
}
