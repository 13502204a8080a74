package procrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	result, err := Run(context.Background(), Options{
		Argv: []string{"sh", "-c", "echo hello; exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.TimedOut)
}

func TestRunNeverErrorsOnNonZeroExit(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Argv: []string{"sh", "-c", "exit 1"},
	})
	assert.NoError(t, err, "non-zero exit is data, not a Go error")
}

func TestRunSpawnFailureReturnsError(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Argv: []string{"/nonexistent/binary-that-does-not-exist"},
	})
	assert.Error(t, err)
}

func TestRunDeadlineExpiryMarksTimedOut(t *testing.T) {
	result, err := Run(context.Background(), Options{
		Argv:     []string{"sh", "-c", "sleep 5"},
		Deadline: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
}

func TestRunTruncatesOversizeOutput(t *testing.T) {
	result, err := Run(context.Background(), Options{
		Argv:      []string{"sh", "-c", "printf 'abcdefghij'"},
		MaxOutput: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "abcd", result.Stdout)
	assert.True(t, result.StdoutTruncated)
}

func TestRunEmptyArgvErrors(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)
}
