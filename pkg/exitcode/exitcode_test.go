package exitcode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cc-devops-skills/corevalidate/pkg/finding"
)

func at(sev finding.Severity) finding.Finding {
	return finding.New("X", sev, "msg", finding.Location{Path: "f"}, "a")
}

func TestResolveFatalBeatsEverything(t *testing.T) {
	findings := []finding.Finding{at(finding.Warning), at(finding.Error), at(finding.Fatal)}
	assert.Equal(t, FatalFailure, Resolve(findings, false))
}

func TestResolveErrorWithoutStrict(t *testing.T) {
	findings := []finding.Finding{at(finding.Warning), at(finding.Error)}
	assert.Equal(t, PolicyFailure, Resolve(findings, false))
}

func TestResolveWarningOnlyPassesWithoutStrict(t *testing.T) {
	findings := []finding.Finding{at(finding.Warning)}
	assert.Equal(t, Pass, Resolve(findings, false))
}

func TestResolveWarningFailsUnderStrict(t *testing.T) {
	findings := []finding.Finding{at(finding.Warning)}
	assert.Equal(t, PolicyFailure, Resolve(findings, true))
}

func TestResolveInfoOnlyPasses(t *testing.T) {
	findings := []finding.Finding{at(finding.Info)}
	assert.Equal(t, Pass, Resolve(findings, true))
}

func TestFinalCancellationOverridesFatal(t *testing.T) {
	findings := []finding.Finding{at(finding.Fatal)}
	assert.Equal(t, SignalCancellation, Final(findings, false, true, false))
}

func TestFinalInvalidInvocationOverridesFindings(t *testing.T) {
	assert.Equal(t, InvalidInvocation, Final(nil, false, false, true))
}

func TestPassed(t *testing.T) {
	assert.True(t, Passed(Pass))
	assert.False(t, Passed(PolicyFailure))
}
