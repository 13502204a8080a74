package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/gitutil"
	"github.com/cc-devops-skills/corevalidate/pkg/repoutil"
)

// ActionVersionsAnalyzer compares uses: owner/repo@ref entries against a
// bundled table of known-deprecated major versions.
type ActionVersionsAnalyzer struct {
	Base
	deprecated map[string]string
}

func NewActionVersionsAnalyzer() *ActionVersionsAnalyzer {
	return &ActionVersionsAnalyzer{
		Base: Base{
			AnalyzerName: "action-versions",
			Applies:      []artifact.Kind{artifact.KindYAMLWorkflowGitHub},
		},
		deprecated: map[string]string{
			"actions/checkout@v1":        "actions/checkout@v4",
			"actions/checkout@v2":        "actions/checkout@v4",
			"actions/checkout@v3":        "actions/checkout@v4",
			"actions/setup-node@v1":      "actions/setup-node@v4",
			"actions/setup-node@v2":      "actions/setup-node@v4",
			"actions/setup-python@v1":    "actions/setup-python@v5",
			"actions/setup-python@v2":    "actions/setup-python@v5",
			"actions/upload-artifact@v1": "actions/upload-artifact@v4",
			"actions/upload-artifact@v2": "actions/upload-artifact@v4",
			"actions/upload-artifact@v3": "actions/upload-artifact@v4",
		},
	}
}

var usesRe = regexp.MustCompile(`(?m)^\s*uses:\s*([^\s#]+)`)

func (a *ActionVersionsAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	var findings []finding.Finding
	lines := strings.Split(string(ac.Artifact.Content), "\n")

	for i, line := range lines {
		match := usesRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		ref := strings.Trim(match[1], `"'`)
		if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "docker://") {
			continue
		}

		base := repoutil.ExtractBaseRepo(ref)

		if replacement, ok := a.deprecated[ref]; ok {
			findings = append(findings, finding.New(
				"CORE-ACTION-DEPRECATED-VERSION", finding.Warning,
				fmt.Sprintf("%s is deprecated; use %s", ref, replacement),
				finding.Location{Path: ac.Artifact.Path, Line: i + 1, ResourceRef: base}, a.AnalyzerName,
			))
			continue
		}

		sha := refSHA(ref)
		if sha != "" && !gitutil.IsHexString(sha) {
			findings = append(findings, finding.New(
				"CORE-ACTION-MALFORMED-REF", finding.Error,
				fmt.Sprintf("%s pins to a ref that is not a valid commit SHA", ref),
				finding.Location{Path: ac.Artifact.Path, Line: i + 1, ResourceRef: base}, a.AnalyzerName,
			))
		}
	}

	return findings, nil
}

func refSHA(ref string) string {
	at := strings.LastIndex(ref, "@")
	if at < 0 {
		return ""
	}
	candidate := ref[at+1:]
	if len(candidate) == 40 {
		return candidate
	}
	return ""
}
