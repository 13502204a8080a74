package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
)

// CoreBestPracticesAnalyzer applies artifact-specific rules that don't
// warrant an external tool: latest-tag in Dockerfile, missing HEALTHCHECK,
// missing.PHONY, unpinned action refs, and a rego-evaluated pod-security
// policy for Kubernetes manifests.
type CoreBestPracticesAnalyzer struct {
	Base
}

func NewCoreBestPracticesAnalyzer() *CoreBestPracticesAnalyzer {
	return &CoreBestPracticesAnalyzer{Base{
		AnalyzerName: "core-best-practices",
		Applies: []artifact.Kind{
			artifact.KindDockerfile, artifact.KindMakefile, artifact.KindYAMLWorkflowGitHub, artifact.KindYAMLK8s,
		},
	}}
}

var (
	fromLatestRe     = regexp.MustCompile(`(?i)^FROM\s+\S+:latest\b`)
	fromNoTagRe      = regexp.MustCompile(`(?i)^FROM\s+([^\s:@]+)\s*(?:#.*)?$`)
	healthcheckRe    = regexp.MustCompile(`(?i)^HEALTHCHECK\b`)
	phonyTargetRe    = regexp.MustCompile(`^\.PHONY\s*:`)
	makeTargetRe     = regexp.MustCompile(`^([a-zA-Z0-9_.-]+)\s*:(?:[^=]|$)`)
	actionUnpinnedRe = regexp.MustCompile(`(?m)^\s*uses:\s*([^\s#@]+@)(v?\d+(?:\.\d+)*)\s*$`)
)

func (a *CoreBestPracticesAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	switch ac.Artifact.Kind {
	case artifact.KindDockerfile:
		return a.checkDockerfile(ac), nil
	case artifact.KindMakefile:
		return a.checkMakefile(ac), nil
	case artifact.KindYAMLWorkflowGitHub:
		return a.checkWorkflow(ac), nil
	case artifact.KindYAMLK8s:
		return a.checkK8sPolicy(ctx, ac), nil
	}
	return nil, nil
}

func (a *CoreBestPracticesAnalyzer) checkDockerfile(ac Context) []finding.Finding {
	var findings []finding.Finding
	lines := strings.Split(string(ac.Artifact.Content), "\n")
	sawHealthcheck := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if fromLatestRe.MatchString(trimmed) || fromNoTagRe.MatchString(trimmed) {
			findings = append(findings, finding.New(
				"CORE-DOCKER-UNPINNED-BASE-IMAGE", finding.Warning,
				"base image is not pinned to a specific tag or digest",
				finding.Location{Path: ac.Artifact.Path, Line: i + 1}, a.AnalyzerName,
			))
		}
		if healthcheckRe.MatchString(trimmed) {
			sawHealthcheck = true
		}
	}

	if !sawHealthcheck {
		findings = append(findings, finding.New(
			"CORE-DOCKER-MISSING-HEALTHCHECK", finding.Info,
			"Dockerfile does not define a HEALTHCHECK instruction",
			finding.Location{Path: ac.Artifact.Path, Line: 1}, a.AnalyzerName,
		))
	}
	return findings
}

func (a *CoreBestPracticesAnalyzer) checkMakefile(ac Context) []finding.Finding {
	lines := strings.Split(string(ac.Artifact.Content), "\n")
	declaredPhony := false
	hasTargets := false

	for _, line := range lines {
		if phonyTargetRe.MatchString(line) {
			declaredPhony = true
		}
		if makeTargetRe.MatchString(line) && !strings.HasPrefix(line, "\t") {
			hasTargets = true
		}
	}

	if hasTargets && !declaredPhony {
		return []finding.Finding{finding.New(
			"CORE-MAKE-MISSING-PHONY", finding.Info,
			"Makefile declares targets but no.PHONY list",
			finding.Location{Path: ac.Artifact.Path, Line: 1}, a.AnalyzerName,
		)}
	}
	return nil
}

func (a *CoreBestPracticesAnalyzer) checkWorkflow(ac Context) []finding.Finding {
	var findings []finding.Finding
	lines := strings.Split(string(ac.Artifact.Content), "\n")

	for i, line := range lines {
		if match := actionUnpinnedRe.FindStringSubmatch(line); match != nil {
			findings = append(findings, finding.New(
				"CORE-ACTION-UNPINNED-REF", finding.Warning,
				"action reference is pinned to a mutable tag instead of a commit SHA: "+match[1]+match[2],
				finding.Location{Path: ac.Artifact.Path, Line: i + 1}, a.AnalyzerName,
			))
		}
	}
	return findings
}
