package analyzer

import (
	"context"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/stringutil"
)

// WorkflowLocalRunAnalyzer dry-runs a workflow against a local execution
// engine (act for GitHub Actions, gitlab-ci-local for GitLab CI) to catch
// job-graph problems - circular needs, unresolvable job references - that a
// structural schema check cannot see. It never invokes the workflow's own
// steps; both tools are called in their dry-run/list mode only.
type WorkflowLocalRunAnalyzer struct{ Base }

func NewWorkflowLocalRunAnalyzer() *WorkflowLocalRunAnalyzer {
	return &WorkflowLocalRunAnalyzer{Base{
		AnalyzerName: "workflow-local-run",
		Applies:      []artifact.Kind{artifact.KindYAMLWorkflowGitHub, artifact.KindYAMLWorkflowGitLab},
		Tools:        []string{"act", "gitlab-ci-local"},
		Dependencies: []string{"yaml-schema"},
	}}
}

func (a *WorkflowLocalRunAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	switch ac.Artifact.Kind {
	case artifact.KindYAMLWorkflowGitHub:
		return a.runAct(ctx, ac)
	case artifact.KindYAMLWorkflowGitLab:
		return a.runGitLabCILocal(ctx, ac)
	default:
		return nil, nil
	}
}

func (a *WorkflowLocalRunAnalyzer) runAct(ctx context.Context, ac Context) ([]finding.Finding, error) {
	result, findings, ok := runTool(ctx, ac, "act", []string{"-n", "-W", ac.Artifact.Path, "--list"})
	if !ok {
		return findings, nil
	}
	if result.ExitCode == 0 {
		return findings, nil
	}
	return append(findings, finding.New(
		"CORE-WORKFLOW-GRAPH-UNRESOLVABLE", finding.Error,
		"act could not resolve the job graph for this workflow: "+stringutil.SanitizeErrorMessage(firstLine(result.Stderr)),
		finding.Location{Path: ac.Artifact.Path}, a.AnalyzerName,
	)), nil
}

func (a *WorkflowLocalRunAnalyzer) runGitLabCILocal(ctx context.Context, ac Context) ([]finding.Finding, error) {
	result, findings, ok := runTool(ctx, ac, "gitlab-ci-local", []string{"--file", ac.Artifact.Path, "--list"})
	if !ok {
		return findings, nil
	}
	if result.ExitCode == 0 {
		return findings, nil
	}
	return append(findings, finding.New(
		"CORE-WORKFLOW-GRAPH-UNRESOLVABLE", finding.Error,
		"gitlab-ci-local could not resolve the job graph for this workflow: "+stringutil.SanitizeErrorMessage(firstLine(result.Stderr)),
		finding.Location{Path: ac.Artifact.Path}, a.AnalyzerName,
	)), nil
}
