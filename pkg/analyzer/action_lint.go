package analyzer

import (
	"bytes"
	"context"

	"github.com/rhysd/actionlint"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/stringutil"
)

// ActionLintAnalyzer runs actionlint's native Go linter over GitHub Actions
// workflow YAML, covering expression syntax, context/function validity, and
// shellcheck-style script-step analysis that a bundled JSON Schema cannot
// express. It complements yaml-schema's structural check.
type ActionLintAnalyzer struct{ Base }

func NewActionLintAnalyzer() *ActionLintAnalyzer {
	return &ActionLintAnalyzer{Base{
		AnalyzerName: "workflow-actionlint",
		Applies:      []artifact.Kind{artifact.KindYAMLWorkflowGitHub},
	}}
}

func (a *ActionLintAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	var discard bytes.Buffer
	linter, err := actionlint.NewLinter(&discard, &actionlint.LinterOptions{})
	if err != nil {
		return nil, nil
	}

	errs, err := linter.Lint(ac.Artifact.Path, ac.Artifact.Content, nil)
	if err != nil {
		return nil, nil
	}

	findings := make([]finding.Finding, 0, len(errs))
	for _, e := range errs {
		findings = append(findings, finding.New(
			"CORE-ACTIONLINT-"+e.Kind, finding.Error, stringutil.SanitizeErrorMessage(e.Message),
			finding.Location{Path: ac.Artifact.Path, Line: e.Line, Column: e.Column}, a.AnalyzerName,
		))
	}
	return findings, nil
}
