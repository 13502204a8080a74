package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/stringutil"
)

// HelmLintAnalyzer wraps "helm lint" and, when the chart renders cleanly,
// pipes the rendered manifests through kubeconform directly, since the
// rendered output (not the template source) is what a schema check actually
// needs, folding the helm-lint -> k8s-schema dependency into one pass rather
// than re-dispatching a rendered chart through the orchestrator's per-kind
// scheduling.
type HelmLintAnalyzer struct{ Base }

func NewHelmLintAnalyzer() *HelmLintAnalyzer {
	return &HelmLintAnalyzer{Base{
		AnalyzerName: "helm-lint",
		Applies:      []artifact.Kind{artifact.KindYAMLHelmChart},
		Tools:        []string{"helm", "kubeconform"},
	}}
}

var helmLintIssueRe = regexp.MustCompile(`(?m)^\[(INFO|WARNING|ERROR)\] (.+)$`)

func (a *HelmLintAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	chartDir := chartDirFor(ac.Artifact.Path)

	var findings []finding.Finding

	lintResult, lintFindings, lintOK := runTool(ctx, ac, "helm", []string{"lint", chartDir})
	findings = append(findings, lintFindings...)
	if lintOK {
		for _, match := range helmLintIssueRe.FindAllStringSubmatch(lintResult.Stdout, -1) {
			findings = append(findings, finding.New(
				"CORE-HELM-LINT", helmSeverity(match[1]), stringutil.SanitizeErrorMessage(match[2]),
				finding.Location{Path: ac.Artifact.Path}, a.AnalyzerName,
			))
		}
	}

	renderResult, renderFindings, renderOK := runTool(ctx, ac, "helm", []string{"template", chartDir})
	findings = append(findings, renderFindings...)
	if !renderOK || renderResult.ExitCode != 0 {
		return findings, nil
	}

	rendered, err := os.CreateTemp("", "corevalidate-helm-render-*.yaml")
	if err != nil {
		return findings, nil
	}
	defer os.Remove(rendered.Name())
	if _, err := rendered.WriteString(renderResult.Stdout); err != nil {
		rendered.Close()
		return findings, nil
	}
	rendered.Close()

	kubeconformResult, kubeconformFindings, ok := runTool(ctx, ac, "kubeconform", []string{"-summary", "-output", "text", rendered.Name()})
	findings = append(findings, kubeconformFindings...)
	if !ok {
		return findings, nil
	}
	for _, match := range kubeconformLineRe.FindAllStringSubmatch(kubeconformResult.Stdout, -1) {
		findings = append(findings, finding.New(
			"CORE-HELM-RENDERED-SCHEMA-VIOLATION", finding.Error,
			fmt.Sprintf("%s: %s", match[2], stringutil.SanitizeErrorMessage(match[4])),
			finding.Location{Path: ac.Artifact.Path, ResourceRef: match[1]}, a.AnalyzerName,
		))
	}
	return findings, nil
}

func helmSeverity(level string) finding.Severity {
	switch level {
	case "ERROR":
		return finding.Error
	case "WARNING":
		return finding.Warning
	default:
		return finding.Info
	}
}

// chartDirFor walks up from a values/template file to the chart root (the
// directory containing Chart.yaml), falling back to the file's own
// directory when no Chart.yaml is found within a few levels.
func chartDirFor(path string) string {
	dir := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir = filepath.Dir(path)
	}
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(filepath.Join(dir, "Chart.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir
}
