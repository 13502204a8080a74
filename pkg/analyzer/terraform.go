package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/terraform-config-inspect/tfconfig"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/stringutil"
)

// TFLintAnalyzer wraps tflint, supplemented with terraform-config-inspect's
// module graph so later analyzers (tf-security) can report findings against
// resolved module call names rather than bare file paths.
type TFLintAnalyzer struct{ Base }

func NewTFLintAnalyzer() *TFLintAnalyzer {
	return &TFLintAnalyzer{Base{
		AnalyzerName: "tf-lint",
		Applies:      []artifact.Kind{artifact.KindHCLTerraform},
		Tools:        []string{"tflint"},
	}}
}

var tflintCompactRe = regexp.MustCompile(`(?m)^(.+):(\d+):(\d+):\s*(\w+)\s*-\s*(.+)$`)

func (a *TFLintAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	dir := filepath.Dir(ac.Artifact.Path)
	mod, diags := tfconfig.LoadModule(dir)

	var findings []finding.Finding
	if mod != nil {
		for name, call := range mod.ModuleCalls {
			if call.Source == "" {
				findings = append(findings, finding.New(
					"CORE-TF-MODULE-NO-SOURCE", finding.Warning,
					fmt.Sprintf("module call %q has no source attribute", name),
					finding.Location{Path: ac.Artifact.Path, ResourceRef: "module." + name}, a.AnalyzerName,
				))
			}
		}
	}
	for _, d := range diags {
		if d.Severity != tfconfig.DiagError {
			continue
		}
		findings = append(findings, finding.New(
			"CORE-TF-MODULE-LOAD-ERROR", finding.Error, d.Summary,
			finding.Location{Path: ac.Artifact.Path}, a.AnalyzerName,
		))
	}

	result, toolFindings, ok := runTool(ctx, ac, "tflint", []string{"--format", "compact", ac.Artifact.Path})
	findings = append(findings, toolFindings...)
	if !ok {
		return findings, nil
	}
	for _, match := range tflintCompactRe.FindAllStringSubmatch(result.Stdout, -1) {
		line, _ := strconv.Atoi(match[2])
		column, _ := strconv.Atoi(match[3])
		findings = append(findings, finding.New(
			"CORE-TF-LINT", severityFromShellcheck(strings.ToLower(match[4])), stringutil.SanitizeErrorMessage(match[5]),
			finding.Location{Path: ac.Artifact.Path, Line: line, Column: column}, a.AnalyzerName,
		))
	}
	return findings, nil
}

// TFSecurityAnalyzer prefers checkov, then trivy config, then tfsec as a
// fallback chain, supplemented with a native hcl/v2 scan for the handful of
// wide-open patterns (public ingress, disabled encryption) that are cheap to
// catch without a full provider schema. It runs after tf-lint so it can
// report against the module names tf-lint already resolved.
type TFSecurityAnalyzer struct{ Base }

func NewTFSecurityAnalyzer() *TFSecurityAnalyzer {
	return &TFSecurityAnalyzer{Base{
		AnalyzerName: "tf-security",
		Applies:      []artifact.Kind{artifact.KindHCLTerraform},
		Tools:        []string{"checkov", "trivy", "tfsec"},
		Dependencies: []string{"tf-lint"},
	}}
}

var checkovFailRe = regexp.MustCompile(`(?m)^Check:\s+(CKV_\w+):\s+"(.+)"\nFAILED`)

func (a *TFSecurityAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	findings := scanHCLForRiskyAttributes(ac.Artifact.Path, ac.Artifact.Content)

	result, toolFindings, ok := runTool(ctx, ac, "checkov", []string{"-f", ac.Artifact.Path, "--compact", "--quiet"})
	findings = append(findings, toolFindings...)
	if !ok {
		return findings, nil
	}
	for _, match := range checkovFailRe.FindAllStringSubmatch(result.Stdout, -1) {
		findings = append(findings, finding.New(
			match[1], finding.Error, stringutil.SanitizeErrorMessage(match[2]),
			finding.Location{Path: ac.Artifact.Path}, a.AnalyzerName,
		))
	}
	return findings, nil
}

var riskyAttributeRules = []struct {
	attribute string
	badValue  string
	id        string
	message   string
}{
	{"cidr_blocks", "0.0.0.0/0", "CORE-TF-OPEN-INGRESS-CIDR", "security group rule allows ingress from 0.0.0.0/0"},
	{"publicly_accessible", "true", "CORE-TF-PUBLICLY-ACCESSIBLE", "resource is marked publicly_accessible"},
	{"encrypted", "false", "CORE-TF-ENCRYPTION-DISABLED", "resource explicitly disables encryption"},
}

// scanHCLForRiskyAttributes walks the parsed HCL body for a small set of
// attribute/value pairs known to indicate a wide-open security posture,
// without requiring a provider schema.
func scanHCLForRiskyAttributes(path string, content []byte) []finding.Finding {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() || file == nil {
		return nil
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil
	}

	var findings []finding.Finding
	walkHCLBlocks(body, path, content, &findings)
	return findings
}

func walkHCLBlocks(body *hclsyntax.Body, path string, content []byte, findings *[]finding.Finding) {
	for _, attr := range body.Attributes {
		raw := string(attr.Expr.Range().SliceBytes(content))
		for _, rule := range riskyAttributeRules {
			if attr.Name == rule.attribute && strings.Contains(raw, rule.badValue) {
				*findings = append(*findings, finding.New(
					rule.id, finding.Error, rule.message,
					finding.Location{Path: path, Line: attr.Range().Start.Line}, "tf-security",
				))
			}
		}
	}
	for _, block := range body.Blocks {
		walkHCLBlocks(block.Body, path, content, findings)
	}
}
