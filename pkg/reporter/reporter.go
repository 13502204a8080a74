// Package reporter renders a Run as either a human-readable terminal report
// or a stable-key-order JSON document, both derived from the same Finding
// stream.
package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cc-devops-skills/corevalidate/pkg/config"
	"github.com/cc-devops-skills/corevalidate/pkg/console"
	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/logger"
	"github.com/cc-devops-skills/corevalidate/pkg/orchestrator"
	"github.com/cc-devops-skills/corevalidate/pkg/toolregistry"
)

var log = logger.New("reporter:render")

// ArtifactSummary is the JSON-facing metadata for one artifact.
type ArtifactSummary struct {
	Path          string `json:"path"`
	Kind          string `json:"kind"`
	FindingsCount int    `json:"findings_count"`
}

// Summary is the trailing counts-and-verdict block common to both renderings.
type Summary struct {
	Counts finding.Counts `json:"counts"`
	Pass   bool           `json:"pass"`
}

// Document is the full JSON rendering of a Run.
type Document struct {
	Artifacts []ArtifactSummary         `json:"artifacts"`
	Findings  []finding.Finding         `json:"findings"`
	ToolAudit []toolregistry.AuditEntry `json:"tool_audit"`
	Summary   Summary                   `json:"summary"`
}

// applyColorPolicy honors the color config: NO_COLOR or an explicit
// "never" forces plain output; lipgloss/termenv otherwise auto-detects the
// terminal.
func applyColorPolicy(color constants.ColorMode) {
	if color == constants.ColorModeNever {
		os.Setenv(constants.EnvNoColor, "1")
	}
}

// Render produces the configured rendering (human or JSON) for run.
func Render(run orchestrator.Run, cfg config.Configuration, passed bool) (string, error) {
	applyColorPolicy(cfg.Color)

	switch cfg.OutputFormat {
	case constants.OutputFormatJSON:
		return RenderJSON(run, passed)
	default:
		return RenderHuman(run, passed), nil
	}
}

// RenderJSON builds the JSON document; struct field order is the wire
// key order, so output is stable across runs.
func RenderJSON(run orchestrator.Run, passed bool) (string, error) {
	artifacts := make([]ArtifactSummary, 0, len(run.Artifacts))
	for _, r := range run.Artifacts {
		artifacts = append(artifacts, ArtifactSummary{
			Path:          r.Artifact.Path,
			Kind:          string(r.Artifact.Kind),
			FindingsCount: len(r.Findings),
		})
	}

	doc := Document{
		Artifacts: artifacts,
		Findings:  run.Findings,
		ToolAudit: run.ToolAudit,
		Summary: Summary{
			Counts: finding.CountBySeverity(run.Findings),
			Pass:   passed,
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("reporter: marshaling JSON document: %w", err)
	}
	return string(data), nil
}

// RenderHuman builds the terminal report: a section per artifact, a count
// table, and a final PASS/FAIL summary line.
func RenderHuman(run orchestrator.Run, passed bool) string {
	var out strings.Builder

	for _, r := range run.Artifacts {
		if len(r.Findings) == 0 {
			continue
		}
		out.WriteString(console.FormatListHeader(r.Artifact.Path))
		out.WriteString("\n")
		for _, f := range r.Findings {
			out.WriteString(console.FormatError(toCompilerError(f)))
			if f.Suggestion != "" {
				out.WriteString(console.FormatInfoMessage("suggestion: " + f.Suggestion))
				out.WriteString("\n")
			}
		}
		out.WriteString("\n")
	}

	counts := finding.CountBySeverity(run.Findings)
	out.WriteString(console.RenderTable(console.TableConfig{
		Title:   "Findings by severity",
		Headers: []string{"Severity", "Count"},
		Rows: [][]string{
			{"fatal", fmt.Sprintf("%d", counts.Fatal)},
			{"error", fmt.Sprintf("%d", counts.Error)},
			{"warning", fmt.Sprintf("%d", counts.Warning)},
			{"info", fmt.Sprintf("%d", counts.Info)},
		},
	}))

	if byAnalyzer := groupByAnalyzer(run.Findings); len(byAnalyzer) > 0 {
		out.WriteString(console.RenderTable(console.TableConfig{
			Title:   "Findings by analyzer",
			Headers: []string{"Analyzer", "Count"},
			Rows:    byAnalyzer,
		}))
	}

	verdict := "PASS"
	verdictFn := console.FormatSuccessMessage
	if !passed {
		verdict = "FAIL"
		verdictFn = console.FormatErrorMessage
	}
	out.WriteString(verdictFn(fmt.Sprintf("%s — %d finding(s) across %d artifact(s)", verdict, len(run.Findings), len(run.Artifacts))))
	out.WriteString("\n")

	log.Printf("rendered human report: findings=%d artifacts=%d pass=%v", len(run.Findings), len(run.Artifacts), passed)
	return out.String()
}

// groupByAnalyzer tallies findings per analyzer and returns rows sorted by
// analyzer name, adapting the teacher's by-category grouping to the
// analyzer-keyed Finding model in place of a free-form category string.
func groupByAnalyzer(findings []finding.Finding) [][]string {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[f.Analyzer]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, fmt.Sprintf("%d", counts[name])})
	}
	return rows
}

func toCompilerError(f finding.Finding) console.CompilerError {
	return console.CompilerError{
		Position: console.ErrorPosition{File: f.Location.Path, Line: f.Location.Line, Column: f.Location.Column},
		Type:     severityToConsoleType(f.Severity),
		Message:  fmt.Sprintf("[%s] %s", f.ID, f.Message),
	}
}

func severityToConsoleType(s finding.Severity) string {
	switch s {
	case finding.Fatal:
		return "fatal"
	case finding.Error:
		return "error"
	case finding.Warning:
		return "warning"
	default:
		return "info"
	}
}
