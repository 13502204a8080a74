// Package finding defines the canonical record produced by every analyzer:
// the Finding type, its severity ladder, and the merge/dedupe/sort rules
// that turn several analyzers' private streams into one deterministic
// output stream.
package finding

import (
	"sort"
	"strings"

	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/logger"
)

var log = logger.New("finding:model")

// Severity re-exports the engine-wide severity ladder.
type Severity = constants.Severity

const (
	Info    = constants.SeverityInfo
	Warning = constants.SeverityWarning
	Error   = constants.SeverityError
	Fatal   = constants.SeverityFatal
)

// Location pinpoints a Finding inside an artifact.
type Location struct {
	Path        string `json:"path"`
	Line        int    `json:"line,omitempty"`
	Column      int    `json:"column,omitempty"`
	EndLine     int    `json:"end_line,omitempty"`
	EndColumn   int    `json:"end_column,omitempty"`
	ResourceRef string `json:"resource_ref,omitempty"`
}

// Finding is the central, immutable record. Construct one with New and
// never mutate it afterward; callers that need a modified copy should build
// a fresh value.
type Finding struct {
	ID         string   `json:"id"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Location   Location `json:"location"`
	Analyzer   string   `json:"analyzer"`
	Tool       string   `json:"tool"`
	Suggestion string   `json:"suggestion,omitempty"`
	References []string `json:"references,omitempty"`
}

// New builds a Finding, defaulting Tool to the analyzer name when unset.
func New(id string, severity Severity, message string, loc Location, analyzer string) Finding {
	return Finding{
		ID:       id,
		Severity: severity,
		Message:  message,
		Location: loc,
		Analyzer: analyzer,
		Tool:     analyzer,
	}
}

// WithTool returns a copy of f with Tool set, for findings produced by an
// external tool distinct from the analyzer name (e.g. analyzer "shell-lint",
// tool "shellcheck").
func (f Finding) WithTool(tool string) Finding {
	f.Tool = tool
	return f
}

// WithSuggestion returns a copy of f with Suggestion set.
func (f Finding) WithSuggestion(s string) Finding {
	f.Suggestion = s
	return f
}

// WithReferences returns a copy of f with References set.
func (f Finding) WithReferences(refs ...string) Finding {
	f.References = refs
	return f
}

// identityKey is the duplicate-detection key: two Findings are
// duplicates iff they share (id, path, line, column, resource_ref).
type identityKey struct {
	id          string
	path        string
	line        int
	column      int
	resourceRef string
}

func (f Finding) identity() identityKey {
	return identityKey{
		id:          f.ID,
		path:        f.Location.Path,
		line:        f.Location.Line,
		column:      f.Location.Column,
		resourceRef: f.Location.ResourceRef,
	}
}

// Merge concatenates several analyzer streams into one, preserving the
// relative emission order within each stream. Dedupe must be
// applied afterward to establish the canonical output stream.
func Merge(streams ...[]Finding) []Finding {
	total := 0
	for _, s := range streams {
		total += len(s)
	}
	merged := make([]Finding, 0, total)
	for _, s := range streams {
		merged = append(merged, s...)
	}
	return merged
}

// Dedupe collapses Findings sharing an identity key, keeping the first
// occurrence and raising its severity to the maximum seen for that key.
func Dedupe(stream []Finding) []Finding {
	order := make([]identityKey, 0, len(stream))
	kept := make(map[identityKey]Finding, len(stream))

	for _, f := range stream {
		key := f.identity()
		existing, ok := kept[key]
		if !ok {
			kept[key] = f
			order = append(order, key)
			continue
		}
		if f.Severity > existing.Severity {
			existing.Severity = f.Severity
			kept[key] = existing
		}
	}

	out := make([]Finding, 0, len(order))
	for _, key := range order {
		out = append(out, kept[key])
	}
	log.Printf("deduped %d findings into %d", len(stream), len(out))
	return out
}

// Classify applies the strict-mode/threshold policy: a Finding below
// threshold is retained in the stream but does not influence the exit code,
// and a warning becomes exit-significant under strict mode.
func Classify(severity Severity, threshold Severity, strict bool) Severity {
	if severity < threshold {
		return severity
	}
	if strict && severity == Warning {
		return Error
	}
	return severity
}

// Sort orders Findings by the total order:
// (path, line ?? 0, column ?? 0, severity-descending, id).
func Sort(stream []Finding) {
	sort.SliceStable(stream, func(i, j int) bool {
		a, b := stream[i], stream[j]
		if a.Location.Path != b.Location.Path {
			return a.Location.Path < b.Location.Path
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line < b.Location.Line
		}
		if a.Location.Column != b.Location.Column {
			return a.Location.Column < b.Location.Column
		}
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		return a.ID < b.ID
	})
}

// MergeDedupeSort runs the full pipeline: merge, dedupe, then sort into
// the canonical total order.
func MergeDedupeSort(streams ...[]Finding) []Finding {
	merged := Merge(streams...)
	deduped := Dedupe(merged)
	Sort(deduped)
	return deduped
}

// Counts tallies Findings by severity.
type Counts struct {
	Info    int `json:"info"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
	Fatal   int `json:"fatal"`
}

// ParseSeverity parses one of the four severity names, case-insensitively,
// for CLI flags and config files.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(s) {
	case "info":
		return Info, true
	case "warning":
		return Warning, true
	case "error":
		return Error, true
	case "fatal":
		return Fatal, true
	default:
		return 0, false
	}
}

// CountBySeverity tallies a stream into a Counts value.
func CountBySeverity(stream []Finding) Counts {
	var c Counts
	for _, f := range stream {
		switch f.Severity {
		case Info:
			c.Info++
		case Warning:
			c.Warning++
		case Error:
			c.Error++
		case Fatal:
			c.Fatal++
		}
	}
	return c
}
