// Package analyzer defines the uniform analyzer contract  and the
// built-in roster of analyzer plugins.
package analyzer

import (
	"context"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/config"
	"github.com/cc-devops-skills/corevalidate/pkg/extension"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/toolregistry"
)

// Context carries everything a Run hands to one analyzer invocation: the
// artifact under test, its resolved extension hints, the tool registry for
// required_tools resolution, the resolved Configuration governing
// tool-degradation policy, and the outputs of analyzers this one depends_on,
// keyed by analyzer name.
type Context struct {
	Artifact *artifact.Artifact
	Hints    []extension.Hint
	Tools    *toolregistry.Registry
	Config   config.Configuration
	Deps     map[string][]finding.Finding
}

// Analyzer is the uniform contract every plugin implements.
type Analyzer interface {
	Name() string
	AppliesTo(kind artifact.Kind) bool
	RequiredTools() []string
	DependsOn() []string
	Run(ctx context.Context, ac Context) ([]finding.Finding, error)
}

// Base supplies the bookkeeping fields shared by nearly every analyzer,
// leaving only Run to be implemented.
type Base struct {
	AnalyzerName string
	Applies      []artifact.Kind
	Tools        []string
	Dependencies []string
}

func (b Base) Name() string            { return b.AnalyzerName }
func (b Base) RequiredTools() []string { return b.Tools }
func (b Base) DependsOn() []string     { return b.Dependencies }

func (b Base) AppliesTo(kind artifact.Kind) bool {
	for _, k := range b.Applies {
		if k == kind {
			return true
		}
	}
	return false
}

// Registry is the ordered list of analyzers available to the orchestrator,
// keyed by name for depends_on resolution.
type Registry struct {
	analyzers []Analyzer
	byName    map[string]Analyzer
}

// NewRegistry builds a Registry from the given analyzers, panicking on a
// duplicate name since that is a programming error, not a runtime one.
func NewRegistry(analyzers ...Analyzer) *Registry {
	r := &Registry{byName: make(map[string]Analyzer, len(analyzers))}
	for _, a := range analyzers {
		if _, exists := r.byName[a.Name()]; exists {
			panic("analyzer: duplicate analyzer name " + a.Name())
		}
		r.analyzers = append(r.analyzers, a)
		r.byName[a.Name()] = a
	}
	return r
}

// All returns every registered analyzer in registration order.
func (r *Registry) All() []Analyzer {
	return r.analyzers
}

// Lookup returns the analyzer registered under name, if any.
func (r *Registry) Lookup(name string) (Analyzer, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// ForKind returns the subset of registered analyzers whose AppliesTo(kind)
// is true, preserving registration order.
func (r *Registry) ForKind(kind artifact.Kind) []Analyzer {
	var out []Analyzer
	for _, a := range r.analyzers {
		if a.AppliesTo(kind) {
			out = append(out, a)
		}
	}
	return out
}

// Default returns the built-in analyzer roster , grounded in the
// internal, regex-only implementations plus the tool-backed wrappers.
func Default() *Registry {
	return NewRegistry(
		NewYAMLLintAnalyzer(),
		NewShellLintAnalyzer(),
		NewDockerLintAnalyzer(),
		NewMakeLintAnalyzer(),
		NewJenkinsLintAnalyzer(),
		NewActionVersionsAnalyzer(),
		NewSecretScanAnalyzer(),
		NewCoreBestPracticesAnalyzer(),
		NewYAMLSchemaAnalyzer(),
		NewActionLintAnalyzer(),
		NewTFLintAnalyzer(),
		NewTFSecurityAnalyzer(),
		NewHelmLintAnalyzer(),
		NewK8sSchemaAnalyzer(),
		NewK8sDryRunAnalyzer(),
		NewWorkflowLocalRunAnalyzer(),
	)
}
