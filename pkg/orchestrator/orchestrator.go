// Package orchestrator drives one Run end to end: classify, detect
// extensions, resolve doc-lookup hints, schedule analyzers per their
// dependency graph, and merge the results into a deterministic Finding
// stream.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/cc-devops-skills/corevalidate/pkg/analyzer"
	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/config"
	"github.com/cc-devops-skills/corevalidate/pkg/extension"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/logger"
	"github.com/cc-devops-skills/corevalidate/pkg/mathutil"
	"github.com/cc-devops-skills/corevalidate/pkg/sliceutil"
	"github.com/cc-devops-skills/corevalidate/pkg/toolregistry"
)

var log = logger.New("orchestrator:run")

// ArtifactReport is the per-artifact slice of a Run's output: its parse
// state, the extension hints detected on it, and the findings produced by
// every analyzer that ran against it.
type ArtifactReport struct {
	Artifact *artifact.Artifact
	Findings []finding.Finding
}

// Run is the outcome of one orchestrator invocation.
type Run struct {
	Artifacts []ArtifactReport
	Findings  []finding.Finding
	ToolAudit []toolregistry.AuditEntry
	Cancelled bool
}

// Orchestrator wires together the tool registry, analyzer roster, and
// extension resolver for a single Run.
type Orchestrator struct {
	cfg      config.Configuration
	registry *analyzer.Registry
	tools    *toolregistry.Registry
	resolver *extension.Resolver
}

// New constructs an Orchestrator. lookup may be nil, which degrades every
// extension hint to a failed, informational lookup.
func New(cfg config.Configuration, registry *analyzer.Registry, tools *toolregistry.Registry, lookup extension.Lookup) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		tools:    tools,
		resolver: extension.NewResolver(lookup, cfg.Parallelism, time.Duration(cfg.DocLookupTimeoutSeconds)*time.Second),
	}
}

// Execute runs the full pipeline over paths end to end. Cancelling ctx
// stops scheduling new analyzer work, lets in-flight tool invocations
// deadline-expire, and returns a Run with Cancelled set.
func (o *Orchestrator) Execute(ctx context.Context, paths []string) (Run, error) {
	artifacts, classifyErrs := o.classifyAll(paths)
	if len(classifyErrs) > 0 {
		return Run{}, classifyErrs[0]
	}

	for _, a := range artifacts {
		hints := extension.Detect(a)
		if len(hints) == 0 {
			continue
		}
		a.Extensions = make([]artifact.ExtensionHint, 0, len(hints))
		for _, h := range hints {
			a.Extensions = append(a.Extensions, artifact.ExtensionHint{Category: h.Category, Identifier: h.Identifier})
		}
	}

	hintsByArtifact := make(map[*artifact.Artifact][]extension.Hint)
	var allFindings []finding.Finding

	if o.cfg.DocLookupEnabled {
		for _, a := range artifacts {
			var hints []extension.Hint
			for _, e := range a.Extensions {
				hints = append(hints, extension.Hint{Category: e.Category, Identifier: e.Identifier})
			}
			if len(hints) == 0 {
				continue
			}
			resolved, failedFindings := o.resolver.ResolveAll(ctx, hints, a.Path)
			hintsByArtifact[a] = resolved
			allFindings = append(allFindings, failedFindings...)

			a.Extensions = a.Extensions[:0]
			for _, h := range resolved {
				var r any
				if h.Resolved != nil {
					r = h.Resolved
				}
				a.Extensions = append(a.Extensions, artifact.ExtensionHint{Category: h.Category, Identifier: h.Identifier, Resolved: r})
			}
		}
	}

	reports := make([]ArtifactReport, len(artifacts))
	p := pool.New().WithMaxGoroutines(mathutil.Max(1, o.cfg.Parallelism))
	var mu sync.Mutex
	cancelled := ctx.Err() != nil
	var planErr error

	for i, a := range artifacts {
		i, a := i, a
		p.Go(func() {
			select {
			case <-ctx.Done():
				mu.Lock()
				cancelled = true
				mu.Unlock()
				return
			default:
			}

			findings, err := o.runAnalyzersForArtifact(ctx, a, hintsByArtifact[a])
			if err != nil {
				log.Printf("artifact %s: analyzer plan failed: %v", a.Path, err)
				mu.Lock()
				if planErr == nil {
					planErr = err
				}
				mu.Unlock()
			}
			reports[i] = ArtifactReport{Artifact: a, Findings: findings}
		})
	}
	p.Wait()

	if planErr != nil {
		return Run{}, planErr
	}

	for _, r := range reports {
		allFindings = append(allFindings, r.Findings...)
	}

	run := Run{
		Artifacts: reports,
		Findings:  finding.MergeDedupeSort(allFindings),
		ToolAudit: o.tools.Audit(),
		Cancelled: cancelled || ctx.Err() != nil,
	}
	return run, nil
}

func (o *Orchestrator) classifyAll(paths []string) ([]*artifact.Artifact, []error) {
	artifacts := make([]*artifact.Artifact, 0, len(paths))
	var errs []error
	for _, p := range paths {
		a, err := artifact.Classify(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("classifying %s: %w", p, err))
			continue
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, errs
}

// runAnalyzersForArtifact builds the dependency-ordered analyzer plan for a
// and executes it, running mutually independent analyzers concurrently up
// to o.cfg.Parallelism.
func (o *Orchestrator) runAnalyzersForArtifact(ctx context.Context, a *artifact.Artifact, hints []extension.Hint) ([]finding.Finding, error) {
	applicable := o.registry.ForKind(a.Kind)
	if o.cfg.AnalyzersEnabled != nil {
		applicable = filterEnabled(applicable, o.cfg.AnalyzersEnabled)
	}

	order, err := topologicalOrder(applicable)
	if err != nil {
		return nil, err
	}

	deps := make(map[string][]finding.Finding)
	var depsMu sync.Mutex
	results := make(map[string][]finding.Finding)

	for _, wave := range order {
		p := pool.New().WithMaxGoroutines(mathutil.Max(1, o.cfg.Parallelism))
		for _, a2 := range wave {
			analyzerImpl := a2
			p.Go(func() {
				depsMu.Lock()
				ac := analyzer.Context{Artifact: a, Hints: hints, Tools: o.tools, Config: o.cfg, Deps: deps}
				depsMu.Unlock()

				findings, err := analyzerImpl.Run(ctx, ac)
				if err != nil {
					log.Printf("analyzer %s on %s failed: %v", analyzerImpl.Name(), a.Path, err)
					return
				}

				depsMu.Lock()
				deps[analyzerImpl.Name()] = findings
				results[analyzerImpl.Name()] = findings
				depsMu.Unlock()
			})
		}
		p.Wait()
	}

	var out []finding.Finding
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func filterEnabled(analyzers []analyzer.Analyzer, enabled []string) []analyzer.Analyzer {
	var out []analyzer.Analyzer
	for _, a := range analyzers {
		if sliceutil.Contains(enabled, a.Name()) {
			out = append(out, a)
		}
	}
	return out
}

// CycleError reports a dependency cycle among analyzers , mapped to
// exit code 2 by the Exit-Code Arbiter.
type CycleError struct {
	Names []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("CORE-ANALYZER-CYCLE: dependency cycle among analyzers: %v", e.Names)
}

// topologicalOrder groups analyzers into waves by depends_on, where every
// analyzer in wave N only depends on analyzers in waves < N. Analyzers
// within one wave have no dependency relationship and may run concurrently.
func topologicalOrder(analyzers []analyzer.Analyzer) ([][]analyzer.Analyzer, error) {
	remaining := make(map[string]analyzer.Analyzer, len(analyzers))
	for _, a := range analyzers {
		remaining[a.Name()] = a
	}

	var waves [][]analyzer.Analyzer
	for len(remaining) > 0 {
		var wave []analyzer.Analyzer
		for _, a := range remaining {
			ready := true
			for _, dep := range a.DependsOn() {
				if _, stillPending := remaining[dep]; stillPending {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, a)
			}
		}
		if len(wave) == 0 {
			var stuck []string
			for name := range remaining {
				stuck = append(stuck, name)
			}
			sort.Strings(stuck)
			return nil, &CycleError{Names: stuck}
		}
		sort.Slice(wave, func(i, j int) bool { return wave[i].Name() < wave[j].Name() })
		for _, a := range wave {
			delete(remaining, a.Name())
		}
		waves = append(waves, wave)
	}
	return waves, nil
}

