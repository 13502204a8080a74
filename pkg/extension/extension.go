// Package extension scans a parsed Artifact for out-of-standard elements
// (CRDs, unknown Terraform providers, third-party action references, ...)
// and resolves them against a pluggable documentation side-channel.
package extension

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/sourcegraph/conc/pool"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/logger"
	"github.com/cc-devops-skills/corevalidate/pkg/ratelimit"
	"github.com/cc-devops-skills/corevalidate/pkg/repoutil"
)

var log = logger.New("extension:detector")

// SchemaFragment is a minimal structural description used to validate one
// extension: required fields, field types, and enum values.
type SchemaFragment struct {
	RequiredFields []string
	FieldTypes     map[string]string
	EnumValues     map[string][]string
}

// Hint mirrors artifact.ExtensionHint with a concrete Resolved type.
type Hint struct {
	Category   string
	Identifier string
	Resolved   *SchemaFragment
}

// Lookup is the doc side-channel contract: resolve one hint to a
// SchemaFragment, or nil if the lookup failed or found nothing. Lookup must
// be idempotent and side-effect-free from the engine's perspective; all
// network I/O happens inside the implementation.
type Lookup interface {
	Lookup(ctx context.Context, category, identifier string) (*SchemaFragment, error)
}

// coreAPIGroups is the bundled allowlist of stable Kubernetes API groups
// that never trigger a k8s-crd hint.
var coreAPIGroups = map[string]bool{
	"":                          true, // v1
	"apps":                      true,
	"batch":                     true,
	"networking.k8s.io":         true,
	"rbac.authorization.k8s.io": true,
	"policy":                    true,
	"autoscaling":               true,
	"storage.k8s.io":            true,
	"apiextensions.k8s.io":      true,
}

// bundledTerraformProviders ship with a schema and never trigger a hint.
var bundledTerraformProviders = map[string]bool{
	"aws":        true,
	"google":     true,
	"azurerm":    true,
	"kubernetes": true,
	"helm":       true,
	"random":     true,
	"null":       true,
}

// bundledFluentBitOutputs ship with Fluent Bit itself and never trigger a hint.
var bundledFluentBitOutputs = map[string]bool{
	"stdout":          true,
	"file":            true,
	"forward":         true,
	"null":            true,
	"counter":         true,
	"es":              true,
	"kafka":           true,
	"http":            true,
	"loki":            true,
	"cloudwatch_logs": true,
}

// firstPartyActionOwners publish GitHub Actions with schemas already known
// to the engine; their actions never trigger an action-reference hint.
var firstPartyActionOwners = map[string]bool{
	"actions": true,
	"github":  true,
}

// Detect scans a's Resources (for k8s), HCL body (for Terraform), INI
// sections (for Fluent Bit), or uses: entries (for GitHub Actions) and
// returns the ExtensionHints it found; the caller is responsible for
// appending them to Artifact.Extensions exactly once.
func Detect(a *artifact.Artifact) []Hint {
	var hints []Hint

	switch a.Kind {
	case artifact.KindYAMLK8s, artifact.KindYAMLHelmChart:
		for _, r := range a.Resources {
			group := apiGroup(r.APIVersion)
			if coreAPIGroups[group] {
				continue
			}
			version := apiVersionOnly(r.APIVersion)
			hints = append(hints, Hint{
				Category:   "k8s-crd",
				Identifier: fmt.Sprintf("%s/%s@%s", group, r.Kind, version),
			})
		}
	case artifact.KindHCLTerraform, artifact.KindHCLTerragrunt:
		hints = append(hints, detectTerraformProviderHints(a.Path, a.Content)...)
	case artifact.KindYAMLFluentBit:
		hints = append(hints, detectFluentBitPluginHints(a.Content)...)
	case artifact.KindYAMLWorkflowGitHub:
		hints = append(hints, detectActionReferenceHints(a.Content)...)
	}

	log.Printf("detected %d extension hint(s) for %s", len(hints), a.Path)
	return hints
}

// detectTerraformProviderHints walks the parsed HCL body for
// terraform { required_providers { ... } } entries not in the bundled
// allowlist, emitting a terraform-provider hint for each.
func detectTerraformProviderHints(path string, content []byte) []Hint {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() || file == nil {
		return nil
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil
	}

	var hints []Hint
	walkRequiredProviders(body, &hints)
	return hints
}

func walkRequiredProviders(body *hclsyntax.Body, hints *[]Hint) {
	for _, block := range body.Blocks {
		if block.Type == "required_providers" {
			for _, attr := range block.Body.Attributes {
				if !bundledTerraformProviders[attr.Name] {
					*hints = append(*hints, Hint{Category: "terraform-provider", Identifier: attr.Name})
				}
			}
			continue
		}
		walkRequiredProviders(block.Body, hints)
	}
}

var fluentBitSectionRe = regexp.MustCompile(`^\s*\[(\w+)\]\s*$`)
var fluentBitNameRe = regexp.MustCompile(`(?i)^\s*Name\s+(\S+)\s*$`)

// detectFluentBitPluginHints scans Fluent Bit's INI-style configuration for
// [OUTPUT] sections naming a plugin outside the bundled set.
func detectFluentBitPluginHints(content []byte) []Hint {
	var hints []Hint
	section := ""
	for _, line := range strings.Split(string(content), "\n") {
		if m := fluentBitSectionRe.FindStringSubmatch(line); m != nil {
			section = strings.ToUpper(m[1])
			continue
		}
		if section != "OUTPUT" {
			continue
		}
		m := fluentBitNameRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.ToLower(m[1])
		if !bundledFluentBitOutputs[name] {
			hints = append(hints, Hint{Category: "fluentbit-plugin", Identifier: name})
		}
	}
	return hints
}

var extensionUsesRe = regexp.MustCompile(`(?m)^\s*-?\s*uses:\s*([^\s#]+)`)

// detectActionReferenceHints scans uses: entries for third-party GitHub
// Actions, skipping local workflow references, Docker actions, and actions
// published by first-party owners.
func detectActionReferenceHints(content []byte) []Hint {
	var hints []Hint
	for _, match := range extensionUsesRe.FindAllStringSubmatch(string(content), -1) {
		ref := strings.Trim(match[1], `"'`)
		if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "docker://") {
			continue
		}
		base := repoutil.ExtractBaseRepo(ref)
		owner, _, err := repoutil.SplitRepoSlug(base)
		if err != nil || firstPartyActionOwners[owner] {
			continue
		}
		hints = append(hints, Hint{Category: "action-reference", Identifier: ref})
	}
	return hints
}

func apiGroup(apiVersion string) string {
	for i := 0; i < len(apiVersion); i++ {
		if apiVersion[i] == '/' {
			return apiVersion[:i]
		}
	}
	return ""
}

func apiVersionOnly(apiVersion string) string {
	for i := 0; i < len(apiVersion); i++ {
		if apiVersion[i] == '/' {
			return apiVersion[i+1:]
		}
	}
	return apiVersion
}

// Resolver consults a Lookup implementation concurrently, bounded by
// parallelism, caching each unique hint for the lifetime of a Run.
type Resolver struct {
	lookup      Lookup
	parallelism int
	timeout     time.Duration
	limiter     *ratelimit.TokenBucket

	cacheMu sync.Mutex
	cache   map[string]*SchemaFragment
}

// NewResolver constructs a Resolver. lookup may be nil, in which case
// ResolveAll degrades gracefully and returns a failed-lookup Finding for
// every hint without making any calls.
func NewResolver(lookup Lookup, parallelism int, timeout time.Duration) *Resolver {
	limiter, err := ratelimit.NewTokenBucket(ratelimit.OperationDocLookup, nil)
	if err != nil {
		limiter = nil
	}
	return &Resolver{
		lookup:      lookup,
		parallelism: parallelism,
		timeout:     timeout,
		limiter:     limiter,
		cache:       make(map[string]*SchemaFragment),
	}
}

// ResolveAll resolves every hint concurrently, bounded by r.parallelism,
// each with its own deadline, and returns the resolved hints plus one
// info Finding per failed lookup.
func (r *Resolver) ResolveAll(ctx context.Context, hints []Hint, artifactPath string) ([]Hint, []finding.Finding) {
	if len(hints) == 0 {
		return nil, nil
	}

	p := pool.NewWithResults[resolveOutcome]().WithMaxGoroutines(maxInt(1, r.parallelism))

	for _, h := range hints {
		h := h
		p.Go(func() resolveOutcome {
			return r.resolveOne(ctx, h, artifactPath)
		})
	}

	outcomes := p.Wait()

	resolved := make([]Hint, 0, len(outcomes))
	var findings []finding.Finding
	for _, o := range outcomes {
		resolved = append(resolved, o.hint)
		if o.failed {
			findings = append(findings, o.finding)
		}
	}
	return resolved, findings
}

type resolveOutcome struct {
	hint    Hint
	failed  bool
	finding finding.Finding
}

func (r *Resolver) resolveOne(ctx context.Context, h Hint, artifactPath string) resolveOutcome {
	key := h.Category + ":" + h.Identifier

	r.cacheMu.Lock()
	cached, ok := r.cache[key]
	r.cacheMu.Unlock()
	if ok {
		h.Resolved = cached
		return resolveOutcome{hint: h}
	}

	if r.lookup == nil {
		return r.failedOutcome(h, artifactPath)
	}

	if r.limiter != nil {
		_ = r.limiter.Wait(ctx)
	}

	lookupCtx := ctx
	var cancel context.CancelFunc
	if r.timeout > 0 {
		lookupCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	fragment, err := r.lookup.Lookup(lookupCtx, h.Category, h.Identifier)
	if err != nil || fragment == nil {
		return r.failedOutcome(h, artifactPath)
	}

	r.cacheMu.Lock()
	r.cache[key] = fragment
	r.cacheMu.Unlock()
	h.Resolved = fragment
	return resolveOutcome{hint: h}
}

func (r *Resolver) failedOutcome(h Hint, artifactPath string) resolveOutcome {
	return resolveOutcome{
		hint:   h,
		failed: true,
		finding: finding.New(
			"CORE-CRD-SCHEMA-UNAVAILABLE",
			finding.Info,
			fmt.Sprintf("schema for %s %s not found; structural validation limited", h.Category, h.Identifier),
			finding.Location{Path: artifactPath, Line: 1},
			"extension-detector",
		),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
