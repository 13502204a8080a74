// Package toolregistry resolves external tool names to executables,
// ephemerally provisioning a Python virtual environment when a pip-
// installable tool is absent from PATH and no cached venv exists.
package toolregistry

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/logger"
	"github.com/cc-devops-skills/corevalidate/pkg/procrunner"
	"github.com/cc-devops-skills/corevalidate/pkg/ratelimit"
)

var log = logger.New("toolregistry:registry")

// UnavailableReason distinguishes why a tool could not be resolved.
type UnavailableReason string

const (
	ReasonMissingFromPath UnavailableReason = "missing-from-path"
	ReasonInstallFailed   UnavailableReason = "install-failed"
	ReasonInstallDisabled UnavailableReason = "install-disabled"
)

// UnavailableError is returned when resolve cannot produce a working handle.
type UnavailableError struct {
	Tool   string
	Reason UnavailableReason
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tool %q unavailable: %s", e.Tool, e.Reason)
}

// ToolHandle is a resolved, callable reference to a tool binary plus its
// cleanup hook. Every successful Resolve must be matched by exactly
// one Release call.
type ToolHandle struct {
	name     string
	registry *Registry
	entry    *toolEntry
}

// ArgvPrefix returns the invocation prefix an analyzer should prepend to its
// own arguments, e.g. ["/usr/bin/shellcheck"] or a venv's python -m form.
func (h *ToolHandle) ArgvPrefix() []string {
	return h.entry.argvPrefix
}

// Release decrements the handle's reference count; physical teardown (venv
// removal) happens only when the count reaches zero.
func (h *ToolHandle) Release() {
	h.registry.release(h.name)
}

// AuditEntry records one resolution attempt regardless of outcome.
type AuditEntry struct {
	Name          string
	ResolvedPath  string
	Version       string
	Available     bool
	SkippedReason string
}

type toolEntry struct {
	argvPrefix []string
	venvDir    string
	refCount   int
}

// Registry resolves and caches tool handles for the lifetime of one Run.
type Registry struct {
	mu               sync.Mutex
	entries          map[string]*toolEntry
	audit            []AuditEntry
	cacheDir         string
	venvCache        bool
	breakers         map[string]*gobreaker.CircuitBreaker
	circuitTripped   map[string]bool
	pipTools         map[string]bool
	provisionLimiter *ratelimit.TokenBucket
	invokeLimiter    *ratelimit.TokenBucket
}

// New constructs a Registry. cacheDir is the root for per-user tool caches
// (the CACHE_DIR env var); venvCache enables reuse of a cached venv across runs.
func New(cacheDir string, venvCache bool) *Registry {
	pipTools := make(map[string]bool, len(constants.PipInstallableTools))
	for _, t := range constants.PipInstallableTools {
		pipTools[t] = true
	}

	provisionLimiter, err := ratelimit.NewTokenBucket(ratelimit.OperationToolProvision, nil)
	if err != nil {
		provisionLimiter = nil
	}
	invokeLimiter, err := ratelimit.NewTokenBucket(ratelimit.OperationToolInvoke, nil)
	if err != nil {
		invokeLimiter = nil
	}

	return &Registry{
		entries:          make(map[string]*toolEntry),
		cacheDir:         cacheDir,
		venvCache:        venvCache,
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
		circuitTripped:   make(map[string]bool),
		pipTools:         pipTools,
		provisionLimiter: provisionLimiter,
		invokeLimiter:    invokeLimiter,
	}
}

// Audit returns a snapshot of every resolution attempt recorded so far.
func (r *Registry) Audit() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditEntry, len(r.audit))
	copy(out, r.audit)
	return out
}

// Resolve implements the resolution order: env override, PATH lookup,
// cached venv, then ephemeral provisioning for pip-installable tools.
// Concurrent resolutions of the same tool share one handle (reference counted).
func (r *Registry) Resolve(name string) (*ToolHandle, error) {
	r.mu.Lock()
	if entry, ok := r.entries[name]; ok {
		entry.refCount++
		r.mu.Unlock()
		log.Printf("resolve %s: reusing cached handle (refcount=%d)", name, entry.refCount)
		return &ToolHandle{name: name, registry: r, entry: entry}, nil
	}
	r.mu.Unlock()

	entry, auditEntry, err := r.resolveFresh(name)

	r.mu.Lock()
	r.audit = append(r.audit, auditEntry)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	entry.refCount = 1
	r.entries[name] = entry
	r.mu.Unlock()

	return &ToolHandle{name: name, registry: r, entry: entry}, nil
}

func (r *Registry) resolveFresh(name string) (*toolEntry, AuditEntry, error) {
	// 1. Exact environment override TOOL_<NAME>_PATH.
	envVar := constants.EnvToolPathPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_PATH"
	if override := os.Getenv(envVar); override != "" {
		log.Printf("resolve %s: using env override %s=%s", name, envVar, override)
		return &toolEntry{argvPrefix: []string{override}},
			AuditEntry{Name: name, ResolvedPath: override, Available: true}, nil
	}

	// 2. PATH lookup for the canonical binary name.
	if path, err := exec.LookPath(name); err == nil {
		log.Printf("resolve %s: found on PATH at %s", name, path)
		return &toolEntry{argvPrefix: []string{path}},
			AuditEntry{Name: name, ResolvedPath: path, Available: true}, nil
	}

	// 3. Cached venv, if enabled.
	if r.venvCache {
		if entry, audit, ok := r.lookupCachedVenv(name); ok {
			return entry, audit, nil
		}
	}

	// 4. Ephemeral provisioning, restricted to known pip-installable tools.
	if !r.pipTools[name] {
		return nil, AuditEntry{Name: name, Available: false, SkippedReason: string(ReasonMissingFromPath)},
			&UnavailableError{Tool: name, Reason: ReasonMissingFromPath}
	}

	entry, err := r.provision(name)
	if err != nil {
		return nil, AuditEntry{Name: name, Available: false, SkippedReason: string(ReasonInstallFailed)},
			&UnavailableError{Tool: name, Reason: ReasonInstallFailed}
	}
	return entry, AuditEntry{Name: name, ResolvedPath: entry.venvDir, Available: true}, nil
}

func (r *Registry) lookupCachedVenv(name string) (*toolEntry, AuditEntry, bool) {
	major := pythonMajorVersion()
	venvDir := filepath.Join(r.cacheDir, fmt.Sprintf("%s-py%s", name, major))
	sentinel := filepath.Join(venvDir, constants.VenvReadySentinel)
	bin := filepath.Join(venvDir, "bin", name)

	if _, err := os.Stat(sentinel); err != nil {
		return nil, AuditEntry{}, false
	}
	if _, err := os.Stat(bin); err != nil {
		// Corrupted venv: destroy and allow re-provisioning below.
		log.Printf("cached venv for %s missing binary; destroying for re-provision", name)
		os.RemoveAll(venvDir)
		return nil, AuditEntry{}, false
	}
	return &toolEntry{argvPrefix: []string{bin}, venvDir: venvDir},
		AuditEntry{Name: name, ResolvedPath: bin, Available: true}, true
}

// provision creates a temporary virtual environment and installs the
// requested tool's pip package into it as the final resolution step.
func (r *Registry) provision(name string) (*toolEntry, error) {
	tmpDir, err := os.MkdirTemp("", constants.TempDirPrefix+name+"-")
	if err != nil {
		return nil, fmt.Errorf("creating venv temp dir: %w", err)
	}

	log.Printf("provisioning ephemeral venv for %s at %s", name, tmpDir)

	if _, err := procrunner.Run(context.Background(), procrunner.Options{
		Argv:     []string{"python3", "-m", "venv", tmpDir},
		Deadline: 60 * time.Second,
	}); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("creating venv: %w", err)
	}

	if r.provisionLimiter != nil {
		_ = r.provisionLimiter.Wait(context.Background())
	}

	pip := filepath.Join(tmpDir, "bin", "pip")
	result, err := procrunner.Run(context.Background(), procrunner.Options{
		Argv:     []string{pip, "install", name},
		Deadline: 120 * time.Second,
	})
	if err != nil || result.ExitCode != 0 {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("installing %s into venv: exit=%d err=%v", name, result.ExitCode, err)
	}

	bin := filepath.Join(tmpDir, "bin", name)
	if _, err := os.Stat(bin); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("installed package did not produce binary %s", bin)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, constants.VenvReadySentinel), nil, 0o644); err != nil {
		log.Printf("failed to write ready sentinel for %s: %v", name, err)
	}

	return &toolEntry{argvPrefix: []string{bin}, venvDir: tmpDir}, nil
}

func (r *Registry) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return
	}
	entry.refCount--
	log.Printf("release %s: refcount=%d", name, entry.refCount)
	if entry.refCount > 0 {
		return
	}

	delete(r.entries, name)
	if entry.venvDir != "" && !r.venvCache {
		if err := os.RemoveAll(entry.venvDir); err != nil {
			log.Printf("failed to remove ephemeral venv %s: %v", entry.venvDir, err)
		}
	}
}

// Breaker returns the circuit breaker guarding repeated crashes of the named
// tool, creating one on first use. Analyzers should route repeated
// CORE-TOOL-CRASH conditions through it to emit a single
// CORE-TOOL-CIRCUIT-OPEN finding instead of one per document.
func (r *Registry) Breaker(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	r.breakers[name] = b
	return b
}

// Throttle blocks until the tool-invocation rate limiter admits another
// subprocess launch, failing open if no limiter was constructed.
func (r *Registry) Throttle(ctx context.Context) {
	if r.invokeLimiter != nil {
		_ = r.invokeLimiter.Wait(ctx)
	}
}

// NoteCircuitOpen records that name's breaker has just tripped open,
// returning true only the first time it is called for that tool so callers
// emit one CORE-TOOL-CIRCUIT-OPEN finding per tool per Run instead of one
// per document.
func (r *Registry) NoteCircuitOpen(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.circuitTripped[name] {
		return false
	}
	r.circuitTripped[name] = true
	return true
}

func pythonMajorVersion() string {
	result, err := procrunner.Run(context.Background(), procrunner.Options{
		Argv:     []string{"python3", "--version"},
		Deadline: 5 * time.Second,
	})
	if err != nil || result.ExitCode != 0 {
		return "3"
	}
	fields := strings.Fields(strings.TrimSpace(result.Stdout + result.Stderr))
	if len(fields) < 2 {
		return "3"
	}
	parts := strings.SplitN(fields[1], ".", 2)
	return parts[0]
}
