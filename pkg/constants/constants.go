// Package constants centralizes default values and enumerations shared across
// the validation engine: environment variable names, severity ordering, the
// pip-installable tool allowlist, and the Jenkins NonCPS step set.
package constants

import (
	"encoding/json"
	"fmt"
	"time"
)

// CLIExtensionPrefix is the prefix used in user-facing output to refer to the CLI.
const CLIExtensionPrefix = "corevalidate"

// Environment variable names recognized by the engine.
const (
	// EnvToolPathPrefix is the prefix for per-tool binary overrides; the full
	// variable name is EnvToolPathPrefix + upper-cased tool name + "_PATH".
	EnvToolPathPrefix = "TOOL_"
	// EnvNoColor forces color=never regardless of configuration when set to any value.
	EnvNoColor = "NO_COLOR"
	// EnvCacheDir is the root for per-user tool caches; falls back to os.UserCacheDir.
	EnvCacheDir = "CACHE_DIR"
	// EnvConfigPrefix namespaces configuration overrides, e.g. COREVALIDATE_STRICT_MODE.
	EnvConfigPrefix = "COREVALIDATE_"
)

// Severity is the ordered finding severity ladder: info < warning < error < fatal.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

// String renders the severity using its lower-case wire/display name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the severity using its wire name rather than its
// ordinal, so reports read {"severity": "error"} rather than a magic number.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses a severity from its wire name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	case "fatal":
		*s = SeverityFatal
	default:
		return fmt.Errorf("unknown severity %q", name)
	}
	return nil
}

// OutputFormat enumerates the Reporter's two renderings.
type OutputFormat string

const (
	OutputFormatHuman OutputFormat = "human"
	OutputFormatJSON  OutputFormat = "json"
)

// ColorMode enumerates the color policy config values.
type ColorMode string

const (
	ColorModeAuto   ColorMode = "auto"
	ColorModeAlways ColorMode = "always"
	ColorModeNever  ColorMode = "never"
)

// Default configuration values, mirrored by the Configuration type above.
const (
	DefaultSeverityThreshold        = SeverityWarning
	DefaultStrictMode               = false
	DefaultOutputFormat             = OutputFormatHuman
	DefaultColorMode                = ColorModeAuto
	DefaultTimeoutPerTool           = 120 * time.Second
	DefaultDocLookupEnabled         = true
	DefaultDocLookupTimeout         = 10 * time.Second
	DefaultVenvCache                = false
	DefaultSkipIfToolMissing        = true
	DefaultProcessOutputBufferBytes = 16 * 1024 * 1024
	DefaultSoftTerminateGrace       = 2 * time.Second
)

// PipInstallableTools is the allowlist of tools the Tool Registry may
// ephemerally provision into a venv when absent from PATH and system caches
//. Any tool not in this set is only looked up, never installed.
var PipInstallableTools = []string{
	"yamllint",
	"mbake",
	"checkov",
	"shellcheck-py",
	"python-hcl2",
}

// KnownAnalyzerNames is the static, non-discoverable roster of built-in
// analyzers. Registration happens once at process start; there is no
// plugin discovery mechanism.
var KnownAnalyzerNames = []string{
	"yaml-lint",
	"yaml-schema",
	"shell-lint",
	"docker-lint",
	"tf-lint",
	"tf-security",
	"helm-lint",
	"k8s-schema",
	"k8s-dry-run",
	"make-lint",
	"jenkins-lint",
	"workflow-local-run",
	"action-versions",
	"secret-scan",
	"core-best-practices",
}

// JenkinsPipelineSteps is the enumerated set of pipeline steps that a method
// annotated uncontinuable (NonCPS) must never call.
var JenkinsPipelineSteps = []string{
	"sh", "echo", "sleep", "checkout", "stage", "parallel", "node", "input",
	"timeout", "retry", "build", "readFile", "writeFile", "archiveArtifacts",
	"junit", "publishHTML", "git", "withCredentials", "withEnv",
}

// JenkinsNonCPSCombinators is the set of collection-transforming method names
// that should be annotated uncontinuable when used inside a closure.
var JenkinsNonCPSCombinators = []string{
	"collect", "inject", "findAll", "each",
}

// ExtensionHintCategories enumerates the ExtensionHint.category values.
var ExtensionHintCategories = []string{
	"k8s-crd",
	"terraform-provider",
	"terraform-module",
	"helm-subchart",
	"fluentbit-plugin",
	"action-reference",
	"jenkins-step",
}

// ArtifactKinds enumerates every Artifact.kind value the classifier can produce.
var ArtifactKinds = []string{
	"yaml-workflow-github",
	"yaml-workflow-gitlab",
	"yaml-workflow-azure",
	"yaml-k8s",
	"yaml-helm-chart",
	"yaml-fluentbit",
	"hcl-terraform",
	"hcl-terragrunt",
	"dockerfile",
	"makefile",
	"bash-script",
	"jenkinsfile-declarative",
	"jenkinsfile-scripted",
	"groovy-shared-lib",
	"loki-config",
	"unknown",
}

// VenvReadySentinel is the zero-byte file inside a provisioned venv whose
// presence indicates successful provisioning on disk.
const VenvReadySentinel = ".ready"

// TempDirPrefix is the fixed prefix for ephemeral directories created under
// the OS temp root during tool provisioning and process execution.
const TempDirPrefix = "corevalidate-"
