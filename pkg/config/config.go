// Package config resolves the engine's Configuration from flags, environment
// variables, a per-project file, and built-in defaults, applying the
// precedence order: flags > env > file > defaults.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/goccy/go-yaml"

	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/logger"
)

var log = logger.New("config:resolver")

// Configuration is the resolved set of options governing one Run.
type Configuration struct {
	AnalyzersEnabled        []string
	SeverityThreshold       finding.Severity
	StrictMode              bool
	OutputFormat            constants.OutputFormat
	Color                   constants.ColorMode
	Parallelism             int
	TimeoutPerToolSeconds   int
	DocLookupEnabled        bool
	DocLookupTimeoutSeconds int
	VenvCache               bool
	SkipIfToolMissing       bool
}

// Default returns the built-in defaults.
func Default() Configuration {
	return Configuration{
		AnalyzersEnabled:        nil, // nil means "all applicable to artifact kind"
		SeverityThreshold:       constants.DefaultSeverityThreshold,
		StrictMode:              constants.DefaultStrictMode,
		OutputFormat:            constants.DefaultOutputFormat,
		Color:                   constants.DefaultColorMode,
		Parallelism:             runtime.NumCPU(),
		TimeoutPerToolSeconds:   int(constants.DefaultTimeoutPerTool.Seconds()),
		DocLookupEnabled:        constants.DefaultDocLookupEnabled,
		DocLookupTimeoutSeconds: int(constants.DefaultDocLookupTimeout.Seconds()),
		VenvCache:               constants.DefaultVenvCache,
		SkipIfToolMissing:       constants.DefaultSkipIfToolMissing,
	}
}

// fileDocument is the shape of a per-project configuration file, keyed by
// skill name the way gh-aw's workflow frontmatter is keyed by field name.
type fileDocument map[string]any

// knownKeys enumerates the recognized top-level config keys; anything else
// triggers CORE-UNKNOWN-CONFIG-KEY  rather than a hard failure.
var knownKeys = map[string]bool{
	"analyzers_enabled":          true,
	"severity_threshold":         true,
	"strict_mode":                true,
	"output_format":              true,
	"color":                      true,
	"parallelism":                true,
	"timeout_per_tool_seconds":   true,
	"doc_lookup_enabled":         true,
	"doc_lookup_timeout_seconds": true,
	"venv_cache":                 true,
	"skip_if_tool_missing":       true,
}

// Flags carries command-line overrides; a nil pointer field means "flag not
// passed", preserving the flags > env > file > defaults precedence.
type Flags struct {
	AnalyzersEnabled        []string
	SeverityThreshold       *finding.Severity
	StrictMode              *bool
	OutputFormat            *constants.OutputFormat
	Color                   *constants.ColorMode
	Parallelism             *int
	TimeoutPerToolSeconds   *int
	DocLookupEnabled        *bool
	DocLookupTimeoutSeconds *int
	VenvCache               *bool
	SkipIfToolMissing       *bool
	ConfigFile              string
}

// Resolve builds the final Configuration by layering, in increasing
// precedence, defaults, an optional config file, environment variables, and
// explicit flags. It returns the resolved Configuration plus any
// CORE-UNKNOWN-CONFIG-KEY info findings produced while reading the file.
func Resolve(flags Flags) (Configuration, []finding.Finding, error) {
	cfg := Default()
	var findings []finding.Finding

	if flags.ConfigFile != "" {
		fileCfg, fileFindings, err := loadFile(flags.ConfigFile)
		if err != nil {
			return Configuration{}, nil, fmt.Errorf("loading config file %q: %w", flags.ConfigFile, err)
		}
		applyFile(&cfg, fileCfg)
		findings = append(findings, fileFindings...)
	}

	applyEnv(&cfg)
	applyFlags(&cfg, flags)

	log.Printf("resolved configuration: format=%s color=%s strict=%v parallelism=%d",
		cfg.OutputFormat, cfg.Color, cfg.StrictMode, cfg.Parallelism)

	return cfg, findings, nil
}

func loadFile(path string) (fileDocument, []finding.Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing yaml: %w", err)
	}

	var findings []finding.Finding
	for key := range doc {
		if !knownKeys[key] {
			findings = append(findings, finding.New(
				"CORE-UNKNOWN-CONFIG-KEY",
				finding.Info,
				fmt.Sprintf("unknown configuration key %q ignored", key),
				finding.Location{Path: path},
				"core-config",
			))
		}
	}
	return doc, findings, nil
}

func applyFile(cfg *Configuration, doc fileDocument) {
	if doc == nil {
		return
	}
	if v, ok := doc["analyzers_enabled"].([]any); ok {
		cfg.AnalyzersEnabled = toStringSlice(v)
	}
	if v, ok := doc["severity_threshold"].(string); ok {
		if sev, ok := parseSeverity(v); ok {
			cfg.SeverityThreshold = sev
		}
	}
	if v, ok := doc["strict_mode"].(bool); ok {
		cfg.StrictMode = v
	}
	if v, ok := doc["output_format"].(string); ok {
		cfg.OutputFormat = constants.OutputFormat(v)
	}
	if v, ok := doc["color"].(string); ok {
		cfg.Color = constants.ColorMode(v)
	}
	if v, ok := toInt(doc["parallelism"]); ok {
		cfg.Parallelism = v
	}
	if v, ok := toInt(doc["timeout_per_tool_seconds"]); ok {
		cfg.TimeoutPerToolSeconds = v
	}
	if v, ok := doc["doc_lookup_enabled"].(bool); ok {
		cfg.DocLookupEnabled = v
	}
	if v, ok := toInt(doc["doc_lookup_timeout_seconds"]); ok {
		cfg.DocLookupTimeoutSeconds = v
	}
	if v, ok := doc["venv_cache"].(bool); ok {
		cfg.VenvCache = v
	}
	if v, ok := doc["skip_if_tool_missing"].(bool); ok {
		cfg.SkipIfToolMissing = v
	}
}

func applyEnv(cfg *Configuration) {
	if v := os.Getenv(constants.EnvConfigPrefix + "STRICT_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.StrictMode = b
		}
	}
	if v := os.Getenv(constants.EnvConfigPrefix + "SEVERITY_THRESHOLD"); v != "" {
		if sev, ok := parseSeverity(v); ok {
			cfg.SeverityThreshold = sev
		}
	}
	if v := os.Getenv(constants.EnvConfigPrefix + "OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = constants.OutputFormat(v)
	}
	if v := os.Getenv(constants.EnvConfigPrefix + "PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Parallelism = n
		}
	}
	if _, ok := os.LookupEnv(constants.EnvNoColor); ok {
		cfg.Color = constants.ColorModeNever
	} else if v := os.Getenv(constants.EnvConfigPrefix + "COLOR"); v != "" {
		cfg.Color = constants.ColorMode(v)
	}
}

func applyFlags(cfg *Configuration, flags Flags) {
	if flags.AnalyzersEnabled != nil {
		cfg.AnalyzersEnabled = flags.AnalyzersEnabled
	}
	if flags.SeverityThreshold != nil {
		cfg.SeverityThreshold = *flags.SeverityThreshold
	}
	if flags.StrictMode != nil {
		cfg.StrictMode = *flags.StrictMode
	}
	if flags.OutputFormat != nil {
		cfg.OutputFormat = *flags.OutputFormat
	}
	if flags.Color != nil {
		cfg.Color = *flags.Color
	}
	if flags.Parallelism != nil {
		cfg.Parallelism = *flags.Parallelism
	}
	if flags.TimeoutPerToolSeconds != nil {
		cfg.TimeoutPerToolSeconds = *flags.TimeoutPerToolSeconds
	}
	if flags.DocLookupEnabled != nil {
		cfg.DocLookupEnabled = *flags.DocLookupEnabled
	}
	if flags.DocLookupTimeoutSeconds != nil {
		cfg.DocLookupTimeoutSeconds = *flags.DocLookupTimeoutSeconds
	}
	if flags.VenvCache != nil {
		cfg.VenvCache = *flags.VenvCache
	}
	if flags.SkipIfToolMissing != nil {
		cfg.SkipIfToolMissing = *flags.SkipIfToolMissing
	}
}

func parseSeverity(s string) (finding.Severity, bool) {
	return finding.ParseSeverity(s)
}

func toStringSlice(items []any) []string {
	out := make([]string, 0, len(items))
	for _, v := range items {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
