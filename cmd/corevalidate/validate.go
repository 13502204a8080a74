package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cc-devops-skills/corevalidate/pkg/analyzer"
	"github.com/cc-devops-skills/corevalidate/pkg/config"
	"github.com/cc-devops-skills/corevalidate/pkg/console"
	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/doclookup"
	"github.com/cc-devops-skills/corevalidate/pkg/exitcode"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/orchestrator"
	"github.com/cc-devops-skills/corevalidate/pkg/reporter"
	"github.com/cc-devops-skills/corevalidate/pkg/toolregistry"
)

// NewValidateCommand builds the "validate" command: classify each given
// path, run the applicable analyzers, render a report, and exit with the
// code the Exit-Code Arbiter computes.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path> [path...]",
		Short: "Validate one or more artifact paths",
		Args:  cobra.MinimumNArgs(1),
		Long: `Classify and validate each given path, walking directories recursively.

Examples:
  ` + constants.CLIExtensionPrefix + ` validate.
  ` + constants.CLIExtensionPrefix + ` validate --json Dockerfile docker-compose.yml
  ` + constants.CLIExtensionPrefix + ` validate --strict --analyzers yaml-lint,secret-scan.`,
		RunE: runValidate,
	}

	cmd.Flags().Bool("json", false, "output the report as JSON instead of a human-readable summary")
	cmd.Flags().Bool("strict", false, "fail the run (exit 1) when any warning-severity finding is produced")
	cmd.Flags().StringSlice("analyzers", nil, "restrict the run to this comma-separated list of analyzer names")
	cmd.Flags().String("severity-threshold", "", "minimum severity to report: info, warning, error, fatal")
	cmd.Flags().Int("parallelism", 0, "maximum concurrent analyzer/tool executions (defaults to NumCPU)")
	cmd.Flags().Bool("no-doc-lookup", false, "disable the extension doc side-channel lookups")
	cmd.Flags().String("config", "", "path to a project configuration file")
	cmd.Flags().String("tool-cache-dir", "", "directory for provisioned tool virtualenvs/binaries")
	cmd.Flags().String("doc-lookup-url", "", "base URL for the extension schema catalog")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	flags, err := flagsFromCommand(cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(exitcode.InvalidInvocation)
	}

	cfg, configFindings, err := config.Resolve(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(exitcode.InvalidInvocation)
	}

	paths, err := expandPaths(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(exitcode.InvalidInvocation)
	}

	cacheDir, _ := cmd.Flags().GetString("tool-cache-dir")
	if cacheDir == "" {
		cacheDir = defaultToolCacheDir()
	}
	docLookupURL, _ := cmd.Flags().GetString("doc-lookup-url")

	tools := toolregistry.New(cacheDir, cfg.VenvCache)
	registry := analyzer.Default()

	var lookup = doclookup.New(docLookupURL)
	engine := orchestrator.New(cfg, registry, tools, lookup)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := engine.Execute(ctx, paths)
	if err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(exitcode.InvalidInvocation)
	}

	run.Findings = append(configFindings, run.Findings...)
	run.Findings = finding.MergeDedupeSort(run.Findings)

	code := exitcode.Final(run.Findings, cfg.StrictMode, run.Cancelled, false)
	passed := exitcode.Passed(code)

	out, err := reporter.Render(run, cfg, passed)
	if err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(exitcode.InvalidInvocation)
	}
	fmt.Fprintln(os.Stdout, out)

	os.Exit(code)
	return nil
}

func flagsFromCommand(cmd *cobra.Command) (config.Flags, error) {
	var flags config.Flags

	if v, _ := cmd.Flags().GetStringSlice("analyzers"); len(v) > 0 {
		flags.AnalyzersEnabled = v
	}
	if v, _ := cmd.Flags().GetString("severity-threshold"); v != "" {
		sev, ok := finding.ParseSeverity(v)
		if !ok {
			return flags, fmt.Errorf("invalid --severity-threshold %q", v)
		}
		flags.SeverityThreshold = &sev
	}
	if cmd.Flags().Changed("strict") {
		v, _ := cmd.Flags().GetBool("strict")
		flags.StrictMode = &v
	}
	if v, _ := cmd.Flags().GetBool("json"); v {
		format := constants.OutputFormatJSON
		flags.OutputFormat = &format
	}
	if cmd.Flags().Changed("parallelism") {
		v, _ := cmd.Flags().GetInt("parallelism")
		flags.Parallelism = &v
	}
	if cmd.Flags().Changed("no-doc-lookup") {
		v, _ := cmd.Flags().GetBool("no-doc-lookup")
		enabled := !v
		flags.DocLookupEnabled = &enabled
	}
	flags.ConfigFile, _ = cmd.Flags().GetString("config")

	return flags, nil
}

func expandPaths(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a, err)
		}
		if !info.IsDir() {
			out = append(out, a)
			continue
		}
		err = filepath.WalkDir(a, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" || d.Name() == "node_modules" {
					return filepath.SkipDir
				}
				return nil
			}
			out = append(out, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func defaultToolCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, constants.CLIExtensionPrefix, "tools")
	}
	return filepath.Join(os.TempDir(), constants.CLIExtensionPrefix, "tools")
}
