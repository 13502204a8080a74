package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cc-devops-skills/corevalidate/pkg/console"
	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/stringutil"
	"github.com/cc-devops-skills/corevalidate/pkg/toolregistry"
)

const toolPathDisplayWidth = 60

// NewToolsCommand builds the "tools" command, which resolves and reports on
// every tool the given analyzers would need without running any analysis,
// surfacing the provisioning audit standalone for CI debugging.
func NewToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools <tool> [tool...]",
		Short: "Resolve tools through the provisioner and report the outcome",
		Args:  cobra.MinimumNArgs(1),
		Long: `Resolve each named tool through the Tool Registry & Provisioner and print
whether it was found on PATH, provisioned into a virtualenv, or skipped.

Examples:
  ` + constants.CLIExtensionPrefix + ` tools yamllint shellcheck hadolint`,
		RunE: runTools,
	}

	cmd.Flags().Bool("json", false, "output the audit as JSON")
	cmd.Flags().String("tool-cache-dir", "", "directory for provisioned tool virtualenvs/binaries")
	cmd.Flags().Bool("venv-cache", true, "reuse provisioned virtualenvs across runs")

	return cmd
}

func runTools(cmd *cobra.Command, args []string) error {
	cacheDir, _ := cmd.Flags().GetString("tool-cache-dir")
	if cacheDir == "" {
		cacheDir = defaultToolCacheDir()
	}
	venvCache, _ := cmd.Flags().GetBool("venv-cache")
	asJSON, _ := cmd.Flags().GetBool("json")

	registry := toolregistry.New(cacheDir, venvCache)

	anyUnavailable := false
	for _, name := range args {
		handle, err := registry.Resolve(name)
		if err != nil {
			anyUnavailable = true
			continue
		}
		handle.Release()
	}

	audit := registry.Audit()

	if asJSON {
		data, err := json.MarshalIndent(audit, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling tool audit: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(data))
	} else {
		rows := make([][]string, 0, len(audit))
		for _, entry := range audit {
			status := "available"
			if !entry.Available {
				status = "skipped: " + entry.SkippedReason
			}
			rows = append(rows, []string{entry.Name, stringutil.Truncate(entry.ResolvedPath, toolPathDisplayWidth), status})
		}
		fmt.Fprintln(os.Stdout, console.RenderTable(console.TableConfig{
			Title:   "Tool resolution audit",
			Headers: []string{"Tool", "Resolved Path", "Status"},
			Rows:    rows,
		}))
	}

	if anyUnavailable {
		os.Exit(1)
	}
	return nil
}
