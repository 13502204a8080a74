package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cc-devops-skills/corevalidate/pkg/console"
	"github.com/cc-devops-skills/corevalidate/pkg/constants"
)

// Build-time variable set by GoReleaser.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     constants.CLIExtensionPrefix,
	Short:   "Validate DevOps artifacts against linters, schemas, and security checks",
	Version: version,
	Long: `corevalidate inspects CI/CD and infrastructure artifacts — GitHub Actions
and GitLab workflows, Dockerfiles, Terraform, Helm charts, Makefiles, shell
scripts, Jenkinsfiles, Kubernetes manifests, and Fluent Bit configs — and
reports findings from the linters, schemas, and security checks appropriate
to each one.

Common Tasks:
  corevalidate validate .                 # Validate every artifact under the current directory
  corevalidate validate --json Dockerfile # Validate one file, JSON output
  corevalidate validate --strict .        # Fail the run on warnings too

For detailed help on any command, use:
  corevalidate [command] --help`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "execution", Title: "Execution Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "inspection", Title: "Inspection Commands:"})

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose debug logging")

	rootCmd.SetOut(os.Stderr)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s\n%s\n",
		console.FormatInfoMessage(fmt.Sprintf("%s version {{.Version}}", constants.CLIExtensionPrefix)),
		console.FormatInfoMessage("DevOps artifact validation engine")))

	originalHelpFunc := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		for _, subCmd := range cmd.Commands() {
			if subCmd.Name() == "completion" {
				subCmd.Hidden = true
			}
		}
		originalHelpFunc(cmd, args)
	})

	validateCmd := NewValidateCommand()
	validateCmd.GroupID = "execution"

	toolsCmd := NewToolsCommand()
	toolsCmd.GroupID = "inspection"

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(64)
	}
}
