package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd runs a backup when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "jirabackup",
	Short: "Back up every issue of a Jira board to a compressed archive",
	Long: `jirabackup exports all issues of a Jira project, with their attachments,
into a directory tree grouped by status and then packs the tree into a
single .tar.gz archive.

  <backup-dir>/<board>-backup/<status>/<summary>_<key>/jira.json

Interrupted runs can be continued with --resume.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBackup,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .jirabackup.yaml or ~/.config/jirabackup/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	addBackupFlags(rootCmd)

	rootCmd.SetVersionTemplate(`jirabackup {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
