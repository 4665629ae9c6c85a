package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"jirabackup/pkg/config"
	"jirabackup/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage jirabackup configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (JIRABACKUP_*)
  - .env files
  - Configuration file
  - Default values`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file with the default values.

The file is created as '.jirabackup.yaml' in the current directory unless
a different path is given with --config. Passwords are never written.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConfigInit,
}

var showCmd = &cobra.Command{
	Use:           "show",
	Short:         "Show the effective configuration",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:           "validate",
	Short:         "Validate the effective configuration",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".jirabackup.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		return errReported
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		return errReported
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Fprintln(ui.Output(), "\nNext steps:")
	fmt.Fprintln(ui.Output(), "1. Set jira.url, jira.board and jira.username")
	fmt.Fprintln(ui.Output(), "2. Run 'jirabackup auth login' to store the password")
	fmt.Fprintln(ui.Output(), "3. Run 'jirabackup backup'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return errReported
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		return errReported
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprintln(ui.Output())
	fmt.Fprint(ui.Output(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		return errReported
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Board", cfg.Jira.Board)
	ui.PrintInfo("Server", cfg.Jira.URL)
	ui.PrintInfo("Backup root", cfg.BackupRoot())
	ui.PrintInfo("Batch size", fmt.Sprint(cfg.Backup.BatchSize))
	ui.PrintInfo("Page delay", cfg.Backup.SleepTime.String())
	if cfg.Upload.S3Bucket != "" {
		ui.PrintInfo("Upload", "s3://"+cfg.Upload.S3Bucket+"/"+cfg.Upload.S3Prefix)
	}
	return nil
}
