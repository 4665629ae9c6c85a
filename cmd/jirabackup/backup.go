package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"jirabackup/pkg/auth"
	"jirabackup/pkg/backup"
	"jirabackup/pkg/config"
	errs "jirabackup/pkg/errors"
	"jirabackup/pkg/logger"
	"jirabackup/pkg/ui"
)

// errReported marks a failure that was already shown to the user
var errReported = errors.New("reported")

// exitError carries a specific process exit code
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var (
	// Backup command flags
	resume       bool
	noCheckpoint bool
)

// backupCmd is also what the root command runs
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up a Jira board",
	Long: `Back up all issues of a Jira board.

The password is taken from the credential store (see 'jirabackup auth login'),
from JIRABACKUP_PASSWORD, or asked for interactively. It is never accepted
as a flag.`,
	Example: `  # Back up the default board into the current directory
  jirabackup backup --username backup-bot

  # Another board and server, smaller pages
  jirabackup backup --url https://jira.example.com --board OPS --batch-size 50

  # Continue a run that was interrupted
  jirabackup backup --resume

  # Upload the archive when done
  jirabackup backup --s3-bucket my-backups --s3-prefix jira/`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	addBackupFlags(backupCmd)
}

// addBackupFlags registers the backup flags on cmd. Both the root and the
// backup command carry them so the subcommand name can be omitted.
func addBackupFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("url", "", "Jira server url")
	f.StringP("board", "b", "", "Jira project key to back up")
	f.StringP("username", "u", "", "Jira username")
	f.StringP("backup-dir", "o", "", "directory the backup tree is written to (default: current directory)")
	f.String("archive-dir", "", "directory the archive is written to (default: current directory)")
	f.Int("start", 0, "issue offset to start at")
	f.Int("batch-size", 100, "issues per search page")
	f.Int("sleep-time", 2, "seconds to wait after every page")
	f.String("duplicates", "", "what to do with issues listed twice: redownload or skip")
	f.Int("max-retries", 4, "retries for transient server errors")
	f.Int("requests-per-minute", 0, "cap on requests per minute, 0 for none")
	f.String("s3-bucket", "", "upload the archive to this S3 bucket")
	f.String("s3-prefix", "", "key prefix inside the S3 bucket")
	f.BoolVar(&resume, "resume", false, "continue from the last checkpoint")
	f.BoolVar(&noCheckpoint, "no-checkpoint", false, "do not record progress for --resume")
}

// changedFlags collects the flags set on the command line, keyed the way
// config.MergeCommandLineFlags expects
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	f := cmd.Flags()

	for _, name := range []string{"url", "board", "username", "backup-dir", "archive-dir", "duplicates", "s3-bucket", "s3-prefix"} {
		if f.Lookup(name) != nil && f.Changed(name) {
			flags[name], _ = f.GetString(name)
		}
	}
	for _, name := range []string{"start", "batch-size", "sleep-time", "max-retries", "requests-per-minute"} {
		if f.Lookup(name) != nil && f.Changed(name) {
			flags[name], _ = f.GetInt(name)
		}
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, changedFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return errReported
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logging", err.Error())
		return errReported
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("jirabackup starting")

	ui.PrintBanner()
	ui.PrintInfo("Board", cfg.Jira.Board)
	ui.PrintInfo("Server", cfg.Jira.URL)

	if err := resolveCredentials(cfg); err != nil {
		ui.PrintError("No Jira credentials", err.Error())
		return errReported
	}
	ui.PrintInfo("User", cfg.Jira.Username)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := backup.New(ctx, cfg, backup.Options{
		Resume:       resume,
		NoCheckpoint: noCheckpoint,
		Observer:     ui.NewProgressDisplay(ui.Output(), cfg.Logging.Level == "debug"),
	}, log)
	if err != nil {
		ui.PrintError("Failed to initialize backup", err.Error())
		return errReported
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		return reportFailure(err, summary, log)
	}

	logger.LogMetrics(log, "backup", map[string]interface{}{
		"run_id":   summary.RunID,
		"requests": summary.Requests,
		"retries":  summary.Retries,
		"pages":    summary.Pages,
		"duration": summary.Duration,
	})

	if summary.Uploaded != "" {
		ui.PrintInfo("Uploaded", summary.Uploaded)
	}
	ui.PrintInfo("Requests", fmt.Sprintf("%s (%d retried)", humanize.Comma(summary.Requests), summary.Retries))
	ui.PrintSuccess("Backup completed: " + summary.Archive)
	return nil
}

// resolveCredentials fills the username and password of cfg from the
// credential store, the environment or the terminal
func resolveCredentials(cfg *config.Config) error {
	prompter := auth.NewPrompter(os.Stdin, os.Stderr)
	if cfg.Jira.Password != "" {
		if cfg.Jira.Username != "" {
			return nil
		}
		username, err := prompter.Username()
		cfg.Jira.Username = username
		return err
	}

	manager, err := auth.NewManager()
	if err != nil {
		logger.GetLogger().WithError(err).Warn("Credential store unavailable, using environment only")
		manager = auth.NewManagerWithStores(auth.NewEnvironmentStore())
	}

	account, err := manager.Resolve(cfg.Jira.Username, cfg.Jira.URL, prompter)
	if err != nil {
		return err
	}
	cfg.Jira.Username = account.Username
	cfg.Jira.Password = account.Secret
	return nil
}

// reportFailure prints why a run stopped and picks the exit code
func reportFailure(err error, summary *backup.Summary, log logger.Logger) error {
	fields := map[string]interface{}{}
	if summary != nil {
		fields["issues"] = summary.Issues
		fields["run_id"] = summary.RunID
	}

	switch {
	case errors.Is(err, context.Canceled):
		log.WarnWithFields("Backup interrupted", fields)
		ui.PrintWarning("\nBackup interrupted", "run again with --resume to continue")
		return &exitError{code: 130, err: err}
	case isParseError(err):
		log.WithError(err).ErrorWithFields("Unreadable Jira response", fields)
		ui.PrintError("\nJira returned a response that could not be read", err.Error())
		return errReported
	case errs.IsFatal(err):
		log.WithError(err).ErrorWithFields("Jira request failed", fields)
		ui.PrintError(fmt.Sprintf("\nError connecting to Jira (status code: %d), please make sure your credentials and url are correct", errs.StatusCode(err)))
		return errReported
	default:
		log.WithError(err).ErrorWithFields("Backup failed", fields)
		ui.PrintError("\nBackup failed", err.Error())
		return errReported
	}
}

func isParseError(err error) bool {
	var apiErr *errs.Error
	return errors.As(err, &apiErr) && apiErr.Type == errs.ErrorTypeParsing
}

// exitCode maps a command error onto the process exit status
func exitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	if !errors.Is(err, errReported) {
		ui.PrintError(err.Error())
	}
	return 1
}
