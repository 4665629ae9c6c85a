package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"jirabackup/pkg/auth"
	"jirabackup/pkg/ui"
)

var (
	loginURL  string
	logoutAll bool
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Jira credentials",
	Long: `Manage stored Jira credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables JIRABACKUP_USERNAME and JIRABACKUP_PASSWORD (read only)`,
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store a Jira username and password or API token",
	Example: `  jirabackup auth login
  jirabackup auth login backup-bot --url https://jira.example.com`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Example: `  jirabackup auth logout backup-bot
  jirabackup auth logout --all`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runLogout,
}

var listCmd = &cobra.Command{
	Use:           "list",
	Short:         "List stored accounts",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	loginCmd.Flags().StringVar(&loginURL, "url", "", "Jira server the account belongs to")
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored account")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return errReported
	}

	prompter := auth.NewPrompter(os.Stdin, os.Stderr)

	var username string
	if len(args) > 0 {
		username = args[0]
	} else if username, err = prompter.Username(); err != nil {
		return err
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		ui.PrintWarning("Replacing stored credentials", username)
	}

	secret, err := prompter.Secret("Password or API token")
	if err != nil {
		return err
	}

	account := &auth.Account{
		Username: username,
		URL:      loginURL,
		Secret:   secret,
	}
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		return errReported
	}

	ui.PrintSuccess("Credentials stored for " + username)
	fmt.Fprintf(ui.Output(), "\nRun a backup with:\n  jirabackup backup --username %s\n", username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return errReported
	}

	if logoutAll {
		if err := manager.DeleteAll(); err != nil {
			ui.PrintError("Failed to remove accounts", err.Error())
			return errReported
		}
		ui.PrintSuccess("All stored accounts removed")
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("a username or --all is required")
	}
	if err := manager.Delete(args[0]); err != nil {
		ui.PrintError("Failed to remove account", err.Error())
		return errReported
	}
	ui.PrintSuccess("Account removed: " + args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return errReported
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintWarning("No stored accounts", "run 'jirabackup auth login'")
		return nil
	}

	ui.PrintHighlight("Stored accounts")
	for _, account := range accounts {
		a := auth.SanitizeAccount(account)
		line := fmt.Sprintf("  %s  %s", ui.Cyan(a.Username), ui.Dim(a.Secret))
		if a.URL != "" {
			line += "  " + a.URL
		}
		if !a.LastModified.IsZero() {
			line += "  " + ui.Dim(a.LastModified.Format(time.DateTime))
		}
		fmt.Fprintln(ui.Output(), line)
	}
	return nil
}
