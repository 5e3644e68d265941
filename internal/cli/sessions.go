// internal/cli/sessions.go
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/law-makers/marketwatch/internal/auth"
	"github.com/law-makers/marketwatch/internal/ui"
	"github.com/spf13/cobra"
)

var (
	sessionUser string
	assumeYes   bool
)

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored marketplace sessions",
	Long: `List, delete and import the sessions scrapes run under.

A session belongs to one user on one site. Sessions are stored in the OS
keyring, or as files under sessions.dir when no keyring is available.`,
	Example: `  # List all stored sessions
  $ marketwatch sessions list

  # Delete alice's session on leboncoin
  $ marketwatch sessions delete leboncoin --user=alice`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <site>",
	Short: "Delete a user's session on a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)

	sessionsDeleteCmd.Flags().StringVarP(&sessionUser, "user", "u", "", "User id (required)")
	sessionsDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	_ = sessionsDeleteCmd.MarkFlagRequired("user")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	out := cmd.OutOrStdout()

	sessions, err := a.Sessions.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "\nNo stored sessions.")
		fmt.Fprintln(out, "\nCreate one with:")
		fmt.Fprintln(out, "  marketwatch login <site> --user=<id>")
		fmt.Fprintln(out, "  marketwatch sessions import <site> --user=<id> --format=json < cookies.json")
		fmt.Fprintln(out)
		return nil
	}

	fmt.Fprintf(out, "\n%s (%d)\n\n", ui.Bold("Sessions"), len(sessions))
	now := time.Now()
	for _, s := range sessions {
		status := ui.Success("valid")
		switch {
		case s.Expired(now):
			status = ui.Error(fmt.Sprintf("expired %s ago", now.Sub(s.ExpiresAt).Round(time.Hour)))
		case !s.ExpiresAt.IsZero():
			status = ui.Success(fmt.Sprintf("valid for %s", s.ExpiresAt.Sub(now).Round(time.Hour)))
		}
		fmt.Fprintf(out, "  %s%-20s%s %-16s cookies=%-3d %s\n",
			ui.ColorCyan, s.SiteID, ui.ColorReset, s.UserID, len(s.Cookies), status)
	}
	fmt.Fprintln(out)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	siteID := args[0]

	if _, err := a.Sessions.Load(sessionUser, siteID); errors.Is(err, auth.ErrSessionNotFound) {
		return fmt.Errorf("no session for %s on %s", sessionUser, siteID)
	}

	if !assumeYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
		fmt.Sprintf("Delete the session of %s on %s?", sessionUser, siteID)) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}

	if err := a.Sessions.Delete(sessionUser, siteID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s session of %s on %s deleted\n", ui.Success("✓"), sessionUser, siteID)
	return nil
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
