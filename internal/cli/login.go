// internal/cli/login.go
package cli

import (
	"fmt"
	"time"

	"github.com/law-makers/marketwatch/internal/auth"
	"github.com/law-makers/marketwatch/internal/ui"
	"github.com/law-makers/marketwatch/internal/utils/headers"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	loginURL            string
	waitSelector        string
	loginTimeout        time.Duration
	remoteDebuggingPort int
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login <site>",
	Short: "Log in to a marketplace in a visible browser and store the session",
	Long: `Opens a visible browser window on the site's login page for you to log in by hand.
After login, cookies are captured and stored as the user's session on that site.

Scrapes of that user on that site then run with the session instead of
anonymously. For headless machines, use --remote-debug and drive the browser
from chrome://inspect, or import cookies with "sessions import".`,
	Example: `  # Log alice in to leboncoin and wait for the account menu
  $ marketwatch login leboncoin --user=alice --wait='[data-qa-id="profile-menu"]'

  # Log in on a dev container through remote debugging
  $ marketwatch login marketplace-social --user=bob --remote-debug=9222`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVarP(&sessionUser, "user", "u", "", "User id (required)")
	loginCmd.Flags().StringVar(&loginURL, "url", "", "Login page (default: the site's auth.form.url, else its homepage)")
	loginCmd.Flags().StringVarP(&waitSelector, "wait", "w", "", "CSS selector that appears once logged in")
	loginCmd.Flags().DurationVar(&loginTimeout, "login-timeout", 5*time.Minute, "Timeout for the login process")
	loginCmd.Flags().IntVar(&remoteDebuggingPort, "remote-debug", 0, "Enable Chrome remote debugging on this port (e.g., 9222)")
	_ = loginCmd.MarkFlagRequired("user")
}

func runLogin(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)

	site, err := a.Sites.Get(args[0])
	if err != nil {
		return err
	}

	target := loginURL
	if target == "" && site.Auth.Form != nil {
		target = site.Auth.Form.URL
	}
	if target == "" {
		target = "https://" + site.Domain + "/"
	}
	wait := waitSelector
	if wait == "" && site.Auth.Form != nil {
		wait = site.Auth.Form.SuccessSelector
	}

	extra, err := headers.Parse(a.Config.Browser.ExtraHeaders)
	if err != nil {
		return err
	}

	log.Info().
		Str("site", site.ID).
		Str("user", sessionUser).
		Str("url", target).
		Msg("Initiating login")

	fmt.Printf("\n%s\n", ui.Bold("Interactive Login"))
	fmt.Printf("  %s %s\n", ui.Bold("Site:"), site.ID)
	fmt.Printf("  %s %s\n", ui.Bold("User:"), sessionUser)
	fmt.Printf("  %s %s\n", ui.Bold("URL:"), target)
	if wait != "" {
		fmt.Printf("  %s %s\n", ui.Bold("Waiting:"), wait)
	}
	fmt.Printf("  %s %s\n\n", ui.Bold("Timeout:"), loginTimeout)

	session, err := auth.InteractiveLogin(cmd.Context(), auth.LoginOptions{
		UserID:              sessionUser,
		SiteID:              site.ID,
		URL:                 target,
		WaitSelector:        wait,
		Timeout:             loginTimeout,
		ChromePath:          a.Config.Browser.ChromePath,
		Headers:             extra,
		RemoteDebuggingPort: remoteDebuggingPort,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := a.Sessions.Save(session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Println(ui.Success("\n✓ Session saved"))
	if !session.ExpiresAt.IsZero() {
		fmt.Printf("Session expires: %s\n", session.ExpiresAt.Format(time.RFC1123))
	}
	fmt.Printf("\nScrape with it:\n  %s\n\n", ui.ColorCyan+"marketwatch scrape <search-url> --user="+sessionUser+ui.ColorReset)
	return nil
}
