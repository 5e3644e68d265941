// internal/cli/sessions_import.go
package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/law-makers/marketwatch/internal/auth"
	"github.com/law-makers/marketwatch/internal/ui"
	"github.com/spf13/cobra"
)

var (
	importFormat string
	importFile   string
)

// sessionsImportCmd represents the sessions import command
var sessionsImportCmd = &cobra.Command{
	Use:   "import <site>",
	Short: "Import browser cookies as a user's session on a site",
	Long: `Import cookies exported from a regular browser as a stored session.

This is the way to create sessions on servers and in containers, where the
interactive login browser cannot be shown.

Steps:
1. Log in to the marketplace in your regular browser
2. Export the cookies (DevTools, a cookies.txt extension or a JSON export)
3. Feed the export to this command`,
	Example: `  # Import a JSON cookie export
  marketwatch sessions import leboncoin --user=alice --format=json --file=cookies.json

  # Import a Netscape cookies.txt from stdin
  marketwatch sessions import kufar --user=bob --format=netscape < cookies.txt

  # Type cookies one by one
  marketwatch sessions import marketplace-social --user=carol`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsImport,
}

func init() {
	sessionsCmd.AddCommand(sessionsImportCmd)

	sessionsImportCmd.Flags().StringVarP(&sessionUser, "user", "u", "", "User id (required)")
	sessionsImportCmd.Flags().StringVar(&importFormat, "format", "interactive", "Import format: interactive, json, netscape")
	sessionsImportCmd.Flags().StringVarP(&importFile, "file", "f", "", "Read cookies from this file instead of stdin")
	_ = sessionsImportCmd.MarkFlagRequired("user")
}

func runSessionsImport(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	out := cmd.OutOrStdout()

	site, err := a.Sites.Get(args[0])
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if importFile != "" {
		file, err := os.Open(importFile)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	var cookies []auth.Cookie
	switch importFormat {
	case "interactive":
		cookies, err = importInteractive(in, out, "."+site.Domain)
	case "json":
		cookies, err = parseJSONCookies(in)
	case "netscape":
		cookies, err = parseNetscapeCookies(in)
	default:
		return fmt.Errorf("unsupported format: %s (use: interactive, json, netscape)", importFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to import cookies: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies imported")
	}

	homepage := (&url.URL{Scheme: "https", Host: site.Domain, Path: "/"}).String()
	session := &auth.SessionData{
		UserID:    sessionUser,
		SiteID:    site.ID,
		URL:       homepage,
		CreatedAt: time.Now(),
	}
	session.SetCookies(cookies)

	if err := a.Sessions.Save(session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Fprintf(out, "\n%s session of %s on %s saved\n", ui.Success("✓"), sessionUser, site.ID)
	fmt.Fprintf(out, "   Cookies: %d\n", len(cookies))
	if !session.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "   Expires: %s\n", session.ExpiresAt.Format(time.RFC1123))
	}
	fmt.Fprintln(out)
	return nil
}

// importInteractive prompts for cookies one at a time until an empty name
func importInteractive(in io.Reader, out io.Writer, domain string) ([]auth.Cookie, error) {
	fmt.Fprintln(out, "Enter the cookies of the logged-in browser. Leave the name empty to finish.")

	var cookies []auth.Cookie
	scanner := bufio.NewScanner(in)
	prompt := func(label string) (string, bool) {
		fmt.Fprint(out, label)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		name, ok := prompt("\nCookie name: ")
		if !ok || name == "" {
			break
		}
		value, ok := prompt("Cookie value: ")
		if !ok {
			break
		}
		if value == "" {
			fmt.Fprintln(out, "Skipping cookie with empty value")
			continue
		}
		cookieDomain, ok := prompt(fmt.Sprintf("Domain [%s]: ", domain))
		if !ok {
			break
		}
		if cookieDomain == "" {
			cookieDomain = domain
		}

		cookies = append(cookies, auth.Cookie{
			Name:     name,
			Value:    value,
			Domain:   cookieDomain,
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
		})
		fmt.Fprintf(out, "Added %s (domain: %s)\n", name, cookieDomain)
	}
	return cookies, scanner.Err()
}

// parseJSONCookies reads a JSON array of cookies as exported by DevTools
// or cookie editor extensions
func parseJSONCookies(r io.Reader) ([]auth.Cookie, error) {
	var raw []struct {
		auth.Cookie
		// browser extensions name the expiry expirationDate
		ExpirationDate float64 `json:"expirationDate"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	cookies := make([]auth.Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := c.Cookie
		if cookie.Expires == 0 && c.ExpirationDate > 0 {
			cookie.Expires = c.ExpirationDate
		}
		if cookie.Path == "" {
			cookie.Path = "/"
		}
		if cookie.Name == "" {
			continue
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

// parseNetscapeCookies reads the tab separated cookies.txt format: domain,
// subdomain flag, path, secure, expiry (unix seconds), name, value
func parseNetscapeCookies(r io.Reader) ([]auth.Cookie, error) {
	var cookies []auth.Cookie
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		httpOnly := false
		if rest, ok := strings.CutPrefix(line, "#HttpOnly_"); ok {
			line, httpOnly = rest, true
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			fields = strings.Fields(line)
		}
		if len(fields) < 7 {
			continue
		}

		cookie := auth.Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HTTPOnly: httpOnly,
		}
		if expiry, err := strconv.ParseFloat(fields[4], 64); err == nil && expiry > 0 {
			cookie.Expires = expiry
		}
		cookies = append(cookies, cookie)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cookies, nil
}
