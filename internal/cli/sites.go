// internal/cli/sites.go
package cli

import (
	"fmt"
	"strings"

	"github.com/law-makers/marketwatch/internal/ui"
	"github.com/spf13/cobra"
)

// sitesCmd lists the configured marketplace sites
var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List configured marketplace sites",
	Example: `  # List sites from the default sites file
  $ marketwatch sites

  # Check which site serves a URL
  $ marketwatch sites match "https://www.leboncoin.fr/recherche?text=velo"`,
	Args: cobra.NoArgs,
	RunE: runSites,
}

var sitesMatchCmd = &cobra.Command{
	Use:   "match <url>",
	Short: "Show which site serves a URL and whether it is a supported search",
	Args:  cobra.ExactArgs(1),
	RunE:  runSitesMatch,
}

func init() {
	rootCmd.AddCommand(sitesCmd)
	sitesCmd.AddCommand(sitesMatchCmd)
}

func runSites(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "\n%s (%d)\n\n", ui.Bold("Sites"), a.Sites.Len())
	for _, id := range a.Sites.IDs() {
		site, err := a.Sites.Get(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s%-20s%s %s\n", ui.ColorCyan, site.ID, ui.ColorReset, site.Domain)
		fmt.Fprintf(out, "    %sauth=%s stealth=%s scroll=%s extraction=%s v%d rate=%.2f/s burst=%d%s\n",
			ui.ColorDim,
			site.Auth.Mode, site.Stealth, site.Scroll.Strategy,
			site.Extraction.Strategy, site.Extraction.Version,
			site.RateLimit.RPS, site.RateLimit.Burst,
			ui.ColorReset)
		fmt.Fprintf(out, "    %scontainers: %s%s\n", ui.ColorDim, strings.Join(site.ContainerSelectors, " | "), ui.ColorReset)
	}
	fmt.Fprintln(out)
	return nil
}

func runSitesMatch(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	out := cmd.OutOrStdout()

	site, ok := a.Sites.Match(args[0])
	if !ok {
		return fmt.Errorf("no site serves %s", args[0])
	}
	if !site.Supports(args[0]) {
		fmt.Fprintf(out, "%s %s, but the URL is not a supported search page\n", ui.Warn(site.ID), site.Domain)
		return nil
	}
	fmt.Fprintf(out, "%s %s\n", ui.Success(site.ID), site.Domain)
	return nil
}
