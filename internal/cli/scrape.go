// internal/cli/scrape.go
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/law-makers/marketwatch/internal/batch"
	"github.com/law-makers/marketwatch/internal/ui"
	"github.com/law-makers/marketwatch/internal/utils/output"
	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type scrapeOptions struct {
	siteID    string
	userID    string
	monitorID string
	minPrice  float64
	maxPrice  float64
	locations []string
	keywords  []string
	dryRun    bool
	output    string
	format    string
}

var scrapeOpts scrapeOptions

// scrapeCmd runs one monitor from the command line
var scrapeCmd = &cobra.Command{
	Use:   "scrape <search-url>",
	Short: "Scrape one marketplace search page",
	Long: `Runs a single monitor against a marketplace search URL and prints the listings.

The site is matched by the URL's domain unless --site is given. The full
result, diagnosis included, is printed as JSON; --format=csv prints only
the listings.`,
	Example: `  # Scrape a search anonymously
  $ marketwatch scrape "https://www.leboncoin.fr/recherche?text=velo"

  # Scrape with a stored session and a price window
  $ marketwatch scrape "https://www.facebook.com/marketplace/paris/search?query=lamp" --user=alice --min-price=10 --max-price=80

  # Save listings as CSV
  $ marketwatch scrape "https://www.kufar.by/l?query=bike" --format=csv -o bikes.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	f := scrapeCmd.Flags()
	f.StringVar(&scrapeOpts.siteID, "site", "", "Site id (default: matched from the URL)")
	f.StringVarP(&scrapeOpts.userID, "user", "u", "", "User whose stored session is used")
	f.StringVar(&scrapeOpts.monitorID, "id", "", "Monitor id used in logs and records (default: random)")
	f.Float64Var(&scrapeOpts.minPrice, "min-price", 0, "Drop listings cheaper than this")
	f.Float64Var(&scrapeOpts.maxPrice, "max-price", 0, "Drop listings dearer than this")
	f.StringSliceVar(&scrapeOpts.locations, "location", nil, "Keep listings in these locations (repeatable)")
	f.StringSliceVar(&scrapeOpts.keywords, "keyword", nil, "Keep listings mentioning one of these words (repeatable)")
	f.BoolVar(&scrapeOpts.dryRun, "dry-run", false, "Do not write a diagnosis record")
	f.StringVarP(&scrapeOpts.output, "output", "o", "", "Write output to a file instead of stdout")
	f.StringVar(&scrapeOpts.format, "format", "json", "Output format: json or csv")
}

// monitor builds the monitor described by the flags
func (o scrapeOptions) monitor(cmd *cobra.Command, searchURL string) models.Monitor {
	m := models.Monitor{
		ID:        o.monitorID,
		UserID:    o.userID,
		SiteID:    o.siteID,
		SearchURL: searchURL,
		Locations: o.locations,
		Keywords:  o.keywords,
		Mode:      models.ModeLive,
	}
	if m.ID == "" {
		m.ID = "cli-" + uuid.NewString()[:8]
	}
	if cmd.Flags().Changed("min-price") {
		v := o.minPrice
		m.MinPrice = &v
	}
	if cmd.Flags().Changed("max-price") {
		v := o.maxPrice
		m.MaxPrice = &v
	}
	if o.dryRun {
		m.Mode = models.ModeDryRun
	}
	return m
}

func runScrape(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	ctx := cmd.Context()

	format := strings.ToLower(scrapeOpts.format)
	if format != "json" && format != "csv" {
		return fmt.Errorf("unsupported format: %s (use: json, csv)", scrapeOpts.format)
	}

	m := scrapeOpts.monitor(cmd, args[0])
	if m.SiteID != "" {
		if _, err := a.Sites.Get(m.SiteID); err != nil {
			return err
		}
	}
	if err := batch.Normalize(&m, a.Sites); err != nil {
		return err
	}

	eng, err := a.EnsureEngine(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	res, rec := eng.Scrape(ctx, m)

	if m.Mode != models.ModeDryRun {
		sink, err := a.Sink(ctx)
		if err != nil {
			return err
		}
		if err := sink.Write(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn().Err(err).Msg("Failed to record diagnosis")
		}
	}

	printResultLine(os.Stderr, m, res)

	if err := writeResult(res, format, scrapeOpts.output); err != nil {
		return err
	}
	if res.Failed() {
		return fmt.Errorf("scrape failed: %s", res.Diagnosis.ErrorKind)
	}
	return nil
}

func writeResult(res models.ExtractionResult, format, path string) error {
	switch {
	case path != "" && format == "csv":
		return output.SaveCSV(res.Ads, path)
	case path != "":
		return output.SaveJSON(res, path)
	case format == "csv":
		return output.WriteAdsCSV(os.Stdout, res.Ads)
	default:
		return output.WriteJSON(os.Stdout, res)
	}
}

// printResultLine prints a one-line human summary of a scrape
func printResultLine(w io.Writer, m models.Monitor, res models.ExtractionResult) {
	line := fmt.Sprintf("%s %s  %s  ads=%d/%d  attempts=%d  %s",
		ui.Bold(m.SiteID), m.ID,
		ui.PageType(res.Diagnosis.PageType),
		res.Metrics.AdsValid, res.Metrics.AdsRaw,
		res.Metrics.Attempts,
		res.Metrics.Duration.Round(time.Millisecond))
	if res.Failed() {
		line += "  " + ui.Error(res.Diagnosis.ErrorMessage)
	}
	if res.Diagnosis.ScreenshotPath != "" {
		line += "  " + ui.ColorDim + res.Diagnosis.ScreenshotPath + ui.ColorReset
	}
	fmt.Fprintln(w, line)
}
