// internal/cli/history.go
package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/law-makers/marketwatch/internal/diagstore"
	"github.com/law-makers/marketwatch/internal/ui"
	"github.com/law-makers/marketwatch/internal/utils/output"
	"github.com/spf13/cobra"
)

var (
	historySite   string
	historyLimit  int
	historySince  time.Duration
	historyStats  bool
	historyFormat string
)

// historyCmd reads recorded diagnoses back from a SQLite sink
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded scrape diagnoses",
	Long: `Reads diagnosis records from the SQLite diagnosis sink.

Use --stats to count page types per site instead of listing records. A
rising share of LOGIN_REQUIRED, CAPTCHA or BLOCKED pages on one site is the
usual sign that its selectors or sessions need attention.`,
	Example: `  # Last 20 records of one site
  $ marketwatch history --diagnosis-sink=sqlite:diag.db --site=leboncoin

  # Page types per site over the last day
  $ marketwatch history --diagnosis-sink=sqlite:diag.db --stats --since=24h`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historySite, "site", "", "Only records of this site")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of records")
	historyCmd.Flags().DurationVar(&historySince, "since", 24*time.Hour, "Window for --stats")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Count page types per site")
	historyCmd.Flags().StringVar(&historyFormat, "format", "table", "Output format: table, csv or json")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	ctx := cmd.Context()

	sink, err := a.Sink(ctx)
	if err != nil {
		return err
	}
	store, ok := diagstore.FindSQLite(sink)
	if !ok {
		return fmt.Errorf("history needs a sqlite:<path> diagnosis sink, got %q", a.Config.Diagnosis.Sink)
	}

	if historyStats {
		counts, err := store.PageTypeCounts(ctx, time.Now().Add(-historySince))
		if err != nil {
			return err
		}
		if historyFormat == "json" {
			return output.WriteJSON(os.Stdout, counts)
		}
		for _, site := range sortedSiteKeys(counts) {
			fmt.Printf("%s\n", ui.Bold(site))
			for _, pt := range sortedKeys(counts[site]) {
				fmt.Printf("  %-16s %d\n", pt, counts[site][pt])
			}
		}
		return nil
	}

	recs, err := store.Recent(ctx, historySite, historyLimit)
	if err != nil {
		return err
	}

	switch strings.ToLower(historyFormat) {
	case "json":
		return output.WriteJSON(os.Stdout, recs)
	case "csv":
		return output.WriteRecordsCSV(os.Stdout, recs)
	case "table":
	default:
		return fmt.Errorf("unsupported format: %s (use: table, csv, json)", historyFormat)
	}

	if len(recs) == 0 {
		fmt.Println("No records.")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%s  %-14s %-24s %-15s ads=%-3d attempts=%d %s\n",
			r.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			r.SiteID, r.MonitorID, r.PageType, r.AdsValid, r.Attempts,
			ui.ColorDim+r.ErrorKind+ui.ColorReset)
	}
	return nil
}

func sortedSiteKeys(m map[string]map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
