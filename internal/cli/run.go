// internal/cli/run.go
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/law-makers/marketwatch/internal/batch"
	"github.com/law-makers/marketwatch/internal/ui"
	"github.com/law-makers/marketwatch/internal/utils/output"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	monitorsFile   string
	runConcurrency int
	runOutput      string
	runNoProgress  bool
)

// runCmd scrapes every monitor of a monitors file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape every monitor of a monitors file",
	Long: `Scrapes all monitors from a YAML monitors file, interleaved across sites,
with bounded concurrency. Each site still honours its own rate limit.

Live monitors have their diagnosis recorded in the configured sink; dry_run
monitors are scraped but not recorded.`,
	Example: `  # Run the monitors file with the default concurrency
  $ marketwatch run --monitors monitors.yaml

  # Record diagnoses into SQLite and keep every outcome as JSON
  $ marketwatch run --monitors monitors.yaml --diagnosis-sink=sqlite:diag.db -o outcomes.json`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&monitorsFile, "monitors", "m", "monitors.yaml", "Path to the monitors file")
	runCmd.Flags().IntVarP(&runConcurrency, "concurrency", "c", 0, "Concurrent scrapes (default: derived from --max-contexts)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write every outcome as JSON to this file")
	runCmd.Flags().BoolVar(&runNoProgress, "no-progress", false, "Hide the progress bar")
}

func runRun(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	ctx := cmd.Context()

	monitors, err := batch.LoadMonitors(monitorsFile, a.Sites)
	if err != nil {
		return err
	}
	if runConcurrency > 0 {
		a.Config.Scrape.Concurrency = runConcurrency
	}

	runner, err := a.Runner(ctx)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !runNoProgress {
		bar = progressbar.NewOptions(len(monitors),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("scraping"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	var outcomes []batch.Outcome
	for o := range runner.Run(ctx, monitors) {
		outcomes = append(outcomes, o)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Monitor.ID < outcomes[j].Monitor.ID })
	for _, o := range outcomes {
		printResultLine(os.Stderr, o.Monitor, o.Result)
	}

	summary := batch.Summarize(outcomes)
	printSummary(os.Stderr, summary, len(monitors))

	if runOutput != "" {
		if err := output.SaveJSON(outcomes, runOutput); err != nil {
			return fmt.Errorf("failed to write outcomes: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted after %d of %d monitors: %w", len(outcomes), len(monitors), err)
	}
	return nil
}

func printSummary(w io.Writer, s batch.Summary, planned int) {
	fmt.Fprintf(w, "\n%s %d/%d scraped, %s, %s, %d ads\n",
		ui.Bold("Summary"), s.Total, planned,
		ui.Success(fmt.Sprintf("%d ok", s.Succeeded)),
		ui.Error(fmt.Sprintf("%d failed", s.Failed)),
		s.Ads)

	for _, pt := range sortedKeys(s.PageTypes) {
		fmt.Fprintf(w, "  %-16s %d\n", pt, s.PageTypes[pt])
	}
	for _, kind := range sortedKeys(s.ErrorKinds) {
		fmt.Fprintf(w, "  %s %-10s %d\n", ui.ColorDim+"error"+ui.ColorReset, kind, s.ErrorKinds[kind])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
