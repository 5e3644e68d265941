// internal/batch/runner.go
package batch

import (
	"context"
	"sync"

	"github.com/law-makers/marketwatch/internal/diagstore"
	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/rs/zerolog/log"
)

// Scraper runs one monitor; engine.Engine implements it
type Scraper interface {
	Scrape(ctx context.Context, m models.Monitor) (models.ExtractionResult, models.DiagnosisRecord)
}

// Outcome is the result of one monitor in a batch
type Outcome struct {
	Monitor models.Monitor          `json:"monitor"`
	Result  models.ExtractionResult `json:"result"`
	Record  models.DiagnosisRecord  `json:"record"`
}

// Runner scrapes many monitors concurrently
type Runner struct {
	scraper     Scraper
	sink        diagstore.Sink
	concurrency int
}

// New creates a runner. If concurrency <= 0 it defaults to a single worker.
// A nil sink discards records.
func New(scraper Scraper, sink diagstore.Sink, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	if sink == nil {
		sink = diagstore.Discard{}
	}
	return &Runner{
		scraper:     scraper,
		sink:        sink,
		concurrency: concurrency,
	}
}

// Run scrapes the monitors, interleaved across sites, and streams outcomes
// in completion order. Records of live monitors are written to the sink;
// dry-run monitors are scraped but not recorded. The channel is closed when
// every started scrape has finished. Cancelling ctx stops new scrapes from
// starting.
func (r *Runner) Run(ctx context.Context, monitors []models.Monitor) <-chan Outcome {
	results := make(chan Outcome, len(monitors))
	queue := Interleave(GroupBySite(monitors))

	go func() {
		defer close(results)

		var wg sync.WaitGroup
		sem := make(chan struct{}, r.concurrency)

	loop:
		for _, m := range queue {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break loop
			}

			wg.Add(1)
			go func(m models.Monitor) {
				defer wg.Done()
				defer func() { <-sem }()

				res, rec := r.scraper.Scrape(ctx, m)
				if m.Mode != models.ModeDryRun {
					if err := r.sink.Write(context.WithoutCancel(ctx), rec); err != nil {
						log.Warn().Err(err).Str("monitor", m.ID).Msg("Failed to record diagnosis")
					}
				}
				results <- Outcome{Monitor: m, Result: res, Record: rec}
			}(m)
		}

		wg.Wait()
	}()

	return results
}

// Summary aggregates a finished batch
type Summary struct {
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Ads        int            `json:"ads"`
	PageTypes  map[string]int `json:"page_types"`
	ErrorKinds map[string]int `json:"error_kinds,omitempty"`
}

// Summarize counts outcomes by page type and error kind
func Summarize(outcomes []Outcome) Summary {
	s := Summary{
		Total:      len(outcomes),
		PageTypes:  make(map[string]int),
		ErrorKinds: make(map[string]int),
	}
	for _, o := range outcomes {
		s.PageTypes[string(o.Result.Diagnosis.PageType)]++
		s.Ads += len(o.Result.Ads)
		if o.Result.Failed() {
			s.Failed++
			s.ErrorKinds[o.Result.Diagnosis.ErrorKind]++
		} else {
			s.Succeeded++
		}
	}
	return s
}
