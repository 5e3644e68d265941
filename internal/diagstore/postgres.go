// internal/diagstore/postgres.go
package diagstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/law-makers/marketwatch/internal/retry"
	"github.com/law-makers/marketwatch/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS scrape_diagnoses (
	id BIGSERIAL PRIMARY KEY,
	monitor_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	site TEXT NOT NULL,
	mode TEXT,
	page_type TEXT NOT NULL,
	requested_url TEXT NOT NULL,
	final_url TEXT,
	title TEXT,
	body_length INTEGER NOT NULL DEFAULT 0,
	captcha_provider TEXT,
	waf_provider TEXT,
	visible_elements INTEGER NOT NULL DEFAULT 0,
	selector_used TEXT,
	screenshot_path TEXT,
	error_kind TEXT,
	error_message TEXT,
	auth_source TEXT NOT NULL,
	authenticated BOOLEAN NOT NULL DEFAULT FALSE,
	ads_raw INTEGER NOT NULL DEFAULT 0,
	ads_valid INTEGER NOT NULL DEFAULT 0,
	skip_reasons TEXT,
	scroll_iterations INTEGER NOT NULL DEFAULT 0,
	attempts INTEGER NOT NULL DEFAULT 0,
	crash_recoveries INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS scrape_diagnoses_site_recorded_idx ON scrape_diagnoses (site, recorded_at DESC);
`

// PostgresSink stores records in PostgreSQL through a pgx pool
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to dsn and ensures the table exists
func NewPostgresSink(ctx context.Context, dsn string, maxConns int32) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	// pgxpool connects lazily, so the first statement is where an unreachable
	// server shows up
	err = retry.WithRetry(ctx, retry.Network(), func() error {
		_, err := pool.Exec(ctx, postgresSchema)
		return err
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Write implements Sink
func (s *PostgresSink) Write(ctx context.Context, rec models.DiagnosisRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_diagnoses (
			monitor_id, user_id, site, mode, page_type, requested_url, final_url,
			title, body_length, captcha_provider, waf_provider, visible_elements,
			selector_used, screenshot_path, error_kind, error_message, auth_source,
			authenticated, ads_raw, ads_valid, skip_reasons, scroll_iterations,
			attempts, crash_recoveries, duration_ms, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		rec.MonitorID, rec.UserID, rec.SiteID, rec.Mode, rec.PageType, rec.RequestedURL, rec.FinalURL,
		rec.Title, rec.BodyLength, rec.CaptchaProvider, rec.WAFProvider, rec.VisibleElements,
		rec.SelectorUsed, rec.ScreenshotPath, rec.ErrorKind, rec.ErrorMessage, rec.AuthSource,
		rec.Authenticated, rec.AdsRaw, rec.AdsValid, rec.SkipReasons, rec.ScrollIterations,
		rec.Attempts, rec.CrashRecoveries, rec.DurationMs, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert diagnosis: %w", err)
	}
	return nil
}

// Close implements Sink
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
