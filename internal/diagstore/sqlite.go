// internal/diagstore/sqlite.go
package diagstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/law-makers/marketwatch/pkg/models"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS diagnoses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
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
	authenticated INTEGER NOT NULL DEFAULT 0,
	ads_raw INTEGER NOT NULL DEFAULT 0,
	ads_valid INTEGER NOT NULL DEFAULT 0,
	skip_reasons TEXT,
	scroll_iterations INTEGER NOT NULL DEFAULT 0,
	attempts INTEGER NOT NULL DEFAULT 0,
	crash_recoveries INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_diagnoses_site_recorded ON diagnoses(site, recorded_at);
`

// timeLayout sorts lexically, unlike RFC3339Nano
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteSink stores records in a local SQLite file
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (and creates) the database at path
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Write implements Sink
func (s *SQLiteSink) Write(ctx context.Context, rec models.DiagnosisRecord) error {
	query := `
		INSERT INTO diagnoses (
			monitor_id, user_id, site, mode, page_type, requested_url, final_url,
			title, body_length, captcha_provider, waf_provider, visible_elements,
			selector_used, screenshot_path, error_kind, error_message, auth_source,
			authenticated, ads_raw, ads_valid, skip_reasons, scroll_iterations,
			attempts, crash_recoveries, duration_ms, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.MonitorID, rec.UserID, rec.SiteID, rec.Mode, rec.PageType, rec.RequestedURL, rec.FinalURL,
		rec.Title, rec.BodyLength, rec.CaptchaProvider, rec.WAFProvider, rec.VisibleElements,
		rec.SelectorUsed, rec.ScreenshotPath, rec.ErrorKind, rec.ErrorMessage, rec.AuthSource,
		rec.Authenticated, rec.AdsRaw, rec.AdsValid, rec.SkipReasons, rec.ScrollIterations,
		rec.Attempts, rec.CrashRecoveries, rec.DurationMs, rec.RecordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert diagnosis: %w", err)
	}
	return nil
}

// Recent returns the latest records, newest first. An empty siteID means
// every site.
func (s *SQLiteSink) Recent(ctx context.Context, siteID string, limit int) ([]models.DiagnosisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT monitor_id, user_id, site, mode, page_type, requested_url, final_url,
			title, body_length, captcha_provider, waf_provider, visible_elements,
			selector_used, screenshot_path, error_kind, error_message, auth_source,
			authenticated, ads_raw, ads_valid, skip_reasons, scroll_iterations,
			attempts, crash_recoveries, duration_ms, recorded_at
		FROM diagnoses
		WHERE (? = '' OR site = ?)
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, siteID, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnoses: %w", err)
	}
	defer rows.Close()

	var out []models.DiagnosisRecord
	for rows.Next() {
		var (
			rec                                                 models.DiagnosisRecord
			mode, finalURL, title, captcha, waf, selector, shot sql.NullString
			errKind, errMsg, skips                              sql.NullString
			recordedAt                                          string
		)
		if err := rows.Scan(
			&rec.MonitorID, &rec.UserID, &rec.SiteID, &mode, &rec.PageType, &rec.RequestedURL, &finalURL,
			&title, &rec.BodyLength, &captcha, &waf, &rec.VisibleElements,
			&selector, &shot, &errKind, &errMsg, &rec.AuthSource,
			&rec.Authenticated, &rec.AdsRaw, &rec.AdsValid, &skips, &rec.ScrollIterations,
			&rec.Attempts, &rec.CrashRecoveries, &rec.DurationMs, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan diagnosis: %w", err)
		}
		rec.Mode, rec.FinalURL, rec.Title = mode.String, finalURL.String, title.String
		rec.CaptchaProvider, rec.WAFProvider = captcha.String, waf.String
		rec.SelectorUsed, rec.ScreenshotPath = selector.String, shot.String
		rec.ErrorKind, rec.ErrorMessage, rec.SkipReasons = errKind.String, errMsg.String, skips.String
		if t, err := time.Parse(timeLayout, recordedAt); err == nil {
			rec.RecordedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PageTypeCounts tallies page types per site since the given time
func (s *SQLiteSink) PageTypeCounts(ctx context.Context, since time.Time) (map[string]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT site, page_type, COUNT(*)
		FROM diagnoses
		WHERE recorded_at >= ?
		GROUP BY site, page_type
	`, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to count diagnoses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var site, pageType string
		var n int
		if err := rows.Scan(&site, &pageType, &n); err != nil {
			return nil, err
		}
		if out[site] == nil {
			out[site] = make(map[string]int)
		}
		out[site][pageType] = n
	}
	return out, rows.Err()
}

// Close implements Sink
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
