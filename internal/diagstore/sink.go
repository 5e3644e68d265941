// internal/diagstore/sink.go
package diagstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/rs/zerolog"
)

// Sink receives one diagnosis record per scrape
type Sink interface {
	Write(ctx context.Context, rec models.DiagnosisRecord) error
	Close() error
}

// Open returns the sink named by dsn:
//
//	""                      no-op
//	"log"                   structured log lines
//	"sqlite:<path>"         SQLite database file
//	"postgres://..."        PostgreSQL (also "postgresql://")
//
// A comma separated list opens every sink and writes to all of them.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (Sink, error) {
	parts := strings.Split(dsn, ",")
	if len(parts) == 1 {
		return openOne(ctx, strings.TrimSpace(dsn), logger)
	}

	var multi Multi
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sink, err := openOne(ctx, part, logger)
		if err != nil {
			_ = multi.Close()
			return nil, err
		}
		multi = append(multi, sink)
	}
	return multi, nil
}

func openOne(ctx context.Context, dsn string, logger zerolog.Logger) (Sink, error) {
	switch {
	case dsn == "" || dsn == "none":
		return Discard{}, nil
	case dsn == "log":
		return NewLogSink(logger), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return NewSQLiteSink(strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresSink(ctx, dsn, 4)
	default:
		return nil, fmt.Errorf("unsupported diagnosis sink %q", dsn)
	}
}

// Discard drops every record
type Discard struct{}

// Write implements Sink
func (Discard) Write(context.Context, models.DiagnosisRecord) error { return nil }

// Close implements Sink
func (Discard) Close() error { return nil }

// LogSink writes records as structured log lines
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink logging at info level
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "diagnosis").Logger()}
}

// Write implements Sink
func (s *LogSink) Write(_ context.Context, rec models.DiagnosisRecord) error {
	s.logger.Info().
		Str("monitor", rec.MonitorID).
		Str("site", rec.SiteID).
		Str("page_type", rec.PageType).
		Str("error_kind", rec.ErrorKind).
		Int("ads_valid", rec.AdsValid).
		Int64("duration_ms", rec.DurationMs).
		Time("recorded_at", rec.RecordedAt).
		Msg("Diagnosis recorded")
	return nil
}

// Close implements Sink
func (s *LogSink) Close() error { return nil }

// Multi fans a record out to several sinks. Every sink is attempted.
type Multi []Sink

// Write implements Sink
func (m Multi) Write(ctx context.Context, rec models.DiagnosisRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FindSQLite returns the SQLite sink inside s, looking through Multi
func FindSQLite(s Sink) (*SQLiteSink, bool) {
	switch v := s.(type) {
	case *SQLiteSink:
		return v, true
	case Multi:
		for _, inner := range v {
			if found, ok := FindSQLite(inner); ok {
				return found, true
			}
		}
	}
	return nil, false
}
