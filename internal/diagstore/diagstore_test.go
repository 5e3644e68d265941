package diagstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(site, pageType string, at time.Time) models.DiagnosisRecord {
	return models.DiagnosisRecord{
		MonitorID:    "m-" + site,
		UserID:       "u1",
		SiteID:       site,
		Mode:         "live",
		PageType:     pageType,
		RequestedURL: "https://" + site + ".example/search",
		AuthSource:   "anonymous",
		AdsRaw:       4,
		AdsValid:     3,
		SkipReasons:  "duplicate=1",
		Attempts:     1,
		DurationMs:   1500,
		RecordedAt:   at,
	}
}

func TestSQLiteSink(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "db", "diag.db"))
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Write(ctx, record("shop", "CONTENT", base)))
	require.NoError(t, sink.Write(ctx, record("shop", "CAPTCHA", base.Add(time.Minute))))
	require.NoError(t, sink.Write(ctx, record("market", "NO_RESULTS", base.Add(2*time.Minute))))

	recent, err := sink.Recent(ctx, "shop", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "CAPTCHA", recent[0].PageType)
	assert.Equal(t, "CONTENT", recent[1].PageType)
	assert.Equal(t, "duplicate=1", recent[1].SkipReasons)
	assert.Equal(t, int64(1500), recent[1].DurationMs)
	assert.True(t, base.Equal(recent[1].RecordedAt))

	all, err := sink.Recent(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "market", all[0].SiteID)

	counts, err := sink.PageTypeCounts(ctx, base.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]int{
		"shop":   {"CAPTCHA": 1},
		"market": {"NO_RESULTS": 1},
	}, counts)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	s, err := Open(ctx, "", logger)
	require.NoError(t, err)
	assert.IsType(t, Discard{}, s)

	s, err = Open(ctx, "log", logger)
	require.NoError(t, err)
	assert.IsType(t, &LogSink{}, s)

	s, err = Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "d.db"), logger)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteSink{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, "log, sqlite:"+filepath.Join(t.TempDir(), "d.db"), logger)
	require.NoError(t, err)
	require.IsType(t, Multi{}, s)
	assert.Len(t, s.(Multi), 2)
	_, ok := FindSQLite(s)
	assert.True(t, ok)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "mysql://nope", logger)
	assert.Error(t, err)

	_, err = Open(ctx, "log,mysql://nope", logger)
	assert.Error(t, err)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	require.NoError(t, sink.Write(context.Background(), record("shop", "EMPTY", time.Now())))
	assert.Contains(t, buf.String(), `"page_type":"EMPTY"`)
	assert.Contains(t, buf.String(), `"component":"diagnosis"`)
}

type failingSink struct{ closed bool }

func (f *failingSink) Write(context.Context, models.DiagnosisRecord) error {
	return errors.New("disk full")
}

func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

func TestMultiAttemptsEverySink(t *testing.T) {
	var buf bytes.Buffer
	failing := &failingSink{}
	m := Multi{failing, NewLogSink(zerolog.New(&buf))}

	err := m.Write(context.Background(), record("shop", "CONTENT", time.Now()))
	assert.ErrorContains(t, err, "disk full")
	assert.Contains(t, buf.String(), "Diagnosis recorded")

	require.NoError(t, m.Close())
	assert.True(t, failing.closed)
}
