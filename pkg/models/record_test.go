package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDiagnosisRecordDoesNotMutateInputs(t *testing.T) {
	minPrice := 10.0
	monitor := Monitor{ID: "m1", UserID: "u1", SiteID: "shop", SearchURL: "https://shop.example/s", MinPrice: &minPrice, Mode: ModeLive}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result := ExtractionResult{
		Diagnosis: PageDiagnosis{
			PageType:     PageContent,
			RequestedURL: "https://shop.example/s",
			FinalURL:     "https://shop.example/s?page=1",
			BodyLength:   4200,
			Signals:      Signals{VisibleElements: 90, CaptchaProvider: ""},
			DiagnosedAt:  at,
		},
		Metrics: ExtractionMetrics{
			Duration:     1500 * time.Millisecond,
			AuthSource:   AuthSessionPool,
			SelectorUsed: "#results",
			AdsRaw:       12,
			AdsValid:     9,
			SkipReasons:  map[string]int{"price_below_min": 2, "duplicate": 1},
			Attempts:     2,
		},
	}

	rec := NewDiagnosisRecord(monitor, result)

	assert.Equal(t, "m1", rec.MonitorID)
	assert.Equal(t, "CONTENT", rec.PageType)
	assert.Equal(t, "session-pool", rec.AuthSource)
	assert.Equal(t, "duplicate=1,price_below_min=2", rec.SkipReasons)
	assert.Equal(t, int64(1500), rec.DurationMs)
	assert.Equal(t, at, rec.RecordedAt)
	assert.Equal(t, "live", rec.Mode)

	assert.Equal(t, 10.0, *monitor.MinPrice)
	assert.Len(t, result.Metrics.SkipReasons, 2)
}

func TestFormatSkipReasonsEmpty(t *testing.T) {
	assert.Equal(t, "", FormatSkipReasons(nil))
}

func TestPageTypeIsAuthFailure(t *testing.T) {
	assert.True(t, PageLoginRequired.IsAuthFailure())
	assert.True(t, PageCheckpoint.IsAuthFailure())
	assert.False(t, PageCaptcha.IsAuthFailure())
	assert.False(t, PageContent.IsAuthFailure())
}
