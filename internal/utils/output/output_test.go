package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAds() []models.ScrapedAd {
	price := 120.5
	published := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return []models.ScrapedAd{
		{ExternalID: "a1", Title: "Road bike, 56cm", Price: &price, Currency: "EUR", URL: "https://shop.example/ad/a1", PublishedAt: &published},
		{ExternalID: "a2", Title: "Lamp", URL: "https://shop.example/ad/a2", Location: "Lyon"},
	}
}

func TestWriteAdsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAdsCSV(&buf, sampleAds()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, adColumns, rows[0])
	assert.Equal(t, "Road bike, 56cm", rows[1][1])
	assert.Equal(t, "120.5", rows[1][2])
	assert.Equal(t, "2026-03-01T09:30:00Z", rows[1][6])
	assert.Equal(t, "", rows[2][2])
	assert.Equal(t, "Lyon", rows[2][5])
}

func TestWriteRecordsCSV(t *testing.T) {
	recs := []models.DiagnosisRecord{{
		MonitorID:  "m1",
		SiteID:     "shop",
		PageType:   "BLOCKED",
		ErrorKind:  "BLOCKED",
		Attempts:   3,
		DurationMs: 1500,
		RecordedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteRecordsCSV(&buf, recs))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2026-03-01T00:00:00Z,m1,shop,BLOCKED,BLOCKED,0,0,3,0,1500,,", lines[1])
}

func TestSaveJSONAndCSV(t *testing.T) {
	dir := t.TempDir()
	ads := sampleAds()

	jsonPath := filepath.Join(dir, "ads.json")
	require.NoError(t, SaveJSON(ads, jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded []models.ScrapedAd
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 2)

	csvPath := filepath.Join(dir, "ads.csv")
	require.NoError(t, SaveCSV(ads, csvPath))
	data, err = os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "external_id,title"))
}
