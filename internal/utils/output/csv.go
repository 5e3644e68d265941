package output

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/law-makers/marketwatch/pkg/models"
)

var adColumns = []string{"external_id", "title", "price", "currency", "url", "location", "published_at", "image_url"}

var recordColumns = []string{
	"recorded_at", "monitor_id", "site", "page_type", "error_kind", "ads_valid",
	"ads_raw", "attempts", "crash_recoveries", "duration_ms", "auth_source", "final_url",
}

// WriteAdsCSV writes one row per listing under a fixed header
func WriteAdsCSV(w io.Writer, ads []models.ScrapedAd) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(adColumns); err != nil {
		return err
	}
	for _, ad := range ads {
		price := ""
		if ad.Price != nil {
			price = strconv.FormatFloat(*ad.Price, 'f', -1, 64)
		}
		published := ""
		if ad.PublishedAt != nil {
			published = ad.PublishedAt.UTC().Format(time.RFC3339)
		}
		row := []string{ad.ExternalID, ad.Title, price, ad.Currency, ad.URL, ad.Location, published, ad.ImageURL}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteRecordsCSV writes diagnosis records, newest as given
func WriteRecordsCSV(w io.Writer, recs []models.DiagnosisRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(recordColumns); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.RecordedAt.UTC().Format(time.RFC3339),
			r.MonitorID,
			r.SiteID,
			r.PageType,
			r.ErrorKind,
			strconv.Itoa(r.AdsValid),
			strconv.Itoa(r.AdsRaw),
			strconv.Itoa(r.Attempts),
			strconv.Itoa(r.CrashRecoveries),
			strconv.FormatInt(r.DurationMs, 10),
			r.AuthSource,
			r.FinalURL,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveCSV writes listings to a CSV file. Returns an error on failure.
func SaveCSV(ads []models.ScrapedAd, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	if err := WriteAdsCSV(file, ads); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
