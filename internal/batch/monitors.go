// internal/batch/monitors.go
package batch

import (
	"bytes"
	"fmt"
	"os"

	"github.com/law-makers/marketwatch/internal/sites"
	urlutil "github.com/law-makers/marketwatch/internal/utils/url"
	"github.com/law-makers/marketwatch/pkg/models"
	"gopkg.in/yaml.v3"
)

type monitorsFile struct {
	Monitors []models.Monitor `yaml:"monitors"`
}

// ParseMonitors decodes a YAML monitors document. Monitors without a site
// are matched against the registry by URL.
func ParseMonitors(data []byte, reg *sites.Registry) ([]models.Monitor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f monitorsFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode monitors: %w", err)
	}
	if len(f.Monitors) == 0 {
		return nil, fmt.Errorf("monitors file defines no monitors")
	}

	seen := make(map[string]bool, len(f.Monitors))
	for i := range f.Monitors {
		m := &f.Monitors[i]
		if m.ID == "" {
			return nil, fmt.Errorf("monitor %d: id is required", i)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("monitor %s defined twice", m.ID)
		}
		seen[m.ID] = true

		if err := Normalize(m, reg); err != nil {
			return nil, fmt.Errorf("monitor %s: %w", m.ID, err)
		}
	}
	return f.Monitors, nil
}

// Normalize validates a monitor and fills its defaults: the site is
// matched by URL when empty and the mode defaults to live.
func Normalize(m *models.Monitor, reg *sites.Registry) error {
	if m.SearchURL == "" {
		return fmt.Errorf("search_url is required")
	}
	if err := urlutil.ValidateURL(m.SearchURL); err != nil {
		return err
	}
	if m.SiteID == "" && reg != nil {
		if site, ok := reg.Match(m.SearchURL); ok {
			m.SiteID = site.ID
		}
	}
	if m.SiteID == "" {
		return fmt.Errorf("no site matches %s", m.SearchURL)
	}

	switch m.Mode {
	case "":
		m.Mode = models.ModeLive
	case models.ModeLive, models.ModeDryRun:
	default:
		return fmt.Errorf("unknown mode %q", m.Mode)
	}
	if m.MinPrice != nil && m.MaxPrice != nil && *m.MinPrice > *m.MaxPrice {
		return fmt.Errorf("min_price exceeds max_price")
	}
	return nil
}

// LoadMonitors reads a YAML monitors file from disk
func LoadMonitors(path string, reg *sites.Registry) ([]models.Monitor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read monitors file: %w", err)
	}
	return ParseMonitors(data, reg)
}
