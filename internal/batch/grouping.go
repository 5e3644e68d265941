// internal/batch/grouping.go
package batch

import (
	"sort"

	"github.com/law-makers/marketwatch/pkg/models"
)

// GroupBySite groups monitors by their site, keeping input order per site
func GroupBySite(monitors []models.Monitor) map[string][]models.Monitor {
	groups := make(map[string][]models.Monitor)
	for _, m := range monitors {
		groups[m.SiteID] = append(groups[m.SiteID], m)
	}
	return groups
}

// Interleave orders monitors round-robin across sites so one slow or
// heavily rate-limited site does not hold the whole batch behind it
func Interleave(groups map[string][]models.Monitor) []models.Monitor {
	keys := make([]string, 0, len(groups))
	total := 0
	for k, g := range groups {
		keys = append(keys, k)
		total += len(g)
	}
	sort.Strings(keys)

	out := make([]models.Monitor, 0, total)
	for i := 0; len(out) < total; i++ {
		for _, k := range keys {
			if i < len(groups[k]) {
				out = append(out, groups[k][i])
			}
		}
	}
	return out
}
