// internal/batch/concurrency.go
package batch

import (
	"runtime"
)

// OptimalConcurrency picks the number of scrape workers: twice the browser
// context cap, bounded by CPU count and available memory, never below the cap
func OptimalConcurrency(maxContexts int) int {
	if maxContexts <= 0 {
		maxContexts = 1
	}
	optimal := maxContexts * 2

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	availMB := (m.Sys - m.Alloc) / 1024 / 1024

	// Assume ~150MB per browser context
	maxByMemory := int(availMB / 150)

	if cpu := runtime.NumCPU() * 4; optimal > cpu {
		optimal = cpu
	}
	if maxByMemory > maxContexts && maxByMemory < optimal {
		optimal = maxByMemory
	}
	if optimal < maxContexts {
		optimal = maxContexts
	}
	return optimal
}
