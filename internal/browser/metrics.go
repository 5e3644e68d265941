package browser

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Metrics is a health snapshot of the browser manager
type Metrics struct {
	Connected       bool      `json:"connected"`
	ActiveContexts  int       `json:"active_contexts"`
	MaxContexts     int       `json:"max_contexts"`
	Relaunches      int64     `json:"relaunches"`
	LastLaunch      time.Time `json:"last_launch"`
	BrowserPID      int       `json:"browser_pid,omitempty"`
	BrowserVersion  string    `json:"browser_version,omitempty"`
	BrowserRSSBytes uint64    `json:"browser_rss_bytes"`
	HeapAllocBytes  uint64    `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64    `json:"heap_sys_bytes"`
	Goroutines      int       `json:"goroutines"`
}

// Metrics returns memory, connection and concurrency figures
func (m *Manager) Metrics() Metrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.RLock()
	s := m.session
	m.mu.RUnlock()

	out := Metrics{
		Connected:      s != nil && s.Ctx.Err() == nil,
		ActiveContexts: int(m.active.Load()),
		MaxContexts:    cap(m.slots),
		Relaunches:     m.relaunches.Load(),
		HeapAllocBytes: ms.HeapAlloc,
		HeapSysBytes:   ms.HeapSys,
		Goroutines:     runtime.NumGoroutine(),
	}
	if ns := m.lastLaunch.Load(); ns > 0 {
		out.LastLaunch = time.Unix(0, ns)
	}
	if s != nil {
		out.BrowserPID = s.PID
		out.BrowserVersion = s.Version
		if rss, err := processRSS(s.PID); err == nil {
			out.BrowserRSSBytes = rss
		}
	}
	return out
}

// processRSS reads the resident set size of a process from procfs. It
// returns an error on systems without /proc.
func processRSS(pid int) (uint64, error) {
	if pid <= 0 {
		return 0, fmt.Errorf("no pid")
	}
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/statm")
	if err != nil {
		return 0, err
	}
	return parseStatm(string(data), os.Getpagesize())
}

func parseStatm(statm string, pageSize int) (uint64, error) {
	fields := strings.Fields(statm)
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed statm: %q", statm)
	}
	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed statm: %w", err)
	}
	return pages * uint64(pageSize), nil
}
