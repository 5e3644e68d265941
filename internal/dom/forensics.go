package dom

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// ScreenshotFunc captures the current tab as PNG bytes
type ScreenshotFunc func(ctx context.Context) ([]byte, error)

// Forensics stores evidence of ambiguous or empty pages
type Forensics struct {
	Dir        string
	Screenshot ScreenshotFunc
	now        func() time.Time
}

// NewForensics returns forensics writing under dir. An empty dir disables
// capture.
func NewForensics(dir string) *Forensics {
	return &Forensics{
		Dir: dir,
		Screenshot: func(ctx context.Context) ([]byte, error) {
			var buf []byte
			err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 100))
			return buf, err
		},
		now: time.Now,
	}
}

// Enabled reports whether captures are written
func (f *Forensics) Enabled() bool {
	return f != nil && f.Dir != ""
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Capture writes a screenshot to <dir>/<site>/<timestamp>-<label>-<id>.png
// and returns its path
func (f *Forensics) Capture(ctx context.Context, siteID, label string) (string, error) {
	if !f.Enabled() {
		return "", nil
	}

	data, err := f.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}

	dir := filepath.Join(f.Dir, unsafeName.ReplaceAllString(siteID, "_"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create forensics dir: %w", err)
	}

	now := time.Now
	if f.now != nil {
		now = f.now
	}
	name := fmt.Sprintf("%s-%s-%s.png",
		now().UTC().Format("20060102T150405"),
		unsafeName.ReplaceAllString(label, "_"),
		uuid.NewString()[:8],
	)
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}
