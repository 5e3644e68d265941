// internal/browser/chrome.go
package browser

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
)

// ErrChromeNotFound is returned when no Chrome-compatible executable exists
var ErrChromeNotFound = errors.New("chrome browser not found")

// pathBrowsers are Chrome-compatible executables looked up in PATH
var pathBrowsers = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
	"msedge",
	"brave-browser",
}

// FindChrome locates a Chrome/Chromium executable. An explicit path wins,
// then CHROME_PATH, then the usual install locations of the current OS,
// then PATH.
func FindChrome(explicit string) (string, error) {
	for _, source := range []struct{ name, path string }{
		{"config", explicit},
		{"CHROME_PATH", os.Getenv("CHROME_PATH")},
	} {
		if source.path == "" {
			continue
		}
		if isExecutable(source.path) {
			log.Debug().Str("path", source.path).Str("source", source.name).Msg("Chrome found")
			return source.path, nil
		}
		log.Warn().Str("path", source.path).Str("source", source.name).Msg("Chrome path set but not executable")
	}

	for _, path := range chromeCandidates(runtime.GOOS, os.Getenv("HOME"), os.Getenv) {
		if isExecutable(path) {
			log.Debug().Str("path", path).Str("os", runtime.GOOS).Msg("Chrome found at standard location")
			return path, nil
		}
	}

	for _, name := range pathBrowsers {
		if path, err := exec.LookPath(name); err == nil {
			log.Debug().Str("path", path).Msg("Chrome found in PATH")
			return path, nil
		}
	}

	return "", ErrChromeNotFound
}

// chromeCandidates lists install locations for an OS
func chromeCandidates(goos, home string, getenv func(string) string) []string {
	var candidates []string

	switch goos {
	case "darwin":
		apps := []string{
			"Google Chrome.app/Contents/MacOS/Google Chrome",
			"Chromium.app/Contents/MacOS/Chromium",
			"Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			"Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
			"Brave Browser.app/Contents/MacOS/Brave Browser",
		}
		for _, app := range apps {
			candidates = append(candidates, filepath.Join("/Applications", app))
		}
		if home != "" {
			for _, app := range apps[:2] {
				candidates = append(candidates, filepath.Join(home, "Applications", app))
			}
		}

	case "windows":
		for _, base := range []string{getenv("ProgramFiles"), getenv("ProgramFiles(x86)"), getenv("LocalAppData")} {
			if base == "" {
				continue
			}
			candidates = append(candidates,
				filepath.Join(base, "Google", "Chrome", "Application", "chrome.exe"),
				filepath.Join(base, "Chromium", "Application", "chrome.exe"),
				filepath.Join(base, "Microsoft", "Edge", "Application", "msedge.exe"),
			)
		}

	default:
		candidates = []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
			"/headless-shell/headless-shell",
			"/usr/bin/microsoft-edge",
		}
		if home != "" {
			candidates = append(candidates,
				filepath.Join(home, ".local/share/flatpak/exports/bin/com.google.Chrome"),
				filepath.Join(home, ".local/share/flatpak/exports/bin/org.chromium.Chromium"),
			)
		}
	}

	return candidates
}

// isExecutable checks if a file exists and is executable
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}
