// internal/auth/session.go
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	// KeyringService is the service name for keyring storage
	KeyringService = "marketwatch"
	// FallbackDir is the directory for file-based session storage (when keyring fails)
	FallbackDir = ".marketwatch/sessions"
)

var (
	// ErrSessionNotFound is returned when no session is stored for a user and site
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the stored session is past its expiry
	ErrSessionExpired = errors.New("session expired")
)

// SessionData represents stored authentication session
type SessionData struct {
	UserID    string            `json:"user_id"`
	SiteID    string            `json:"site"`
	URL       string            `json:"url,omitempty"`
	Cookies   []Cookie          `json:"cookies"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
}

// Cookie represents a browser cookie
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Key returns the storage key of the session
func (s *SessionData) Key() string {
	return Key(s.UserID, s.SiteID)
}

// Expired reports whether the session is past its expiry
func (s *SessionData) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SetCookies replaces the cookies and recomputes the expiry
func (s *SessionData) SetCookies(cookies []Cookie) {
	s.Cookies = cookies
	s.ExpiresAt = ExpiryFromCookies(cookies)
}

// ExpiryFromCookies returns the latest cookie expiry, or zero when every
// cookie is a session cookie
func ExpiryFromCookies(cookies []Cookie) time.Time {
	maxExpires := 0.0
	for _, c := range cookies {
		if c.Expires > maxExpires {
			maxExpires = c.Expires
		}
	}
	if maxExpires <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(maxExpires), 0)
}

var unsafeKey = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Key builds the storage key for a user on a site
func Key(userID, siteID string) string {
	return unsafeKey.ReplaceAllString(siteID, "_") + "__" + unsafeKey.ReplaceAllString(userID, "_")
}

// Store persists session material keyed by user and site
type Store interface {
	Save(session *SessionData) error
	Load(userID, siteID string) (*SessionData, error)
	Delete(userID, siteID string) error
	List() ([]*SessionData, error)
}

// NewStore returns a keyring-backed store, or a file store under dir when
// the OS keyring is unavailable. An empty dir means ~/.marketwatch/sessions.
func NewStore(dir string) (Store, error) {
	if !useFileBasedStorage() {
		return NewKeyringStore(KeyringService), nil
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, FallbackDir)
	}
	return NewFileStore(dir)
}

// useFileBasedStorage checks if we should use file-based storage
// This is a fallback for environments where keyring isn't available (containers, CI)
var fileBasedStorageCache *bool

func useFileBasedStorage() bool {
	if fileBasedStorageCache != nil {
		return *fileBasedStorageCache
	}

	if os.Getenv("CODESPACES") != "" || os.Getenv("CI") != "" || os.Getenv("MARKETWATCH_FILE_SESSIONS") != "" {
		result := true
		fileBasedStorageCache = &result
		return true
	}

	result := !keyringAvailable(KeyringService)
	fileBasedStorageCache = &result
	return result
}

func decode(data []byte) (*SessionData, error) {
	var session SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}
	if session.Expired(time.Now()) {
		return &session, ErrSessionExpired
	}
	return &session, nil
}

func validate(session *SessionData) error {
	if session == nil || session.UserID == "" || session.SiteID == "" {
		return fmt.Errorf("session user and site cannot be empty")
	}
	return nil
}

// FileStore keeps one JSON file per session
type FileStore struct {
	Dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.Dir, key+".json")
}

// Save writes the session file with owner-only permissions
func (f *FileStore) Save(session *SessionData) error {
	if err := validate(session); err != nil {
		return err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := os.WriteFile(f.path(session.Key()), data, 0600); err != nil {
		return fmt.Errorf("failed to save session file: %w", err)
	}
	return nil
}

// Load reads the session of a user on a site
func (f *FileStore) Load(userID, siteID string) (*SessionData, error) {
	data, err := os.ReadFile(f.path(Key(userID, siteID)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session file: %w", err)
	}
	return decode(data)
}

// Delete removes the session file. Missing sessions are not an error.
func (f *FileStore) Delete(userID, siteID string) error {
	err := os.Remove(f.path(Key(userID, siteID)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns every stored session, expired ones included
func (f *FileStore) List() ([]*SessionData, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []*SessionData
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.Dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		s, err := decode(data)
		if err != nil && !errors.Is(err, ErrSessionExpired) {
			return nil, fmt.Errorf("%s: %w", strings.TrimSuffix(entry.Name(), ".json"), err)
		}
		sessions = append(sessions, s)
	}
	sortSessions(sessions)
	return sessions, nil
}

func sortSessions(sessions []*SessionData) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Key() < sessions[j].Key()
	})
}
