// internal/auth/pool.go
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/rs/zerolog/log"
)

// Pool defaults
const (
	DefaultMaxFailures = 3
	DefaultBaseBackoff = 5 * time.Minute
	DefaultMaxBackoff  = 2 * time.Hour
)

// PoolOptions tunes checkpoint backoff and retirement
type PoolOptions struct {
	MaxFailures int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Health is the tracked state of one pooled session
type Health struct {
	SessionID    string          `json:"session_id"`
	UserID       string          `json:"user_id"`
	SiteID       string          `json:"site"`
	Failures     int             `json:"failures"`
	BackoffUntil time.Time       `json:"backoff_until,omitempty"`
	Retired      bool            `json:"retired"`
	RetiredAt    time.Time       `json:"retired_at,omitempty"`
	LastResult   models.PageType `json:"last_result,omitempty"`
	LastUsed     time.Time       `json:"last_used,omitempty"`
}

// Session is a pooled session handed to one scrape
type Session struct {
	ID   string
	Data *SessionData
}

type entry struct {
	health Health
}

// Pool tracks the health of stored sessions per (user, site). Session
// material lives in the Store; the pool only decides whether it may be used.
type Pool struct {
	store Store
	opts  PoolOptions

	mu    sync.Mutex
	byKey map[string]*entry
	byID  map[string]*entry

	now func() time.Time
}

// NewPool creates a pool over store
func NewPool(store Store, opts PoolOptions) *Pool {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultBaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	return &Pool{
		store: store,
		opts:  opts,
		byKey: make(map[string]*entry),
		byID:  make(map[string]*entry),
		now:   time.Now,
	}
}

// Store returns the underlying session store
func (p *Pool) Store() Store {
	return p.store
}

// Checkout returns the stored session of a user on a site when it is
// healthy: present, not expired, not retired and not backing off. Material
// saved after a retirement, by another process included, starts a new entry.
func (p *Pool) Checkout(userID, siteID string) (*Session, bool) {
	key := Key(userID, siteID)
	now := p.now()

	p.mu.Lock()
	if e, ok := p.byKey[key]; ok && !e.health.Retired && now.Before(e.health.BackoffUntil) {
		p.mu.Unlock()
		return nil, false
	}
	p.mu.Unlock()

	data, err := p.store.Load(userID, siteID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return nil, false
	case errors.Is(err, ErrSessionExpired):
		log.Info().Str("site", siteID).Str("user", userID).Msg("Stored session expired, discarding")
		_ = p.store.Delete(userID, siteID)
		return nil, false
	case err != nil:
		log.Warn().Err(err).Str("site", siteID).Str("user", userID).Msg("Failed to load session")
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byKey[key]
	switch {
	case !ok:
		e = p.register(userID, siteID)
	case e.health.Retired && savedAt(data).After(e.health.RetiredAt):
		log.Info().Str("site", siteID).Str("user", userID).Msg("Replacement session found, tracking it")
		e = p.register(userID, siteID)
	}
	if e.health.Retired || now.Before(e.health.BackoffUntil) {
		return nil, false
	}
	e.health.LastUsed = now
	return &Session{ID: e.health.SessionID, Data: data}, true
}

// savedAt is when session material was last written
func savedAt(d *SessionData) time.Time {
	if d.UpdatedAt.After(d.CreatedAt) {
		return d.UpdatedAt
	}
	return d.CreatedAt
}

// register creates a fresh entry. Callers hold p.mu.
func (p *Pool) register(userID, siteID string) *entry {
	if old, ok := p.byKey[Key(userID, siteID)]; ok {
		delete(p.byID, old.health.SessionID)
	}
	e := &entry{health: Health{
		SessionID: uuid.NewString(),
		UserID:    userID,
		SiteID:    siteID,
	}}
	p.byKey[Key(userID, siteID)] = e
	p.byID[e.health.SessionID] = e
	return e
}

// Add stores new session material (fresh login or import) and starts a
// new healthy entry for it
func (p *Pool) Add(data *SessionData) (*Session, error) {
	now := p.now()
	if data.CreatedAt.IsZero() {
		data.CreatedAt = now
	}
	data.UpdatedAt = now
	if err := p.store.Save(data); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.register(data.UserID, data.SiteID)
	e.health.LastUsed = now
	return &Session{ID: e.health.SessionID, Data: data}, nil
}

// ReportResult records the page type a session produced. LOGIN_REQUIRED
// retires the session; CHECKPOINT backs it off exponentially and retires it
// after MaxFailures; CONTENT and NO_RESULTS mark it healthy.
func (p *Pool) ReportResult(sessionID string, pageType models.PageType) {
	if sessionID == "" {
		return
	}

	p.mu.Lock()
	e, ok := p.byID[sessionID]
	if !ok {
		p.mu.Unlock()
		return
	}
	h := &e.health
	h.LastResult = pageType

	retire := false
	switch pageType {
	case models.PageLoginRequired:
		retire = true
	case models.PageCheckpoint:
		h.Failures++
		if h.Failures >= p.opts.MaxFailures {
			retire = true
		} else {
			h.BackoffUntil = p.now().Add(p.backoff(h.Failures))
		}
	case models.PageContent, models.PageNoResults:
		h.Failures = 0
		h.BackoffUntil = time.Time{}
	}
	if retire {
		h.Retired = true
		h.RetiredAt = p.now()
	}
	snapshot := *h
	p.mu.Unlock()

	logger := log.With().
		Str("session", sessionID).
		Str("site", snapshot.SiteID).
		Str("page_type", string(pageType)).
		Logger()

	switch {
	case retire:
		logger.Warn().Int("failures", snapshot.Failures).Msg("Retiring session")
		if err := p.store.Delete(snapshot.UserID, snapshot.SiteID); err != nil {
			logger.Warn().Err(err).Msg("Failed to delete retired session")
		}
	case !snapshot.BackoffUntil.IsZero():
		logger.Info().Time("until", snapshot.BackoffUntil).Int("failures", snapshot.Failures).Msg("Session backing off")
	}
}

func (p *Pool) backoff(failures int) time.Duration {
	d := p.opts.BaseBackoff
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= p.opts.MaxBackoff {
			return p.opts.MaxBackoff
		}
	}
	return d
}

// Update persists refreshed cookies of a pooled session
func (p *Pool) Update(sessionID string, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	p.mu.Lock()
	e, ok := p.byID[sessionID]
	var h Health
	if ok {
		h = e.health
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	if h.Retired {
		return nil
	}

	data, err := p.store.Load(h.UserID, h.SiteID)
	if err != nil && !errors.Is(err, ErrSessionExpired) {
		return err
	}
	data.SetCookies(cookies)
	data.UpdatedAt = p.now()
	return p.store.Save(data)
}

// Health returns the tracked state of a session
func (p *Pool) Health(sessionID string) (Health, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byID[sessionID]
	if !ok {
		return Health{}, false
	}
	return e.health, true
}

// Snapshot returns the state of every tracked session
func (p *Pool) Snapshot() []Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Health, 0, len(p.byID))
	for _, e := range p.byID {
		out = append(out, e.health)
	}
	return out
}
