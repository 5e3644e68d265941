// internal/sites/registry.go
package sites

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownSite is returned when no site is registered under an id
var ErrUnknownSite = errors.New("unknown site")

// Registry maps site identifiers to compiled site configs
type Registry struct {
	mu    sync.RWMutex
	sites map[string]*SiteConfig
}

// NewRegistry compiles and registers the given sites
func NewRegistry(configs ...*SiteConfig) (*Registry, error) {
	r := &Registry{sites: make(map[string]*SiteConfig)}
	for _, s := range configs {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles a site and adds it to the registry
func (r *Registry) Register(s *SiteConfig) error {
	if s == nil {
		return fmt.Errorf("site config is nil")
	}
	if err := s.Compile(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sites[s.ID]; exists {
		return fmt.Errorf("site %s registered twice", s.ID)
	}
	r.sites[s.ID] = s
	return nil
}

// Get returns the site registered under id
func (r *Registry) Get(id string) (*SiteConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sites[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, id)
	}
	return s, nil
}

// IDs returns the registered site ids in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sites))
	for id := range r.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered sites
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sites)
}

// Match finds the site whose domain serves the given URL
func (r *Registry) Match(rawURL string) (*SiteConfig, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, false
	}
	host := strings.ToLower(u.Hostname())

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.idsLocked() {
		s := r.sites[id]
		domain := strings.ToLower(s.Domain)
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return s, true
		}
	}
	return nil, false
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.sites))
	for id := range r.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type sitesFile struct {
	Sites []*SiteConfig `yaml:"sites"`
}

// Parse decodes a YAML sites document into a registry. Unknown keys are
// rejected.
func Parse(data []byte) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f sitesFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode sites: %w", err)
	}
	if len(f.Sites) == 0 {
		return nil, fmt.Errorf("sites file defines no sites")
	}
	return NewRegistry(f.Sites...)
}

// Load reads a YAML sites file from disk
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file: %w", err)
	}
	return Parse(data)
}
