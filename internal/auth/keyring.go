// internal/auth/keyring.go
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

const manifestKey = "_manifest"

// KeyringStore keeps sessions in the OS keyring (encrypted by the OS). The
// keyring cannot be enumerated, so a manifest entry tracks stored keys.
type KeyringStore struct {
	Service string

	mu sync.Mutex
}

// NewKeyringStore returns a store writing under the given keyring service
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{Service: service}
}

func keyringAvailable(service string) bool {
	testKey := "_test_keyring_access_"
	if err := keyring.Set(service, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(service, testKey)
	return true
}

// Save stores the session and records it in the manifest
func (k *KeyringStore) Save(session *SessionData) error {
	if err := validate(session); err != nil {
		return err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(k.Service, session.Key(), string(data)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return k.updateManifest(session.Key(), true)
}

// Load reads the session of a user on a site
func (k *KeyringStore) Load(userID, siteID string) (*SessionData, error) {
	data, err := keyring.Get(k.Service, Key(userID, siteID))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load from keyring: %w", err)
	}
	return decode([]byte(data))
}

// Delete removes the session and its manifest entry
func (k *KeyringStore) Delete(userID, siteID string) error {
	key := Key(userID, siteID)

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Delete(k.Service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return k.updateManifest(key, false)
}

// List loads every session named in the manifest
func (k *KeyringStore) List() ([]*SessionData, error) {
	k.mu.Lock()
	keys, err := k.manifest()
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var sessions []*SessionData
	for _, key := range keys {
		data, err := keyring.Get(k.Service, key)
		if err != nil {
			// stale manifest entry
			continue
		}
		s, err := decode([]byte(data))
		if err != nil && !errors.Is(err, ErrSessionExpired) {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		sessions = append(sessions, s)
	}
	sortSessions(sessions)
	return sessions, nil
}

func (k *KeyringStore) manifest() ([]string, error) {
	data, err := keyring.Get(k.Service, manifestKey)
	if err != nil {
		// No manifest exists yet
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, fmt.Errorf("failed to deserialize manifest: %w", err)
	}
	return keys, nil
}

// updateManifest adds or removes a key from the manifest. Callers hold k.mu.
func (k *KeyringStore) updateManifest(key string, add bool) error {
	keys, err := k.manifest()
	if err != nil {
		return err
	}

	out := keys[:0]
	for _, existing := range keys {
		if existing != key {
			out = append(out, existing)
		}
	}
	if add {
		out = append(out, key)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return keyring.Set(k.Service, manifestKey, string(data))
}
