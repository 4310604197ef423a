// Package auth persists the operator's session token between runs.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const tokenFileName = "token.json"

// Session is the on-disk token record.
type Session struct {
	Token    string    `json:"token"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role,omitempty"`
	SavedAt  time.Time `json:"saved_at"`
}

// Store holds the session token for one config directory. It is safe for
// concurrent use; the REST client reads the token on every request while
// login and logout rewrite it.
type Store struct {
	mu      sync.RWMutex
	path    string
	session Session
}

// NewStore loads any existing session from dir. A missing or unreadable
// token file means a logged-out store, never an error.
func NewStore(dir string) *Store {
	s := &Store{path: filepath.Join(dir, tokenFileName)}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return s
	}
	var sess Session
	if json.Unmarshal(data, &sess) == nil {
		s.session = sess
	}
	return s
}

// Token returns the current bearer token, empty when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Token
}

// Current returns a copy of the saved session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Save persists a new session to disk with owner-only permissions.
func (s *Store) Save(token, username, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := Session{
		Token:    token,
		Username: username,
		Role:     role,
		SavedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("auth: create config dir: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("auth: write session: %w", err)
	}
	s.session = sess
	return nil
}

// Clear forgets the session in memory and on disk. Called on logout and
// whenever the server rejects the token.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = Session{}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auth: remove session: %w", err)
	}
	return nil
}
