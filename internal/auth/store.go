// Package auth owns the client side of the authenticated session: the
// durable credential store, the tri-state auth state machine, and the local
// listener for the Google OAuth redirect.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	tokenFileName  = "token.json"
	markerFileName = "just_logged_in"
)

// ErrNoCredential is returned when an operation needs a stored credential
// and none exists.
var ErrNoCredential = errors.New("no stored credential")

// storedToken is the on-disk shape of the credential file.
type storedToken struct {
	AccessToken string `json:"access_token"`
}

// Store keeps exactly one opaque bearer credential on disk so it survives
// restarts, plus the one-shot "just logged in" marker set after the OAuth
// redirect. Store is the credential's sole writer; readers go through the
// api.Transport at request-send time.
type Store struct {
	mu         sync.Mutex
	tokenFile  string
	markerFile string
	token      string
	loaded     bool
}

// NewStore opens the store under the user's state directory (~/.whiz).
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewStoreAt(filepath.Join(home, ".whiz")), nil
}

// NewStoreAt opens the store under an explicit directory.
func NewStoreAt(dir string) *Store {
	return &Store{
		tokenFile:  filepath.Join(dir, tokenFileName),
		markerFile: filepath.Join(dir, markerFileName),
	}
}

// Token returns the stored credential, if any.
func (s *Store) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.load()
	}
	return s.token, s.token != ""
}

// SetToken overwrites the credential, in memory and on disk.
func (s *Store) SetToken(token string) error {
	if token == "" {
		return fmt.Errorf("refusing to store an empty credential")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(storedToken{AccessToken: token})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.tokenFile), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(s.tokenFile, data, 0o600); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	s.token = token
	s.loaded = true
	return nil
}

// Clear removes the credential. Missing files are not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.loaded = true
	if err := os.Remove(s.tokenFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// load reads the token file into memory. Caller holds the lock.
func (s *Store) load() {
	s.loaded = true
	data, err := os.ReadFile(s.tokenFile)
	if err != nil {
		return
	}
	var tok storedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return
	}
	s.token = tok.AccessToken
}

// SetLoginMarker records that an OAuth login just completed. The marker is
// one-shot: the next ConsumeLoginMarker call clears it.
func (s *Store) SetLoginMarker() error {
	if err := os.MkdirAll(filepath.Dir(s.markerFile), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.markerFile, []byte("1"), 0o600)
}

// ConsumeLoginMarker reports whether the marker was set, clearing it.
func (s *Store) ConsumeLoginMarker() bool {
	if _, err := os.Stat(s.markerFile); err != nil {
		return false
	}
	os.Remove(s.markerFile)
	return true
}
