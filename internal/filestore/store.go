// Package filestore implements the flat-file storage backend: a single JSON
// document holding every user plus the refresh and password-reset token maps.
// All mutations rewrite the whole document. A store-level mutex serializes
// access, so within one process token-state transitions are atomic. Update
// re-reads the file before mutating, so a second process sharing the file
// (the sweep worker) never writes back a stale snapshot; only writes racing
// in flight across processes remain last-write-wins.
package filestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// User is the persisted shape of a user record.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash"`
	Role         string     `json:"role"`
	Active       bool       `json:"active"`
	Verified     bool       `json:"verified"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// RefreshToken is the persisted shape of a refresh token record.
type RefreshToken struct {
	Token       string    `json:"token"`
	UserID      string    `json:"userId"`
	Expires     time.Time `json:"expires"`
	Revoked     bool      `json:"revoked"`
	CreatedByIP string    `json:"createdByIp,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PasswordResetToken is the persisted shape of a password-reset token record.
type PasswordResetToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Expires   time.Time `json:"expires"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"createdAt"`
}

// Document is the full on-disk layout. Token maps are keyed by user ID.
type Document struct {
	Users               []User                          `json:"users"`
	RefreshTokens       map[string][]RefreshToken       `json:"refreshTokens"`
	PasswordResetTokens map[string][]PasswordResetToken `json:"passwordResetTokens"`
}

// Store owns the document and its backing file.
type Store struct {
	mu   sync.Mutex
	path string
	doc  Document
}

// Open loads the document at path, creating the parent directory and an empty
// document when the file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("filestore: create dir: %w", err)
		}
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// reload replaces the in-memory document with the file's current contents.
// Callers must hold the mutex (or own the store exclusively, as Open does).
func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.doc = Document{}
	case err != nil:
		return fmt.Errorf("filestore: read: %w", err)
	default:
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("filestore: parse %s: %w", s.path, err)
		}
		s.doc = doc
	}

	s.normalize()
	return nil
}

func (s *Store) normalize() {
	if s.doc.Users == nil {
		s.doc.Users = []User{}
	}
	if s.doc.RefreshTokens == nil {
		s.doc.RefreshTokens = map[string][]RefreshToken{}
	}
	if s.doc.PasswordResetTokens == nil {
		s.doc.PasswordResetTokens = map[string][]PasswordResetToken{}
	}
}

// View runs fn with read access to the document. fn must not retain
// references to document slices or maps past its return.
func (s *Store) View(fn func(doc *Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.doc)
}

// Update runs fn with write access and persists the whole document when fn
// succeeds. The document is re-read from disk first so fn always works on the
// file's current contents, and the rewrite is skipped when fn changed nothing;
// a sweep that finds no expired tokens must not clobber another process's
// writes with a stale snapshot. fn must leave the document unchanged when it
// returns an error.
func (s *Store) Update(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(); err != nil {
		return err
	}
	before, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}

	if err := fn(&s.doc); err != nil {
		return err
	}

	after, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}
	if bytes.Equal(before, after) {
		return nil
	}

	if err := s.save(); err != nil {
		return fmt.Errorf("filestore: save: %w", err)
	}
	return nil
}

// save writes the document via a temp file and rename so readers never see a
// partially written file.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".users-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
