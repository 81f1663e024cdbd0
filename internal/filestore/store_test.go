package filestore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenCreatesEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "users.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	store.View(func(doc *Document) {
		if doc.Users == nil || doc.RefreshTokens == nil || doc.PasswordResetTokens == nil {
			t.Fatal("expected normalized empty document")
		}
		if len(doc.Users) != 0 {
			t.Fatalf("expected no users, got %d", len(doc.Users))
		}
	})
}

func TestUpdatePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	err = store.Update(func(doc *Document) error {
		doc.Users = append(doc.Users, User{
			ID:        "u1",
			Username:  "alice",
			Email:     "alice@example.com",
			Role:      "user",
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		doc.RefreshTokens["u1"] = append(doc.RefreshTokens["u1"], RefreshToken{
			Token:     "tok",
			UserID:    "u1",
			Expires:   now.Add(time.Hour),
			CreatedAt: now,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.View(func(doc *Document) {
		if len(doc.Users) != 1 || doc.Users[0].Username != "alice" {
			t.Fatalf("expected alice to survive reload, got %+v", doc.Users)
		}
		if len(doc.RefreshTokens["u1"]) != 1 {
			t.Fatalf("expected one refresh token, got %d", len(doc.RefreshTokens["u1"]))
		}
	})
}

func TestUpdateErrorDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = store.Update(func(doc *Document) error {
		doc.Users = append(doc.Users, User{ID: "u1", Username: "alice"})
		return nil
	})
	if err != nil {
		t.Fatalf("initial save: %v", err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read before: %v", err)
	}

	sentinel := errors.New("nope")
	if err := store.Update(func(doc *Document) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("file changed despite failed update")
	}
}

func TestUpdateSeesWritesFromAnotherHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	// The sweep worker opens the file first, the server afterwards; records
	// registered through the server must survive the worker's next sweep.
	sweeper, err := Open(path)
	if err != nil {
		t.Fatalf("open sweeper: %v", err)
	}
	server, err := Open(path)
	if err != nil {
		t.Fatalf("open server: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	err = server.Update(func(doc *Document) error {
		doc.Users = append(doc.Users, User{ID: "u1", Username: "alice", CreatedAt: now, UpdatedAt: now})
		doc.RefreshTokens["u1"] = append(doc.RefreshTokens["u1"], RefreshToken{
			Token:     "live",
			UserID:    "u1",
			Expires:   now.Add(time.Hour),
			CreatedAt: now,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("server update: %v", err)
	}

	err = sweeper.Update(func(doc *Document) error {
		for userID, list := range doc.RefreshTokens {
			kept := list[:0]
			for _, token := range list {
				if token.Expires.After(now) {
					kept = append(kept, token)
				}
			}
			doc.RefreshTokens[userID] = kept
		}
		return nil
	})
	if err != nil {
		t.Fatalf("sweep update: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.View(func(doc *Document) {
		if len(doc.Users) != 1 || doc.Users[0].Username != "alice" {
			t.Fatalf("expected alice to survive the sweep, got %+v", doc.Users)
		}
		if len(doc.RefreshTokens["u1"]) != 1 {
			t.Fatalf("expected the live refresh token to survive, got %+v", doc.RefreshTokens["u1"])
		}
	})
}

func TestNoopUpdateSkipsRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Update(func(doc *Document) error { return nil }); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no file after a no-op update, got %v", err)
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSavedLayoutUsesCamelCaseKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = store.Update(func(doc *Document) error {
		doc.PasswordResetTokens["u1"] = []PasswordResetToken{{
			Token:   "r",
			UserID:  "u1",
			Expires: time.Now().Add(time.Hour),
		}}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, key := range []string{"users", "refreshTokens", "passwordResetTokens"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing top-level key %q", key)
		}
	}
}
