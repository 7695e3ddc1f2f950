package admins

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "admins.txt"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.IsAdmin("anyone") {
		t.Error("empty set should have no admins")
	}
}

func TestAddRemovePersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admins.txt")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	changed, err := s.Add("Alice")
	if err != nil || !changed {
		t.Fatalf("Add() = %v, %v", changed, err)
	}
	if !s.IsAdmin("alice") || !s.IsAdmin("ALICE") {
		t.Error("membership should be case-insensitive")
	}

	// Duplicate add is a no-op.
	changed, err = s.Add("alice")
	if err != nil || changed {
		t.Errorf("duplicate Add() = %v, %v", changed, err)
	}

	// A fresh load sees the persisted member.
	s2, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !s2.IsAdmin("alice") {
		t.Error("persisted admin lost on reload")
	}

	changed, err = s2.Remove("alice")
	if err != nil || !changed {
		t.Fatalf("Remove() = %v, %v", changed, err)
	}
	if s2.IsAdmin("alice") {
		t.Error("removed admin still present")
	}
}

func TestLoad_SkipsCommentsAndBlanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admins.txt")
	body := "# operators\nalice\n\nBob\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !s.IsAdmin("alice") || !s.IsAdmin("bob") {
		t.Errorf("List() = %v", s.List())
	}
	if len(s.List()) != 2 {
		t.Errorf("List() = %v, want 2 members", s.List())
	}
}
