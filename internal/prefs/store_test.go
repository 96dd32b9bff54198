package prefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestShowRemainingDefaultsToFalse(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	show, err := s.ShowRemaining(uuid.New())
	if err != nil || show {
		t.Fatalf("ShowRemaining = %v, %v; want false, nil", show, err)
	}
}

func TestShowRemainingPersists(t *testing.T) {
	dir := t.TempDir()
	owner := uuid.New()
	s, _ := NewStore(dir)

	if err := s.SetShowRemaining(owner, true); err != nil {
		t.Fatalf("SetShowRemaining: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, owner.String()+".json"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	// viper lowercases keys on write.
	if !strings.Contains(strings.ToLower(string(raw)), strings.ToLower(ShowRemainingKey)) {
		t.Fatalf("file does not contain the preference key: %s", raw)
	}

	reopened, _ := NewStore(dir)
	show, err := reopened.ShowRemaining(owner)
	if err != nil || !show {
		t.Fatalf("ShowRemaining after reopen = %v, %v", show, err)
	}
	if other, _ := reopened.ShowRemaining(uuid.New()); other {
		t.Fatalf("preference leaked to another user")
	}
}

func TestToggleShowRemaining(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	owner := uuid.New()

	for i, want := range []bool{true, false, true} {
		got, err := s.ToggleShowRemaining(owner)
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("toggle %d = %v, want %v", i, got, want)
		}
	}
}
