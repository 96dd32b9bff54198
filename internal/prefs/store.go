// Package prefs persists per-user display preferences as small JSON files.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// ShowRemainingKey is the preference that flips the dashboard between
// consumed and remaining values.
const ShowRemainingKey = "showRemaining"

type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "macro-tracker-prefs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preferences dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(owner uuid.UUID) string {
	return filepath.Join(s.dir, owner.String()+".json")
}

func (s *Store) load(owner uuid.UUID) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(s.path(owner))
	v.SetConfigType("json")
	v.SetDefault(ShowRemainingKey, false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	return v, nil
}

// ShowRemaining reports the stored toggle, false when never set.
func (s *Store) ShowRemaining(owner uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(owner)
	if err != nil {
		return false, err
	}
	return v.GetBool(ShowRemainingKey), nil
}

func (s *Store) SetShowRemaining(owner uuid.UUID, show bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(owner)
	if err != nil {
		return err
	}
	v.Set(ShowRemainingKey, show)
	if err := v.WriteConfigAs(s.path(owner)); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// ToggleShowRemaining flips the toggle and returns the new value.
func (s *Store) ToggleShowRemaining(owner uuid.UUID) (bool, error) {
	current, err := s.ShowRemaining(owner)
	if err != nil {
		return false, err
	}
	if err := s.SetShowRemaining(owner, !current); err != nil {
		return current, err
	}
	return !current, nil
}
