// Package session owns the per-user service graph. Each signed-in user gets a
// private totals cache; sign-out drops it so nothing leaks to the next user.
package session

import (
	"sync"

	"macro-tracker/internal/db"
	"macro-tracker/internal/foods"
	"macro-tracker/internal/meals"
	"macro-tracker/internal/models"
	"macro-tracker/internal/prefs"
	"macro-tracker/internal/settings"
	"macro-tracker/internal/totals"
	"macro-tracker/pkg/logger"

	"github.com/google/uuid"
)

type Session struct {
	User     models.User
	Foods    *foods.Catalog
	Meals    *meals.Service
	Totals   *totals.Cache
	Settings *settings.Service
	Prefs    *prefs.Store
}

type Manager struct {
	store db.Store
	prefs *prefs.Store
	log   *logger.Logger
	opts  totals.Options

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewManager(store db.Store, prefStore *prefs.Store, log *logger.Logger, opts totals.Options) *Manager {
	return &Manager{
		store:    store,
		prefs:    prefStore,
		log:      log,
		opts:     opts,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Open returns the user's session, creating it on first use.
func (m *Manager) Open(user models.User) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[user.ID]; ok {
		return s
	}

	log := m.log.With("user_id", user.ID.String())
	cache := totals.NewCache(meals.NewRangeReader(m.store, user.ID), log, m.opts)
	s := &Session{
		User:     user,
		Foods:    foods.NewCatalog(m.store, user.ID, log),
		Meals:    meals.NewService(m.store, user.ID, cache, log),
		Totals:   cache,
		Settings: settings.NewService(m.store, user.ID, log),
		Prefs:    m.prefs,
	}
	m.sessions[user.ID] = s
	log.Infow("Session opened")
	return s
}

// Close is sign-out: the user's cache is stopped and forgotten.
func (m *Manager) Close(userID uuid.UUID) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Totals.Close()
	m.log.Infow("Session closed", "user_id", userID.String())
	return true
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := m.sessions
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range open {
		s.Totals.Close()
	}
	m.log.Infow("All sessions closed", "count", len(open))
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
