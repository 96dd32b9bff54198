package session

import (
	"context"
	"testing"
	"time"

	"macro-tracker/internal/db"
	"macro-tracker/internal/meals"
	"macro-tracker/internal/models"
	"macro-tracker/internal/prefs"
	"macro-tracker/internal/totals"
	"macro-tracker/pkg/logger"

	"github.com/google/uuid"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	p, err := prefs.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	m := NewManager(db.NewMemoryStore(), p, logger.NewNop(), totals.DefaultOptions())
	t.Cleanup(m.CloseAll)
	return m
}

func TestOpenReturnsSameSession(t *testing.T) {
	m := newManager(t)
	user := models.User{ID: uuid.New()}

	if m.Open(user) != m.Open(user) {
		t.Fatalf("Open created a second session for the same user")
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}
}

func TestSessionsDoNotShareTotals(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	day := models.DayKeyOf(time.Now())
	alice := m.Open(models.User{ID: uuid.New()})
	bob := m.Open(models.User{ID: uuid.New()})

	_, err := alice.Meals.Create(ctx, meals.MealInput{
		Name:  "toast",
		Lines: []meals.LineInput{{IsQuickMacro: true, Quantity: 1, Name: "toast", CarbsG: 30}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := bob.Totals.Get(ctx, day, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("bob sees alice's totals: %+v", got.Macros)
	}
	if a, ok := alice.Totals.Peek(day); !ok || a.CarbsG != 30 {
		t.Fatalf("alice totals = %+v, %v", a, ok)
	}
}

func TestCloseDropsCache(t *testing.T) {
	m := newManager(t)
	user := models.User{ID: uuid.New()}
	s := m.Open(user)
	s.Totals.ApplyDelta("2024-01-01", models.Macros{Calories: 100})

	if !m.Close(user.ID) {
		t.Fatalf("Close reported no session")
	}
	if _, ok := s.Totals.Peek("2024-01-01"); ok {
		t.Fatalf("closed session kept its cache")
	}
	if m.Close(user.ID) {
		t.Fatalf("second Close reported a session")
	}

	fresh := m.Open(user)
	if fresh == s {
		t.Fatalf("Open after Close reused the old session")
	}
	if len(fresh.Totals.Snapshot()) != 0 {
		t.Fatalf("new session starts with cached totals")
	}
}
