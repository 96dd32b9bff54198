package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"macro-tracker/internal/db"
	"macro-tracker/internal/models"
	"macro-tracker/internal/prefs"
	"macro-tracker/internal/session"
	"macro-tracker/internal/totals"
	"macro-tracker/pkg/logger"

	"github.com/google/uuid"
)

func TestProgress(t *testing.T) {
	cases := []struct {
		name    string
		current float64
		goal    int
		want    Progress
	}{
		{"half", 75, 150, Progress{Current: 75, Goal: 150, Remaining: 75, Percent: 50}},
		{"capped", 200, 150, Progress{Current: 200, Goal: 150, Remaining: -50, Percent: 100, Over: true}},
		{"no goal", 10, 0, Progress{Current: 10, Remaining: -10, Over: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := progress(tc.current, tc.goal); got != tc.want {
				t.Fatalf("progress = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func newSession(t *testing.T, store db.Store) *session.Session {
	t.Helper()
	p, err := prefs.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	m := session.NewManager(store, p, logger.NewNop(), totals.DefaultOptions())
	t.Cleanup(m.CloseAll)
	return m.Open(models.User{ID: uuid.New()})
}

func TestDayCombinesTotalsGoalsAndPrefs(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	s := newSession(t, store)
	day := models.DayKey("2024-06-03")

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_ = store.UpsertSettings(ctx, &models.UserSettings{
		Owner: s.User.ID, ProteinGoal: 150, CarbGoal: 250, FatGoal: 70, CalorieGoal: 2230, BulkCutStartDate: &start,
	})
	_ = store.InsertMeal(ctx, &models.Meal{
		Owner: s.User.ID, CreatedAt: day.Start().Add(9 * time.Hour),
		Macros: models.Macros{Calories: 800, ProteinG: 60, CarbsG: 80, FatG: 18},
	})
	if err := s.Prefs.SetShowRemaining(s.User.ID, true); err != nil {
		t.Fatalf("SetShowRemaining: %v", err)
	}

	view := New(s, logger.NewNop()).Day(ctx, day, false)
	s.Totals.Wait()

	if view.FetchError != "" {
		t.Fatalf("unexpected fetch error %q", view.FetchError)
	}
	if view.Calories.Remaining != 1430 || view.Protein.Current != 60 {
		t.Fatalf("view = %+v", view)
	}
	if !view.ShowRemaining || view.BulkCutDay != 3 {
		t.Fatalf("ShowRemaining = %v, BulkCutDay = %d", view.ShowRemaining, view.BulkCutDay)
	}
	for _, d := range []models.DayKey{day.AddDays(-1), day.AddDays(1)} {
		if _, ok := s.Totals.Peek(d); !ok {
			t.Fatalf("neighbour %s was not prefetched", d)
		}
	}
	if text := view.Text(); !strings.Contains(text, "Calories: 1430 kcal left") {
		t.Fatalf("Text() = %q", text)
	}
}

type brokenStore struct {
	db.Store
}

func (brokenStore) ListMeals(context.Context, uuid.UUID, time.Time, time.Time) ([]models.Meal, error) {
	return nil, &db.RemoteError{Op: "list meals", Err: errors.New("connection refused")}
}

func TestDayFetchFailureIsQuiet(t *testing.T) {
	s := newSession(t, brokenStore{Store: db.NewMemoryStore()})

	view := New(s, logger.NewNop()).Day(context.Background(), "2024-06-03", false)
	s.Totals.Wait()

	if view.FetchError == "" {
		t.Fatalf("fetch failure not reported")
	}
	if view.Calories.Current != 0 || view.Protein.Current != 0 {
		t.Fatalf("failed fetch produced non-zero totals: %+v", view)
	}
	if _, ok := s.Totals.Peek("2024-06-03"); ok {
		t.Fatalf("failed fetch was cached")
	}
}
