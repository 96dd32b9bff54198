package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"macro-tracker/internal/db"
	"macro-tracker/internal/models"
	"macro-tracker/pkg/logger"

	"github.com/google/uuid"
)

func TestFetchWithoutRowGivesZeroGoals(t *testing.T) {
	owner := uuid.New()
	s := NewService(db.NewMemoryStore(), owner, logger.NewNop())

	got, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Owner != owner || got.CalorieGoal != 0 || got.BulkCutStartDate != nil {
		t.Fatalf("Fetch = %+v", got)
	}
}

func TestSaveGoalsDerivesCaloriesAndKeepsStartDate(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	owner := uuid.New()
	s := NewService(store, owner, logger.NewNop())
	s.now = func() time.Time { return time.Date(2024, 6, 1, 22, 30, 0, 0, time.UTC) }

	if _, err := s.StartBulkCut(ctx); err != nil {
		t.Fatalf("StartBulkCut: %v", err)
	}
	got, err := s.SaveGoals(ctx, 150, 250, 70)
	if err != nil {
		t.Fatalf("SaveGoals: %v", err)
	}
	if got.CalorieGoal != 2230 {
		t.Fatalf("CalorieGoal = %d, want 2230", got.CalorieGoal)
	}
	if got.BulkCutStartDate == nil || models.DayKeyOf(*got.BulkCutStartDate) != "2024-06-01" {
		t.Fatalf("start date lost: %+v", got.BulkCutStartDate)
	}

	reloaded := NewService(store, owner, logger.NewNop())
	stored, err := reloaded.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if stored.ProteinGoal != 150 || stored.CalorieGoal != 2230 || stored.BulkCutStartDate == nil {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestSaveGoalsRejectsNegative(t *testing.T) {
	s := NewService(db.NewMemoryStore(), uuid.New(), logger.NewNop())
	if _, err := s.SaveGoals(context.Background(), -1, 0, 0); !errors.Is(err, ErrInvalidGoals) {
		t.Fatalf("err = %v, want ErrInvalidGoals", err)
	}
}

func TestBulkCutDay(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	settings := models.UserSettings{BulkCutStartDate: &start}

	cases := []struct {
		day    models.DayKey
		want   int
		wantOK bool
	}{
		{"2024-06-01", 1, true},
		{"2024-06-02", 2, true},
		{"2024-07-01", 31, true},
		{"2024-05-31", 0, false},
	}
	for _, tc := range cases {
		n, ok := BulkCutDay(settings, tc.day)
		if n != tc.want || ok != tc.wantOK {
			t.Errorf("BulkCutDay(%s) = %d, %v; want %d, %v", tc.day, n, ok, tc.want, tc.wantOK)
		}
	}

	if _, ok := BulkCutDay(models.UserSettings{}, "2024-06-01"); ok {
		t.Fatalf("BulkCutDay without a start date reported ok")
	}
}
