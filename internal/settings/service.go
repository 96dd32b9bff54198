package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"macro-tracker/internal/db"
	"macro-tracker/internal/models"
	"macro-tracker/pkg/logger"

	"github.com/google/uuid"
)

var ErrInvalidGoals = errors.New("invalid goals")

// Service holds the goals of one user. A user without a settings row gets
// zero goals until the first save.
type Service struct {
	store db.Store
	owner uuid.UUID
	log   *logger.Logger
	now   func() time.Time

	mu      sync.RWMutex
	current models.UserSettings
}

func NewService(store db.Store, owner uuid.UUID, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		owner:   owner,
		log:     log.With("owner", owner.String()),
		now:     time.Now,
		current: models.UserSettings{Owner: owner},
	}
}

func (s *Service) Fetch(ctx context.Context) (models.UserSettings, error) {
	got, err := s.store.GetSettings(ctx, s.owner)
	if errors.Is(err, db.ErrNotFound) {
		got = &models.UserSettings{Owner: s.owner}
	} else if err != nil {
		return models.UserSettings{}, fmt.Errorf("fetch settings: %w", err)
	}

	s.mu.Lock()
	s.current = *got
	s.mu.Unlock()
	return *got, nil
}

// Current returns the settings as of the last Fetch or save.
func (s *Service) Current() models.UserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SaveGoals stores the macro goals and the calorie goal derived from them.
// The bulk/cut start date is carried over.
func (s *Service) SaveGoals(ctx context.Context, protein, carbs, fat int) (models.UserSettings, error) {
	if protein < 0 || carbs < 0 || fat < 0 {
		return models.UserSettings{}, fmt.Errorf("%w: goals must not be negative", ErrInvalidGoals)
	}

	next := s.Current()
	next.Owner = s.owner
	next.ProteinGoal = protein
	next.CarbGoal = carbs
	next.FatGoal = fat
	next.CalorieGoal = models.GoalCalories(protein, carbs, fat)

	if err := s.save(ctx, &next); err != nil {
		return models.UserSettings{}, fmt.Errorf("save goals: %w", err)
	}
	s.log.Infow("Goals saved", "protein", protein, "carbs", carbs, "fat", fat, "calories", next.CalorieGoal)
	return next, nil
}

// StartBulkCut marks today as day 1 of a bulk or cut.
func (s *Service) StartBulkCut(ctx context.Context) (models.UserSettings, error) {
	next := s.Current()
	next.Owner = s.owner
	start := models.DayKeyOf(s.now()).Start()
	next.BulkCutStartDate = &start

	if err := s.save(ctx, &next); err != nil {
		return models.UserSettings{}, fmt.Errorf("start bulk/cut: %w", err)
	}
	s.log.Infow("Bulk/cut started", "start", start.Format(time.DateOnly))
	return next, nil
}

func (s *Service) save(ctx context.Context, next *models.UserSettings) error {
	if err := s.store.UpsertSettings(ctx, next); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = *next
	s.mu.Unlock()
	return nil
}

// BulkCutDay is the 1-based day number of day within the running bulk/cut.
// ok is false when none was started or day is before the start.
func BulkCutDay(settings models.UserSettings, day models.DayKey) (n int, ok bool) {
	if settings.BulkCutStartDate == nil {
		return 0, false
	}
	start := models.DayKeyOf(*settings.BulkCutStartDate).Start()
	days := int(day.Start().Sub(start).Hours() / 24)
	if days < 0 {
		return 0, false
	}
	return days + 1, true
}
