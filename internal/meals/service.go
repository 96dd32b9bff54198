package meals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"macro-tracker/internal/db"
	"macro-tracker/internal/models"
	"macro-tracker/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidInput marks a request rejected before anything was written.
var ErrInvalidInput = errors.New("invalid meal input")

// PartialWriteError is returned when a multi-step write failed and undoing the
// steps already taken failed too. The meal may be persisted without its lines.
type PartialWriteError struct {
	Op      string
	MealID  int64
	Err     error
	UndoErr error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s meal %d partially written: %v (undo failed: %v)", e.Op, e.MealID, e.Err, e.UndoErr)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// DeltaApplier receives the macro change of every successful write. The days a
// write touches are held with BeginWrite from before the store write until
// after its deltas are applied.
type DeltaApplier interface {
	BeginWrite(days ...models.DayKey)
	ApplyDelta(day models.DayKey, delta models.Macros)
	EndWrite(days ...models.DayKey)
}

// LineInput describes one line of a meal. Either FoodID is set, or the line is
// a quick macro carrying its own values.
type LineInput struct {
	FoodID       *int64   `json:"food_id"`
	Quantity     float64  `json:"quantity"`
	IsQuickMacro bool     `json:"is_quick_macro"`
	Name         string   `json:"name,omitempty"`
	ProteinG     float64  `json:"protein,omitempty"`
	CarbsG       float64  `json:"carbs,omitempty"`
	FatG         float64  `json:"fat,omitempty"`
	ServingSizeG *float64 `json:"serving_size,omitempty"`
}

type MealInput struct {
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
	Lines     []LineInput `json:"foods"`
}

// RangeReader is the lines-free range query the totals cache is filled from.
type RangeReader struct {
	store db.Store
	owner uuid.UUID
}

func NewRangeReader(store db.Store, owner uuid.UUID) *RangeReader {
	return &RangeReader{store: store, owner: owner}
}

func (r *RangeReader) MealsBetween(ctx context.Context, from, to time.Time) ([]models.Meal, error) {
	return r.store.ListMeals(ctx, r.owner, from, to)
}

type Service struct {
	store  db.Store
	owner  uuid.UUID
	totals DeltaApplier
	log    *logger.Logger
	now    func() time.Time
}

func NewService(store db.Store, owner uuid.UUID, totals DeltaApplier, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		owner:  owner,
		totals: totals,
		log:    log.With("owner", owner.String()),
		now:    time.Now,
	}
}

// Create writes the meal and its lines and then pushes +macros to the totals
// of the meal's day.
func (s *Service) Create(ctx context.Context, in MealInput) (*models.Meal, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}

	meal := &models.Meal{Owner: s.owner, Name: in.Name, CreatedAt: in.CreatedAt}
	var lines []models.MealLine

	write := func(st db.Store) error {
		var err error
		lines, err = s.resolveLines(ctx, st, in.Lines)
		if err != nil {
			return err
		}
		meal.Macros = models.MacrosForLines(lines)

		if err := st.InsertMeal(ctx, meal); err != nil {
			return err
		}
		return s.insertLines(ctx, st, meal.ID, lines)
	}
	undo := func(st db.Store) error {
		if meal.ID == 0 {
			return nil
		}
		if err := st.DeleteMealLines(ctx, s.owner, meal.ID); err != nil {
			return err
		}
		return st.DeleteMeal(ctx, s.owner, meal.ID)
	}

	apply := func() {
		s.totals.ApplyDelta(meal.Day(), meal.Macros)
	}
	if err := s.run(ctx, "create", []models.DayKey{meal.Day()}, func() int64 { return meal.ID }, write, undo, apply); err != nil {
		return nil, fmt.Errorf("create meal: %w", err)
	}

	meal.Lines = lines
	s.log.Infow("Meal created", "meal_id", meal.ID, "day", meal.Day(), "calories", meal.Calories)
	return meal, nil
}

// Update replaces the meal's scalars and lines. The old macros are always
// subtracted from the old day and the new ones added to the new day, whether
// or not the day changed.
func (s *Service) Update(ctx context.Context, id int64, in MealInput) (*models.Meal, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}

	old, err := s.store.GetMeal(ctx, s.owner, id)
	if err != nil {
		return nil, fmt.Errorf("update meal %d: %w", id, err)
	}
	oldLines, err := s.store.ListMealLines(ctx, s.owner, id)
	if err != nil {
		return nil, fmt.Errorf("update meal %d: %w", id, err)
	}

	updated := &models.Meal{ID: id, Owner: s.owner, Name: in.Name, CreatedAt: in.CreatedAt}
	var lines []models.MealLine
	var touched bool

	write := func(st db.Store) error {
		var err error
		lines, err = s.resolveLines(ctx, st, in.Lines)
		if err != nil {
			return err
		}
		updated.Macros = models.MacrosForLines(lines)

		touched = true
		if err := st.DeleteMealLines(ctx, s.owner, id); err != nil {
			return err
		}
		if err := st.UpdateMeal(ctx, updated); err != nil {
			return err
		}
		return s.insertLines(ctx, st, id, lines)
	}
	undo := func(st db.Store) error {
		if !touched {
			return nil
		}
		if err := st.DeleteMealLines(ctx, s.owner, id); err != nil {
			return err
		}
		if err := st.UpdateMeal(ctx, old); err != nil {
			return err
		}
		return s.insertLines(ctx, st, id, oldLines)
	}

	apply := func() {
		s.totals.ApplyDelta(old.Day(), old.Macros.Neg())
		s.totals.ApplyDelta(updated.Day(), updated.Macros)
	}
	days := []models.DayKey{old.Day()}
	if updated.Day() != old.Day() {
		days = append(days, updated.Day())
	}
	if err := s.run(ctx, "update", days, func() int64 { return id }, write, undo, apply); err != nil {
		return nil, fmt.Errorf("update meal %d: %w", id, err)
	}

	updated.Lines = lines
	s.log.Infow("Meal updated", "meal_id", id, "old_day", old.Day(), "new_day", updated.Day())
	return updated, nil
}

// Delete removes the meal's lines, then the meal, then pushes -macros.
func (s *Service) Delete(ctx context.Context, id int64) error {
	old, err := s.store.GetMeal(ctx, s.owner, id)
	if err != nil {
		return fmt.Errorf("delete meal %d: %w", id, err)
	}
	oldLines, err := s.store.ListMealLines(ctx, s.owner, id)
	if err != nil {
		return fmt.Errorf("delete meal %d: %w", id, err)
	}

	write := func(st db.Store) error {
		if err := st.DeleteMealLines(ctx, s.owner, id); err != nil {
			return err
		}
		return st.DeleteMeal(ctx, s.owner, id)
	}
	undo := func(st db.Store) error {
		// DeleteMeal is the last step, so the row is still there.
		return s.insertLines(ctx, st, id, oldLines)
	}

	apply := func() {
		s.totals.ApplyDelta(old.Day(), old.Macros.Neg())
	}
	if err := s.run(ctx, "delete", []models.DayKey{old.Day()}, func() int64 { return id }, write, undo, apply); err != nil {
		return fmt.Errorf("delete meal %d: %w", id, err)
	}

	s.log.Infow("Meal deleted", "meal_id", id, "day", old.Day())
	return nil
}

// Get loads one meal with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*models.Meal, error) {
	meal, err := s.store.GetMeal(ctx, s.owner, id)
	if err != nil {
		return nil, fmt.Errorf("get meal %d: %w", id, err)
	}
	lines, err := s.store.ListMealLines(ctx, s.owner, id)
	if err != nil {
		return nil, fmt.Errorf("get meal %d lines: %w", id, err)
	}
	meal.Lines = lines
	return meal, nil
}

// FetchRange returns the meals in [from, to), newest first, each with its
// lines. Lines are loaded concurrently.
func (s *Service) FetchRange(ctx context.Context, from, to time.Time) ([]models.Meal, error) {
	meals, err := s.store.ListMeals(ctx, s.owner, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch meals: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range meals {
		g.Go(func() error {
			lines, err := s.store.ListMealLines(gctx, s.owner, meals[i].ID)
			if err != nil {
				return err
			}
			meals[i].Lines = lines
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch meal lines: %w", err)
	}
	return meals, nil
}

// FetchDay is FetchRange over one day bucket.
func (s *Service) FetchDay(ctx context.Context, day models.DayKey) ([]models.Meal, error) {
	from, to := day.Range()
	return s.FetchRange(ctx, from, to)
}

// run executes write atomically when the store supports transactions.
// Otherwise a failed write is followed by undo. days stay held on the totals
// cache from before the write until apply has pushed the deltas of a
// successful write.
func (s *Service) run(ctx context.Context, op string, days []models.DayKey, mealID func() int64, write, undo func(db.Store) error, apply func()) error {
	s.totals.BeginWrite(days...)
	defer s.totals.EndWrite(days...)

	var err error
	if tx, ok := s.store.(db.Transactor); ok {
		err = tx.InTx(ctx, write)
		if err == nil {
			apply()
		}
		return err
	}

	err = write(s.store)
	if err == nil {
		apply()
		return nil
	}
	if undoErr := undo(s.store); undoErr != nil {
		s.log.Errorw("Undo after failed meal write failed", "op", op, "meal_id", mealID(), "error", err, "undo_error", undoErr)
		return &PartialWriteError{Op: op, MealID: mealID(), Err: err, UndoErr: undoErr}
	}
	s.log.Warnw("Meal write failed and was undone", "op", op, "meal_id", mealID(), "error", err)
	return err
}

func (s *Service) resolveLines(ctx context.Context, st db.Store, inputs []LineInput) ([]models.MealLine, error) {
	lines := make([]models.MealLine, 0, len(inputs))
	for _, in := range inputs {
		line := models.MealLine{Quantity: in.Quantity, IsQuickMacro: in.IsQuickMacro}
		if in.IsQuickMacro {
			line.Snapshot = models.Snapshot{
				Name:         in.Name,
				ProteinG:     in.ProteinG,
				CarbsG:       in.CarbsG,
				FatG:         in.FatG,
				ServingSizeG: in.ServingSizeG,
			}
		} else {
			food, err := st.GetFood(ctx, s.owner, *in.FoodID)
			if err != nil {
				return nil, fmt.Errorf("resolve food %d: %w", *in.FoodID, err)
			}
			id := food.ID
			line.FoodID = &id
			line.Snapshot = food.Snapshot()
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *Service) insertLines(ctx context.Context, st db.Store, mealID int64, lines []models.MealLine) error {
	for i := range lines {
		lines[i].ID = 0
		lines[i].MealID = mealID
		if err := st.InsertMealLine(ctx, s.owner, &lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validate(in *MealInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.CreatedAt.IsZero() {
		in.CreatedAt = s.now()
	}
	in.CreatedAt = in.CreatedAt.UTC()

	for i, l := range in.Lines {
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: line %d has quantity %v", ErrInvalidInput, i, l.Quantity)
		}
		if l.IsQuickMacro {
			if strings.TrimSpace(l.Name) == "" {
				return fmt.Errorf("%w: quick macro line %d needs a name", ErrInvalidInput, i)
			}
			if l.ProteinG < 0 || l.CarbsG < 0 || l.FatG < 0 {
				return fmt.Errorf("%w: quick macro line %d has negative macros", ErrInvalidInput, i)
			}
			continue
		}
		if l.FoodID == nil {
			return fmt.Errorf("%w: line %d needs a food_id or is_quick_macro", ErrInvalidInput, i)
		}
	}
	return nil
}
