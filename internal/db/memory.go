package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"macro-tracker/internal/models"

	"github.com/google/uuid"
)

type memoryState struct {
	foods    map[int64]models.Food
	meals    map[int64]models.Meal
	lines    map[int64]models.MealLine
	settings map[uuid.UUID]models.UserSettings
	nextID   int64
}

func newMemoryState() memoryState {
	return memoryState{
		foods:    make(map[int64]models.Food),
		meals:    make(map[int64]models.Meal),
		lines:    make(map[int64]models.MealLine),
		settings: make(map[uuid.UUID]models.UserSettings),
	}
}

func (s memoryState) clone() memoryState {
	c := newMemoryState()
	for k, v := range s.foods {
		c.foods[k] = v
	}
	for k, v := range s.meals {
		c.meals[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	c.nextID = s.nextID
	return c
}

// MemoryStore is an in-process Store for tests and local development.
// Transactions are serialized and roll back by restoring a snapshot, so a
// non-transactional write racing an InTx may be lost on rollback.
type MemoryStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state memoryState
	now   func() time.Time
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ Transactor = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState(), now: time.Now}
}

// WithClock overrides the clock used for created_at defaults.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	saved := m.state.clone()
	m.mu.RUnlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.state = saved
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemoryStore) id() int64 {
	m.state.nextID++
	return m.state.nextID
}

func (m *MemoryStore) GetFood(ctx context.Context, owner uuid.UUID, id int64) (*models.Food, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RemoteError{Op: "get food", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.state.foods[id]
	if !ok || f.Owner != owner {
		return nil, fmt.Errorf("get food %d: %w", id, ErrNotFound)
	}
	return &f, nil
}

func (m *MemoryStore) ListFoods(ctx context.Context, owner uuid.UUID) ([]models.Food, error) {
	foods, err := m.ownedFoods(ctx, owner)
	if err != nil {
		return nil, err
	}
	sort.Slice(foods, func(i, j int) bool {
		if c := strings.Compare(foods[i].Name, foods[j].Name); c != 0 {
			return c < 0
		}
		return foods[i].ID < foods[j].ID
	})
	return foods, nil
}

func (m *MemoryStore) RecentFoods(ctx context.Context, owner uuid.UUID, limit int) ([]models.Food, error) {
	foods, err := m.ownedFoods(ctx, owner)
	if err != nil {
		return nil, err
	}
	sort.Slice(foods, func(i, j int) bool {
		if !foods[i].CreatedAt.Equal(foods[j].CreatedAt) {
			return foods[i].CreatedAt.After(foods[j].CreatedAt)
		}
		return foods[i].ID > foods[j].ID
	})
	if limit >= 0 && len(foods) > limit {
		foods = foods[:limit]
	}
	return foods, nil
}

func (m *MemoryStore) ownedFoods(ctx context.Context, owner uuid.UUID) ([]models.Food, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RemoteError{Op: "list foods", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	foods := make([]models.Food, 0)
	for _, f := range m.state.foods {
		if f.Owner == owner {
			foods = append(foods, f)
		}
	}
	return foods, nil
}

func (m *MemoryStore) InsertFood(ctx context.Context, food *models.Food) error {
	if err := ctx.Err(); err != nil {
		return &RemoteError{Op: "insert food", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	food.ID = m.id()
	if food.CreatedAt.IsZero() {
		food.CreatedAt = m.now()
	}
	m.state.foods[food.ID] = *food
	return nil
}

func (m *MemoryStore) DeleteFood(ctx context.Context, owner uuid.UUID, id int64) error {
	if err := ctx.Err(); err != nil {
		return &RemoteError{Op: "delete food", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.state.foods[id]
	if !ok || f.Owner != owner {
		return fmt.Errorf("delete food %d: %w", id, ErrNotFound)
	}
	delete(m.state.foods, id)

	// ON DELETE SET NULL; the snapshot stays untouched.
	for lid, l := range m.state.lines {
		if l.FoodID != nil && *l.FoodID == id {
			l.FoodID = nil
			m.state.lines[lid] = l
		}
	}
	return nil
}

func (m *MemoryStore) GetMeal(ctx context.Context, owner uuid.UUID, id int64) (*models.Meal, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RemoteError{Op: "get meal", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	meal, ok := m.state.meals[id]
	if !ok || meal.Owner != owner {
		return nil, fmt.Errorf("get meal %d: %w", id, ErrNotFound)
	}
	return &meal, nil
}

func (m *MemoryStore) ListMeals(ctx context.Context, owner uuid.UUID, from, to time.Time) ([]models.Meal, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RemoteError{Op: "list meals", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	meals := make([]models.Meal, 0)
	for _, meal := range m.state.meals {
		if meal.Owner != owner || meal.CreatedAt.Before(from) || !meal.CreatedAt.Before(to) {
			continue
		}
		meals = append(meals, meal)
	}
	sort.Slice(meals, func(i, j int) bool {
		if !meals[i].CreatedAt.Equal(meals[j].CreatedAt) {
			return meals[i].CreatedAt.After(meals[j].CreatedAt)
		}
		return meals[i].ID > meals[j].ID
	})
	return meals, nil
}

func (m *MemoryStore) InsertMeal(ctx context.Context, meal *models.Meal) error {
	if err := ctx.Err(); err != nil {
		return &RemoteError{Op: "insert meal", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	meal.ID = m.id()
	if meal.CreatedAt.IsZero() {
		meal.CreatedAt = m.now()
	}
	row := *meal
	row.Lines = nil
	m.state.meals[meal.ID] = row
	return nil
}

func (m *MemoryStore) UpdateMeal(ctx context.Context, meal *models.Meal) error {
	if err := ctx.Err(); err != nil {
		return &RemoteError{Op: "update meal", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.state.meals[meal.ID]
	if !ok || existing.Owner != meal.Owner {
		return fmt.Errorf("update meal %d: %w", meal.ID, ErrNotFound)
	}
	row := *meal
	row.Lines = nil
	m.state.meals[meal.ID] = row
	return nil
}

func (m *MemoryStore) DeleteMeal(ctx context.Context, owner uuid.UUID, id int64) error {
	if err := ctx.Err(); err != nil {
		return &RemoteError{Op: "delete meal", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	meal, ok := m.state.meals[id]
	if !ok || meal.Owner != owner {
		return fmt.Errorf("delete meal %d: %w", id, ErrNotFound)
	}
	delete(m.state.meals, id)
	for lid, l := range m.state.lines {
		if l.MealID == id {
			delete(m.state.lines, lid)
		}
	}
	return nil
}

func (m *MemoryStore) ListMealLines(ctx context.Context, owner uuid.UUID, mealID int64) ([]models.MealLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RemoteError{Op: "list meal lines", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	lines := make([]models.MealLine, 0)
	if meal, ok := m.state.meals[mealID]; !ok || meal.Owner != owner {
		return lines, nil
	}
	for _, l := range m.state.lines {
		if l.MealID == mealID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

func (m *MemoryStore) InsertMealLine(ctx context.Context, owner uuid.UUID, line *models.MealLine) error {
	if err := ctx.Err(); err != nil {
		return &RemoteError{Op: "insert meal line", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if meal, ok := m.state.meals[line.MealID]; !ok || meal.Owner != owner {
		return fmt.Errorf("insert meal line for meal %d: %w", line.MealID, ErrNotFound)
	}
	line.ID = m.id()
	m.state.lines[line.ID] = *line
	return nil
}

func (m *MemoryStore) DeleteMealLines(ctx context.Context, owner uuid.UUID, mealID int64) error {
	if err := ctx.Err(); err != nil {
		return &RemoteError{Op: "delete meal lines", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if meal, ok := m.state.meals[mealID]; !ok || meal.Owner != owner {
		return nil
	}
	for lid, l := range m.state.lines {
		if l.MealID == mealID {
			delete(m.state.lines, lid)
		}
	}
	return nil
}

func (m *MemoryStore) GetSettings(ctx context.Context, owner uuid.UUID) (*models.UserSettings, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RemoteError{Op: "get settings", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.state.settings[owner]
	if !ok {
		return nil, fmt.Errorf("get settings: %w", ErrNotFound)
	}
	return &s, nil
}

func (m *MemoryStore) UpsertSettings(ctx context.Context, settings *models.UserSettings) error {
	if err := ctx.Err(); err != nil {
		return &RemoteError{Op: "upsert settings", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.state.settings[settings.Owner]; ok {
		settings.ID = existing.ID
	} else {
		settings.ID = m.id()
	}
	m.state.settings[settings.Owner] = *settings
	return nil
}
