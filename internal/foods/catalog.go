// Package foods is the per-user food catalog. Foods are immutable once
// written; meals copy their values into line snapshots, so removing a food
// never changes a logged meal.
package foods

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"macro-tracker/internal/db"
	"macro-tracker/internal/models"
	"macro-tracker/pkg/logger"

	"github.com/google/uuid"
)

var ErrInvalidFood = errors.New("invalid food")

type FoodInput struct {
	Name         string   `json:"name"`
	ProteinG     float64  `json:"protein"`
	CarbsG       float64  `json:"carbs"`
	FatG         float64  `json:"fat"`
	ServingSizeG *float64 `json:"serving_size,omitempty"`
}

type Catalog struct {
	store db.Store
	owner uuid.UUID
	log   *logger.Logger

	mu   sync.RWMutex
	list []models.Food
}

func NewCatalog(store db.Store, owner uuid.UUID, log *logger.Logger) *Catalog {
	return &Catalog{store: store, owner: owner, log: log.With("owner", owner.String())}
}

// Fetch reloads the catalog from the store, ordered by name.
func (c *Catalog) Fetch(ctx context.Context) ([]models.Food, error) {
	foods, err := c.store.ListFoods(ctx, c.owner)
	if err != nil {
		return nil, fmt.Errorf("fetch foods: %w", err)
	}
	c.mu.Lock()
	c.list = foods
	c.mu.Unlock()
	return copyFoods(foods), nil
}

// List returns the foods as of the last successful Fetch.
func (c *Catalog) List() []models.Food {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyFoods(c.list)
}

func (c *Catalog) Add(ctx context.Context, in FoodInput) (*models.Food, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidFood)
	}
	if in.ProteinG < 0 || in.CarbsG < 0 || in.FatG < 0 {
		return nil, fmt.Errorf("%w: macros must not be negative", ErrInvalidFood)
	}
	if in.ServingSizeG != nil && *in.ServingSizeG <= 0 {
		return nil, fmt.Errorf("%w: serving size must be positive", ErrInvalidFood)
	}

	food := &models.Food{
		Owner:        c.owner,
		Name:         in.Name,
		ProteinG:     in.ProteinG,
		CarbsG:       in.CarbsG,
		FatG:         in.FatG,
		ServingSizeG: in.ServingSizeG,
	}
	if err := c.store.InsertFood(ctx, food); err != nil {
		return nil, fmt.Errorf("add food: %w", err)
	}
	c.log.Infow("Food added", "food_id", food.ID, "name", food.Name)

	if _, err := c.Fetch(ctx); err != nil {
		c.log.Warnw("Refetch after adding food failed", "error", err)
	}
	return food, nil
}

// Remove deletes the food. Meal lines that referenced it keep their snapshot.
func (c *Catalog) Remove(ctx context.Context, id int64) error {
	if err := c.store.DeleteFood(ctx, c.owner, id); err != nil {
		return fmt.Errorf("remove food %d: %w", id, err)
	}
	c.log.Infow("Food removed", "food_id", id)

	if _, err := c.Fetch(ctx); err != nil {
		c.log.Warnw("Refetch after removing food failed", "error", err)
	}
	return nil
}

// Recent returns the n most recently created foods.
func (c *Catalog) Recent(ctx context.Context, n int) ([]models.Food, error) {
	if n <= 0 {
		n = 5
	}
	foods, err := c.store.RecentFoods(ctx, c.owner, n)
	if err != nil {
		return nil, fmt.Errorf("recent foods: %w", err)
	}
	return foods, nil
}

// Get looks a food up in the cached list, falling back to the store.
func (c *Catalog) Get(ctx context.Context, id int64) (*models.Food, error) {
	c.mu.RLock()
	for _, f := range c.list {
		if f.ID == id {
			c.mu.RUnlock()
			return &f, nil
		}
	}
	c.mu.RUnlock()

	food, err := c.store.GetFood(ctx, c.owner, id)
	if err != nil {
		return nil, fmt.Errorf("get food %d: %w", id, err)
	}
	return food, nil
}

func copyFoods(foods []models.Food) []models.Food {
	out := make([]models.Food, len(foods))
	copy(out, foods)
	return out
}
