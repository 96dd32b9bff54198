package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"macro-tracker/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist or belongs to another owner.
var ErrNotFound = errors.New("not found")

// RemoteError wraps any failure of the backing store (network, auth, constraint).
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemote reports whether err is a store failure other than a missing row.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// Store is the owner-scoped query surface over the meals, meal_foods, foods
// and user_settings tables. Every read and write is filtered by owner.
type Store interface {
	GetFood(ctx context.Context, owner uuid.UUID, id int64) (*models.Food, error)
	ListFoods(ctx context.Context, owner uuid.UUID) ([]models.Food, error)
	RecentFoods(ctx context.Context, owner uuid.UUID, limit int) ([]models.Food, error)
	InsertFood(ctx context.Context, food *models.Food) error
	DeleteFood(ctx context.Context, owner uuid.UUID, id int64) error

	GetMeal(ctx context.Context, owner uuid.UUID, id int64) (*models.Meal, error)
	// ListMeals returns meals with from <= created_at < to, newest first, without lines.
	ListMeals(ctx context.Context, owner uuid.UUID, from, to time.Time) ([]models.Meal, error)
	InsertMeal(ctx context.Context, meal *models.Meal) error
	UpdateMeal(ctx context.Context, meal *models.Meal) error
	DeleteMeal(ctx context.Context, owner uuid.UUID, id int64) error

	ListMealLines(ctx context.Context, owner uuid.UUID, mealID int64) ([]models.MealLine, error)
	InsertMealLine(ctx context.Context, owner uuid.UUID, line *models.MealLine) error
	DeleteMealLines(ctx context.Context, owner uuid.UUID, mealID int64) error

	GetSettings(ctx context.Context, owner uuid.UUID) (*models.UserSettings, error)
	UpsertSettings(ctx context.Context, settings *models.UserSettings) error
}

// Transactor is implemented by stores that can run several writes atomically.
// fn receives a Store bound to the transaction; returning an error rolls back.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Store) error) error
}
