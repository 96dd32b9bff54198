package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type Meal struct {
	ID        int64     `json:"id"`
	Owner     uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Macros
	Lines []MealLine `json:"foods,omitempty"`
}

// Day is the cache bucket the meal belongs to.
func (m Meal) Day() DayKey {
	return DayKeyOf(m.CreatedAt)
}

// Snapshot holds the macro values of a line as they were when it was written.
// It is a value, never a reference to the source Food.
type Snapshot struct {
	Name         string   `json:"name"`
	ProteinG     float64  `json:"protein"`
	CarbsG       float64  `json:"carbs"`
	FatG         float64  `json:"fat"`
	ServingSizeG *float64 `json:"serving_size,omitempty"`
}

type MealLine struct {
	ID           int64   `json:"id"`
	MealID       int64   `json:"meal_id"`
	FoodID       *int64  `json:"food_id"`
	Quantity     float64 `json:"quantity"`
	IsQuickMacro bool    `json:"is_quick_macro"`
	Snapshot
}

// MacrosForLines sums snapshot x quantity over the lines. Grams are rounded
// to whole numbers and calories are derived from the unrounded sums.
func MacrosForLines(lines []MealLine) Macros {
	var protein, carbs, fat float64
	for _, l := range lines {
		protein += l.ProteinG * l.Quantity
		carbs += l.CarbsG * l.Quantity
		fat += l.FatG * l.Quantity
	}
	return Macros{
		Calories: math.Round(protein*4 + carbs*4 + fat*9),
		ProteinG: math.Round(protein),
		CarbsG:   math.Round(carbs),
		FatG:     math.Round(fat),
	}
}
