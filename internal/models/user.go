package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type UserSettings struct {
	ID               int64      `json:"id"`
	Owner            uuid.UUID  `json:"user_id"`
	CalorieGoal      int        `json:"calorie_goal"`
	ProteinGoal      int        `json:"protein_goal"`
	CarbGoal         int        `json:"carb_goal"`
	FatGoal          int        `json:"fat_goal"`
	BulkCutStartDate *time.Time `json:"bulk_cut_start_date"`
}

// GoalCalories is the calorie goal implied by the macro goals. The stored
// CalorieGoal is set from this at edit time only and may drift from it.
func GoalCalories(protein, carbs, fat int) int {
	return protein*4 + carbs*4 + fat*9
}
