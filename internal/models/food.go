package models

import (
	"time"

	"github.com/google/uuid"
)

type Food struct {
	ID           int64     `json:"id"`
	Owner        uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	ProteinG     float64   `json:"protein"`
	CarbsG       float64   `json:"carbs"`
	FatG         float64   `json:"fat"`
	ServingSizeG *float64  `json:"serving_size,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Snapshot copies the food's per-serving values for embedding in a meal line.
func (f Food) Snapshot() Snapshot {
	s := Snapshot{
		Name:     f.Name,
		ProteinG: f.ProteinG,
		CarbsG:   f.CarbsG,
		FatG:     f.FatG,
	}
	if f.ServingSizeG != nil {
		v := *f.ServingSizeG
		s.ServingSizeG = &v
	}
	return s
}
