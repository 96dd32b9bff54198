package models

import "time"

// Macros is the aggregate carried by meals, deltas and daily totals.
type Macros struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein"`
	CarbsG   float64 `json:"carbs"`
	FatG     float64 `json:"fat"`
}

func (m Macros) Add(o Macros) Macros {
	return Macros{
		Calories: m.Calories + o.Calories,
		ProteinG: m.ProteinG + o.ProteinG,
		CarbsG:   m.CarbsG + o.CarbsG,
		FatG:     m.FatG + o.FatG,
	}
}

func (m Macros) Neg() Macros {
	return Macros{
		Calories: -m.Calories,
		ProteinG: -m.ProteinG,
		CarbsG:   -m.CarbsG,
		FatG:     -m.FatG,
	}
}

func (m Macros) IsZero() bool {
	return m == Macros{}
}

// DailyTotal is the cached sum of all meals in one day bucket.
type DailyTotal struct {
	Day DayKey `json:"day"`
	Macros
}

const dayLayout = "2006-01-02"

// DayKey identifies a calendar day as YYYY-MM-DD in UTC.
type DayKey string

// DayKeyOf truncates t to its UTC calendar date. Callers building t from a
// local wall clock will bucket differently near midnight.
func DayKeyOf(t time.Time) DayKey {
	return DayKey(t.UTC().Format(dayLayout))
}

func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", err
	}
	return DayKeyOf(t), nil
}

// Start returns 00:00 UTC of the day.
func (d DayKey) Start() time.Time {
	t, err := time.Parse(dayLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Range returns the half-open interval [start, start+24h).
func (d DayKey) Range() (time.Time, time.Time) {
	start := d.Start()
	return start, start.Add(24 * time.Hour)
}

func (d DayKey) AddDays(n int) DayKey {
	return DayKeyOf(d.Start().AddDate(0, 0, n))
}

func (d DayKey) String() string {
	return string(d)
}
