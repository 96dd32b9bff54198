// Package dashboard turns a day's totals and the user's goals into the view
// shown by the HTTP API and the bot.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"strings"

	"macro-tracker/internal/models"
	"macro-tracker/internal/session"
	"macro-tracker/internal/settings"
	"macro-tracker/pkg/logger"
)

type Progress struct {
	Current   float64 `json:"current"`
	Goal      float64 `json:"goal"`
	Remaining float64 `json:"remaining"`
	Percent   float64 `json:"percent"`
	Over      bool    `json:"over"`
}

func progress(current float64, goal int) Progress {
	p := Progress{Current: current, Goal: float64(goal), Remaining: float64(goal) - current}
	if goal > 0 {
		p.Percent = math.Min(current/float64(goal)*100, 100)
	}
	p.Over = p.Remaining < 0
	return p
}

type View struct {
	Day           models.DayKey `json:"day"`
	Calories      Progress      `json:"calories"`
	Protein       Progress      `json:"protein"`
	Carbs         Progress      `json:"carbs"`
	Fat           Progress      `json:"fat"`
	ShowRemaining bool          `json:"show_remaining"`
	BulkCutDay    int           `json:"bulk_cut_day,omitempty"`
	// FetchError is set when totals could not be loaded; the values are zero.
	FetchError string `json:"fetch_error,omitempty"`
}

type Dashboard struct {
	s   *session.Session
	log *logger.Logger
}

func New(s *session.Session, log *logger.Logger) *Dashboard {
	return &Dashboard{s: s, log: log}
}

// Day builds the view for day and warms the neighbouring days.
func (d *Dashboard) Day(ctx context.Context, day models.DayKey, refresh bool) View {
	view := View{Day: day}

	total, err := d.s.Totals.Get(ctx, day, refresh)
	if err != nil {
		d.log.Warnw("Loading daily totals failed", "day", day, "error", err)
		view.FetchError = "could not load totals"
	}
	d.s.Totals.Prefetch(day)

	goals := d.s.Settings.Current()
	if goals.ID == 0 {
		if fetched, err := d.s.Settings.Fetch(ctx); err != nil {
			d.log.Warnw("Loading settings failed", "error", err)
		} else {
			goals = fetched
		}
	}

	view.Calories = progress(total.Calories, goals.CalorieGoal)
	view.Protein = progress(total.ProteinG, goals.ProteinGoal)
	view.Carbs = progress(total.CarbsG, goals.CarbGoal)
	view.Fat = progress(total.FatG, goals.FatGoal)

	if n, ok := settings.BulkCutDay(goals, day); ok {
		view.BulkCutDay = n
	}

	if d.s.Prefs != nil {
		show, err := d.s.Prefs.ShowRemaining(d.s.User.ID)
		if err != nil {
			d.log.Warnw("Loading preferences failed", "error", err)
		}
		view.ShowRemaining = show
	}
	return view
}

// Text renders the view for chat front-ends.
func (v View) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s", v.Day)
	if v.BulkCutDay > 0 {
		fmt.Fprintf(&b, " (day %d)", v.BulkCutDay)
	}
	b.WriteString("\n")
	if v.FetchError != "" {
		b.WriteString("⚠️ " + v.FetchError + "\n")
	}

	line := func(label, unit string, p Progress) {
		if v.ShowRemaining {
			fmt.Fprintf(&b, "%s: %.0f%s left", label, p.Remaining, unit)
		} else {
			fmt.Fprintf(&b, "%s: %.0f / %.0f%s", label, p.Current, p.Goal, unit)
		}
		if p.Over {
			b.WriteString(" ‼️")
		}
		b.WriteString("\n")
	}
	line("Calories", " kcal", v.Calories)
	line("Protein", "g", v.Protein)
	line("Carbs", "g", v.Carbs)
	line("Fat", "g", v.Fat)
	return b.String()
}
