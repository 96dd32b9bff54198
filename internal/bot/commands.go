package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"macro-tracker/internal/dashboard"
	"macro-tracker/internal/db"
	"macro-tracker/internal/foods"
	"macro-tracker/internal/meals"
	"macro-tracker/internal/models"
	"macro-tracker/internal/session"
	"macro-tracker/internal/settings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `Track meals and see your daily macros.

/today, /prev, /next, /day YYYY-MM-DD - pick a day
/refresh - reload the day's totals
/toggle - switch between consumed and remaining
/meals - meals of the day
/quick <name> <protein> <carbs> <fat> - log macros directly
/eat <food id> <qty> [<food id> <qty> ...] - log foods
/delete <meal id> - delete a meal
/foods - your foods
/addfood <name> <protein> <carbs> <fat> - add a food
/goals [<protein> <carbs> <fat>] - show or set goals
/startcut - start counting bulk/cut days today
/estimate <description> - estimate and log a meal
/signout - forget your session`

var errUsage = errors.New("bad arguments")

// respond runs one command for the Telegram user and returns the reply.
func (t *TelegramBot) respond(ctx context.Context, from *tgbotapi.User, command, args string) string {
	s := t.sessions.Open(models.User{ID: OwnerID(from.ID)})
	args = strings.TrimSpace(args)
	day := t.selectedDay(from.ID)

	switch command {
	case "start", "help":
		return helpText

	case "today":
		return t.showDay(ctx, s, from.ID, models.DayKeyOf(t.now()), false)
	case "prev":
		return t.showDay(ctx, s, from.ID, day.AddDays(-1), false)
	case "next":
		return t.showDay(ctx, s, from.ID, day.AddDays(1), false)
	case "day":
		picked, err := models.ParseDayKey(args)
		if err != nil {
			return "Usage: /day YYYY-MM-DD"
		}
		return t.showDay(ctx, s, from.ID, picked, false)
	case "refresh":
		return t.showDay(ctx, s, from.ID, day, true)

	case "toggle":
		if _, err := s.Prefs.ToggleShowRemaining(s.User.ID); err != nil {
			return t.failure("toggle", err)
		}
		return t.showDay(ctx, s, from.ID, day, false)

	case "meals":
		return t.listMeals(ctx, s, day)

	case "quick":
		name, nums, err := splitNameAndNumbers(args, 3)
		if err != nil {
			return "Usage: /quick <name> <protein> <carbs> <fat>"
		}
		return t.logMeal(ctx, s, day, name, []meals.LineInput{{
			IsQuickMacro: true, Quantity: 1, Name: name,
			ProteinG: nums[0], CarbsG: nums[1], FatG: nums[2],
		}})

	case "eat":
		lines, name, err := t.parseFoodLines(ctx, s, args)
		if errors.Is(err, errUsage) {
			return "Usage: /eat <food id> <qty> [<food id> <qty> ...]"
		} else if err != nil {
			return t.failure("find food", err)
		}
		return t.logMeal(ctx, s, day, name, lines)

	case "delete":
		id, err := strconv.ParseInt(args, 10, 64)
		if err != nil {
			return "Usage: /delete <meal id>"
		}
		if err := s.Meals.Delete(ctx, id); err != nil {
			return t.failure("delete meal", err)
		}
		return fmt.Sprintf("Deleted meal %d.\n\n%s", id, t.dayText(ctx, s, day, false))

	case "foods":
		list, err := s.Foods.Fetch(ctx)
		if err != nil {
			return t.failure("list foods", err)
		}
		if len(list) == 0 {
			return "No foods yet. Add one with /addfood."
		}
		var b strings.Builder
		for _, f := range list {
			fmt.Fprintf(&b, "%d. %s - P %.1f / C %.1f / F %.1f\n", f.ID, f.Name, f.ProteinG, f.CarbsG, f.FatG)
		}
		return b.String()

	case "addfood":
		name, nums, err := splitNameAndNumbers(args, 3)
		if err != nil {
			return "Usage: /addfood <name> <protein> <carbs> <fat>"
		}
		food, err := s.Foods.Add(ctx, foods.FoodInput{Name: name, ProteinG: nums[0], CarbsG: nums[1], FatG: nums[2]})
		if err != nil {
			return t.failure("add food", err)
		}
		return fmt.Sprintf("Added %s as food %d.", food.Name, food.ID)

	case "goals":
		if _, err := s.Settings.Fetch(ctx); err != nil {
			return t.failure("load goals", err)
		}
		if args == "" {
			g := s.Settings.Current()
			return fmt.Sprintf("Goals: %d kcal, P %dg / C %dg / F %dg", g.CalorieGoal, g.ProteinGoal, g.CarbGoal, g.FatGoal)
		}
		fields := strings.Fields(args)
		if len(fields) != 3 {
			return "Usage: /goals <protein> <carbs> <fat>"
		}
		var v [3]int
		for i, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil {
				return "Usage: /goals <protein> <carbs> <fat>"
			}
			v[i] = n
		}
		saved, err := s.Settings.SaveGoals(ctx, v[0], v[1], v[2])
		if err != nil {
			return t.failure("save goals", err)
		}
		return fmt.Sprintf("Goals saved: %d kcal.", saved.CalorieGoal)

	case "startcut":
		if _, err := s.Settings.Fetch(ctx); err != nil {
			return t.failure("load goals", err)
		}
		if _, err := s.Settings.StartBulkCut(ctx); err != nil {
			return t.failure("start bulk/cut", err)
		}
		return "Day 1 starts today."

	case "estimate":
		if t.estimator == nil {
			return "Estimation is not configured."
		}
		if args == "" {
			return "Usage: /estimate <description>"
		}
		est, err := t.estimator.EstimateMacros(ctx, args)
		if err != nil {
			return t.failure("estimate", err)
		}
		return t.logMeal(ctx, s, day, est.Name, []meals.LineInput{est.QuickLine()})

	case "signout":
		t.sessions.Close(s.User.ID)
		t.forget(from.ID)
		return "Signed out."

	default:
		return "Unknown command. Send /help."
	}
}

func (t *TelegramBot) showDay(ctx context.Context, s *session.Session, userID int64, day models.DayKey, refresh bool) string {
	t.selectDay(userID, day)
	return t.dayText(ctx, s, day, refresh)
}

func (t *TelegramBot) dayText(ctx context.Context, s *session.Session, day models.DayKey, refresh bool) string {
	return dashboard.New(s, t.logger).Day(ctx, day, refresh).Text()
}

func (t *TelegramBot) listMeals(ctx context.Context, s *session.Session, day models.DayKey) string {
	list, err := s.Meals.FetchDay(ctx, day)
	if err != nil {
		return t.failure("list meals", err)
	}
	if len(list) == 0 {
		return fmt.Sprintf("No meals on %s.", day)
	}
	var b strings.Builder
	for _, m := range list {
		fmt.Fprintf(&b, "%d. %s %s - %.0f kcal (P %.0f / C %.0f / F %.0f)\n",
			m.ID, m.CreatedAt.Format("15:04"), m.Name, m.Calories, m.ProteinG, m.CarbsG, m.FatG)
		for _, l := range m.Lines {
			fmt.Fprintf(&b, "   %s x%g\n", l.Name, l.Quantity)
		}
	}
	return b.String()
}

func (t *TelegramBot) logMeal(ctx context.Context, s *session.Session, day models.DayKey, name string, lines []meals.LineInput) string {
	meal, err := s.Meals.Create(ctx, meals.MealInput{Name: name, CreatedAt: t.timeOn(day), Lines: lines})
	if err != nil {
		return t.failure("log meal", err)
	}
	return fmt.Sprintf("Logged %s (%.0f kcal).\n\n%s", meal.Name, meal.Calories, t.dayText(ctx, s, day, false))
}

// timeOn is now when day is today and noon of day otherwise.
func (t *TelegramBot) timeOn(day models.DayKey) time.Time {
	now := t.now()
	if models.DayKeyOf(now) == day {
		return now
	}
	return day.Start().Add(12 * time.Hour)
}

func (t *TelegramBot) parseFoodLines(ctx context.Context, s *session.Session, args string) ([]meals.LineInput, string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields)%2 != 0 {
		return nil, "", errUsage
	}

	var names []string
	lines := make([]meals.LineInput, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		id, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return nil, "", errUsage
		}
		qty, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, "", errUsage
		}
		food, err := s.Foods.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		names = append(names, food.Name)
		lines = append(lines, meals.LineInput{FoodID: &food.ID, Quantity: qty})
	}
	return lines, strings.Join(names, ", "), nil
}

func (t *TelegramBot) failure(op string, err error) string {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return "Not found."
	case errors.Is(err, meals.ErrInvalidInput), errors.Is(err, foods.ErrInvalidFood), errors.Is(err, settings.ErrInvalidGoals):
		return "Invalid input: " + err.Error()
	}
	t.logger.Errorw("Bot command failed", "op", op, "error", err)
	return "Something went wrong, please try again later."
}

// splitNameAndNumbers reads "<name words...> n1 .. nk".
func splitNameAndNumbers(args string, k int) (string, []float64, error) {
	fields := strings.Fields(args)
	if len(fields) < k+1 {
		return "", nil, errors.New("not enough arguments")
	}
	nums := make([]float64, k)
	for i, f := range fields[len(fields)-k:] {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return "", nil, err
		}
		nums[i] = n
	}
	return strings.Join(fields[:len(fields)-k], " "), nums, nil
}
