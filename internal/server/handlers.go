package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"macro-tracker/internal/auth"
	"macro-tracker/internal/dashboard"
	"macro-tracker/internal/db"
	"macro-tracker/internal/foods"
	"macro-tracker/internal/gpt"
	"macro-tracker/internal/meals"
	"macro-tracker/internal/models"
	"macro-tracker/internal/session"
	"macro-tracker/internal/settings"
	"macro-tracker/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type handlers struct {
	sessions  *session.Manager
	estimator Estimator
	log       *logger.Logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps service errors onto HTTP statuses.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var partial *meals.PartialWriteError
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, meals.ErrInvalidInput),
		errors.Is(err, foods.ErrInvalidFood),
		errors.Is(err, settings.ErrInvalidGoals),
		errors.Is(err, gpt.ErrBadEstimate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &partial):
		h.log.Errorw("Partial write", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "meal was only partly saved")
	case db.IsRemote(err):
		h.log.Errorw("Store request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "storage unavailable")
	default:
		h.log.Errorw("Request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	user, err := auth.CurrentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return h.sessions.Open(*user), true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func parseDay(s string) (models.DayKey, error) {
	if s == "" || s == "today" {
		return models.DayKeyOf(time.Now()), nil
	}
	return models.ParseDayKey(s)
}

type dayResponse struct {
	dashboard.View
	Meals []models.Meal `json:"meals"`
}

func (h *handlers) getDay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	day, err := parseDay(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	refresh := r.URL.Query().Get("refresh") == "true"

	view := dashboard.New(s, h.log).Day(r.Context(), day, refresh)
	dayMeals, err := s.Meals.FetchDay(r.Context(), day)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dayResponse{View: view, Meals: dayMeals})
}

// listMeals serves ?from=&to= as inclusive day keys.
func (h *handlers) listMeals(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	from, err := parseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to := from
	if q := r.URL.Query().Get("to"); q != "" {
		if to, err = parseDay(q); err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
	}
	if to < from {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	list, err := s.Meals.FetchRange(r.Context(), from.Start(), to.AddDays(1).Start())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) getMeal(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	meal, err := s.Meals.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meal)
}

func (h *handlers) createMeal(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in meals.MealInput
	if !decode(w, r, &in) {
		return
	}
	meal, err := s.Meals.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, meal)
}

func (h *handlers) updateMeal(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in meals.MealInput
	if !decode(w, r, &in) {
		return
	}
	meal, err := s.Meals.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meal)
}

func (h *handlers) deleteMeal(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.Meals.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listFoods(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	list, err := s.Foods.Fetch(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) recentFoods(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.Foods.Recent(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) createFood(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in foods.FoodInput
	if !decode(w, r, &in) {
		return
	}
	food, err := s.Foods.Add(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, food)
}

func (h *handlers) deleteFood(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.Foods.Remove(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	current, err := s.Settings.Fetch(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

type goalsRequest struct {
	Protein int `json:"protein"`
	Carbs   int `json:"carbs"`
	Fat     int `json:"fat"`
}

func (h *handlers) saveSettings(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req goalsRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.Settings.Fetch(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	saved, err := s.Settings.SaveGoals(r.Context(), req.Protein, req.Carbs, req.Fat)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *handlers) startBulkCut(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := s.Settings.Fetch(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	saved, err := s.Settings.StartBulkCut(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type preferencesBody struct {
	ShowRemaining bool `json:"showRemaining"`
}

func (h *handlers) getPreferences(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	show, err := s.Prefs.ShowRemaining(s.User.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preferencesBody{ShowRemaining: show})
}

func (h *handlers) savePreferences(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body preferencesBody
	if !decode(w, r, &body) {
		return
	}
	if err := s.Prefs.SetShowRemaining(s.User.ID, body.ShowRemaining); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type estimateRequest struct {
	Description string `json:"description"`
	// Log also records the estimate as a quick-macro meal.
	Log       bool      `json:"log"`
	CreatedAt time.Time `json:"created_at"`
}

type estimateResponse struct {
	Estimate *gpt.Estimate `json:"estimate"`
	Meal     *models.Meal  `json:"meal,omitempty"`
}

func (h *handlers) estimate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.estimator == nil {
		writeError(w, http.StatusServiceUnavailable, "estimation is not configured")
		return
	}
	var req estimateRequest
	if !decode(w, r, &req) {
		return
	}

	est, err := h.estimator.EstimateMacros(r.Context(), req.Description)
	if err != nil {
		if errors.Is(err, gpt.ErrBadEstimate) {
			h.fail(w, r, err)
			return
		}
		h.log.Warnw("Estimate failed", "error", err)
		writeError(w, http.StatusBadGateway, "estimation failed")
		return
	}
	resp := estimateResponse{Estimate: est}

	if req.Log {
		meal, err := s.Meals.Create(r.Context(), meals.MealInput{
			Name:      est.Name,
			CreatedAt: req.CreatedAt,
			Lines:     []meals.LineInput{est.QuickLine()},
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Meal = meal
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	user, err := auth.CurrentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	h.sessions.Close(user.ID)
	w.WriteHeader(http.StatusNoContent)
}
