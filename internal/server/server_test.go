package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"macro-tracker/internal/auth"
	"macro-tracker/internal/db"
	"macro-tracker/internal/gpt"
	"macro-tracker/internal/models"
	"macro-tracker/internal/prefs"
	"macro-tracker/internal/session"
	"macro-tracker/internal/totals"
	"macro-tracker/pkg/logger"

	"github.com/google/uuid"
)

type fakeEstimator struct{}

func (fakeEstimator) EstimateMacros(_ context.Context, description string) (*gpt.Estimate, error) {
	return &gpt.Estimate{Name: description, ProteinG: 10, CarbsG: 20, FatG: 5}, nil
}

type testAPI struct {
	t        *testing.T
	handler  http.Handler
	sessions *session.Manager
	token    string
	user     models.User
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	p, err := prefs.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	sessions := session.NewManager(db.NewMemoryStore(), p, logger.NewNop(), totals.DefaultOptions())
	t.Cleanup(sessions.CloseAll)

	verifier := auth.NewVerifier("test-secret", "")
	user := models.User{ID: uuid.New(), Email: "u@example.com"}
	token, err := verifier.Issue(user, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	handler := NewRouter(Deps{
		Sessions:  sessions,
		Verifier:  verifier,
		Estimator: fakeEstimator{},
		Logger:    logger.NewNop(),
	})
	return &testAPI{
		t:        t,
		handler:  handler,
		sessions: sessions,
		token:    token,
		user:     user,
	}
}

func (a *testAPI) do(method, path string, body interface{}, out interface{}) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+a.token)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			a.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return rec.Code
}

func TestHealthIsPublic(t *testing.T) {
	a := newTestAPI(t)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/foods", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /api status %d, want 401", rec.Code)
	}
}

func TestMealLifecycleUpdatesDay(t *testing.T) {
	a := newTestAPI(t)
	day := "2024-04-02"
	created := time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)

	var food models.Food
	if code := a.do(http.MethodPost, "/api/foods", map[string]interface{}{"name": "rice", "protein": 3, "carbs": 28, "fat": 0}, &food); code != http.StatusCreated {
		t.Fatalf("create food status %d", code)
	}

	var meal models.Meal
	body := map[string]interface{}{
		"name":       "lunch",
		"created_at": created,
		"foods": []map[string]interface{}{
			{"food_id": food.ID, "quantity": 2},
			{"is_quick_macro": true, "quantity": 1, "name": "sauce", "protein": 0, "carbs": 4, "fat": 5},
		},
	}
	if code := a.do(http.MethodPost, "/api/meals", body, &meal); code != http.StatusCreated {
		t.Fatalf("create meal status %d", code)
	}

	var view dayResponse
	if code := a.do(http.MethodGet, "/api/days/"+day, nil, &view); code != http.StatusOK {
		t.Fatalf("day status %d", code)
	}
	if view.Calories.Current != meal.Calories || len(view.Meals) != 1 || len(view.Meals[0].Lines) != 2 {
		t.Fatalf("day view = %+v", view)
	}

	if code := a.do(http.MethodDelete, "/api/meals/"+itoa(meal.ID), nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status %d", code)
	}
	if code := a.do(http.MethodGet, "/api/days/"+day, nil, &view); code != http.StatusOK {
		t.Fatalf("day status %d", code)
	}
	if view.Calories.Current != 0 || len(view.Meals) != 0 {
		t.Fatalf("day after delete = %+v", view)
	}
	if code := a.do(http.MethodDelete, "/api/meals/"+itoa(meal.ID), nil, nil); code != http.StatusNotFound {
		t.Fatalf("second delete status %d, want 404", code)
	}
}

func TestValidationErrorsAreBadRequest(t *testing.T) {
	a := newTestAPI(t)
	cases := []struct {
		name, method, path string
		body               interface{}
	}{
		{"zero quantity", http.MethodPost, "/api/meals", map[string]interface{}{"name": "x", "foods": []map[string]interface{}{{"is_quick_macro": true, "name": "x", "quantity": 0}}}},
		{"blank food", http.MethodPost, "/api/foods", map[string]interface{}{"name": ""}},
		{"negative goals", http.MethodPut, "/api/settings", map[string]interface{}{"protein": -5}},
		{"bad day", http.MethodGet, "/api/days/yesterday-ish", nil},
		{"bad id", http.MethodDelete, "/api/meals/abc", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code := a.do(tc.method, tc.path, tc.body, nil); code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400", code)
			}
		})
	}
}

func TestSettingsAndPreferences(t *testing.T) {
	a := newTestAPI(t)

	var saved models.UserSettings
	if code := a.do(http.MethodPut, "/api/settings", goalsRequest{Protein: 150, Carbs: 250, Fat: 70}, &saved); code != http.StatusOK {
		t.Fatalf("save settings status %d", code)
	}
	if saved.CalorieGoal != 2230 {
		t.Fatalf("CalorieGoal = %d", saved.CalorieGoal)
	}
	if code := a.do(http.MethodPost, "/api/settings/bulk-cut", nil, &saved); code != http.StatusOK || saved.BulkCutStartDate == nil {
		t.Fatalf("bulk-cut status %d, settings %+v", code, saved)
	}

	var p preferencesBody
	if code := a.do(http.MethodPut, "/api/preferences", preferencesBody{ShowRemaining: true}, &p); code != http.StatusOK {
		t.Fatalf("save prefs status %d", code)
	}
	p = preferencesBody{}
	a.do(http.MethodGet, "/api/preferences", nil, &p)
	if !p.ShowRemaining {
		t.Fatalf("preference not persisted")
	}
}

func TestEstimateLogsQuickMeal(t *testing.T) {
	a := newTestAPI(t)
	created := time.Date(2024, 4, 3, 8, 0, 0, 0, time.UTC)

	var resp estimateResponse
	code := a.do(http.MethodPost, "/api/estimate", estimateRequest{Description: "porridge", Log: true, CreatedAt: created}, &resp)
	if code != http.StatusOK {
		t.Fatalf("estimate status %d", code)
	}
	if resp.Meal == nil || resp.Meal.Calories != 165 || resp.Meal.Name != "porridge" {
		t.Fatalf("logged meal = %+v", resp.Meal)
	}
}

func TestSignOutDropsSession(t *testing.T) {
	a := newTestAPI(t)
	a.do(http.MethodGet, "/api/days/today", nil, nil)
	if a.sessions.Len() != 1 {
		t.Fatalf("sessions = %d, want 1", a.sessions.Len())
	}
	if code := a.do(http.MethodPost, "/api/signout", nil, nil); code != http.StatusNoContent {
		t.Fatalf("signout status %d", code)
	}
	if a.sessions.Len() != 0 {
		t.Fatalf("session survived sign-out")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
