// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"macro-tracker/internal/auth"
	"macro-tracker/internal/gpt"
	"macro-tracker/internal/session"
	"macro-tracker/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Estimator turns a free-text meal description into quick-macro values.
type Estimator interface {
	EstimateMacros(ctx context.Context, description string) (*gpt.Estimate, error)
}

type Deps struct {
	Sessions       *session.Manager
	Verifier       *auth.Verifier
	Estimator      Estimator
	AllowedOrigins []string
	Logger         *logger.Logger
}

type Server struct {
	server *http.Server
	logger *logger.Logger
}

func NewServer(port string, handler http.Handler, logger *logger.Logger) *Server {
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		server: httpServer,
		logger: logger,
	}
}

func NewRouter(deps Deps) http.Handler {
	h := &handlers{
		sessions:  deps.Sessions,
		estimator: deps.Estimator,
		log:       deps.Logger,
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.Verifier.Middleware)

		r.Get("/days/{day}", h.getDay)

		r.Get("/meals", h.listMeals)
		r.Post("/meals", h.createMeal)
		r.Get("/meals/{id}", h.getMeal)
		r.Put("/meals/{id}", h.updateMeal)
		r.Delete("/meals/{id}", h.deleteMeal)

		r.Get("/foods", h.listFoods)
		r.Get("/foods/recent", h.recentFoods)
		r.Post("/foods", h.createFood)
		r.Delete("/foods/{id}", h.deleteFood)

		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.saveSettings)
		r.Post("/settings/bulk-cut", h.startBulkCut)

		r.Get("/preferences", h.getPreferences)
		r.Put("/preferences", h.savePreferences)

		r.Post("/estimate", h.estimate)
		r.Post("/signout", h.signOut)
	})

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debugw("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func (s *Server) Start() error {
	s.logger.Infow("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
