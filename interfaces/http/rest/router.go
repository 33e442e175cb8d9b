// Package rest wires the chi router: global middleware, the session
// routes, the two entity services, and the operator endpoints.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"tickerdesk-backend/interfaces/http/rest/handlers"
	"tickerdesk-backend/interfaces/http/rest/middleware"
	"tickerdesk-backend/internal/adapter"
	"tickerdesk-backend/internal/observability"
	"tickerdesk-backend/internal/service/note"
	"tickerdesk-backend/internal/service/watchlist"
	"tickerdesk-backend/internal/session"
	"tickerdesk-backend/pkg/auth"
)

// Router builds the HTTP handler tree.
type Router struct {
	logger     *zap.Logger
	validator  *auth.Validator
	sessions   *session.Manager
	watchlists *watchlist.Service
	notes      *note.Service
	adapter    *adapter.Adapter
	perf       *observability.PerformanceTracker
	metrics    *observability.Metrics
}

// NewRouter creates a router over the engine's constructed components.
func NewRouter(
	logger *zap.Logger,
	validator *auth.Validator,
	sessions *session.Manager,
	watchlists *watchlist.Service,
	notes *note.Service,
	a *adapter.Adapter,
	perf *observability.PerformanceTracker,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		logger:     logger,
		validator:  validator,
		sessions:   sessions,
		watchlists: watchlists,
		notes:      notes,
		adapter:    a,
		perf:       perf,
		metrics:    metrics,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	router.Handle("/metrics", rt.metrics.Handler())

	sessionHandler := handlers.NewSessionHandler(rt.sessions, rt.logger)
	watchlistHandler := handlers.NewWatchlistHandler(rt.watchlists, rt.logger)
	noteHandler := handlers.NewNoteHandler(rt.notes, rt.logger)
	adminHandler := handlers.NewAdminHandler(rt.adapter, rt.perf, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/session/signin", sessionHandler.SignIn)
		r.Post("/session/signout", sessionHandler.SignOut)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(rt.validator))

			r.Get("/session", sessionHandler.Info)
			r.Post("/session/refresh", sessionHandler.Refresh)

			r.Route("/watchlists", func(r chi.Router) {
				r.Post("/", watchlistHandler.Create)
				r.Get("/", watchlistHandler.List)
				r.Get("/{watchlistID}", watchlistHandler.Get)
				r.Put("/{watchlistID}", watchlistHandler.Update)
				r.Delete("/{watchlistID}", watchlistHandler.Delete)

				r.Post("/{watchlistID}/items", watchlistHandler.AddItem)
				r.Delete("/{watchlistID}/items/{itemID}", watchlistHandler.RemoveItem)
				r.Put("/{watchlistID}/items/{itemID}/position", watchlistHandler.MoveItem)

				r.Get("/{watchlistID}/collaborators", watchlistHandler.ListCollaborators)
				r.Post("/{watchlistID}/collaborators", watchlistHandler.AddCollaborator)
				r.Delete("/{watchlistID}/collaborators/{collaboratorID}", watchlistHandler.RemoveCollaborator)
			})

			r.Route("/notes", func(r chi.Router) {
				r.Post("/", noteHandler.Create)
				r.Get("/", noteHandler.List)
				r.Get("/{noteID}", noteHandler.Get)
				r.Put("/{noteID}", noteHandler.Update)
				r.Delete("/{noteID}", noteHandler.Delete)

				r.Get("/{noteID}/collaborators", noteHandler.ListCollaborators)
				r.Post("/{noteID}/collaborators", noteHandler.AddCollaborator)
				r.Delete("/{noteID}/collaborators/{collaboratorID}", noteHandler.RemoveCollaborator)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Get("/datasource", adminHandler.DataSourceStatus)
				r.Put("/datasource", adminHandler.SetDataSourcePreference)
				r.Get("/performance", adminHandler.PerformanceMetrics)
			})
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports whether the engine can serve data: either the
// real backend is selected or the fallback source stands in.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	source := rt.adapter.DetermineSource()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready","source":"` + string(source) + `"}`))
}
