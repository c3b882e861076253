package http

import (
	"net/http"
	"time"

	"github.com/quizrun/quizrun/internal/auth"
	"github.com/quizrun/quizrun/internal/quiz"
	"github.com/quizrun/quizrun/internal/rbac"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Deps carries everything the route table needs.
type Deps struct {
	Store       quiz.Store
	Lifecycle   *quiz.Lifecycle
	Auth        *auth.AuthService
	CORSOrigins []string
}

// NewRouter builds the full HTTP surface: login, the protected quiz and
// attempt routes behind JWT + RBAC (CSRF on mutations), and health probes.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Post("/auth/login", auth.LoginHandler(d.Auth))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		// Authoring
		pr.With(auth.RequireCSRF(d.Auth), rbac.Require("quiz:create")).
			Post("/quizzes", UploadQuizHandler(d.Store))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", GetQuizHandler(d.Store))

		// Learner flow
		pr.With(auth.RequireCSRF(d.Auth), rbac.Require("attempt:create")).
			Post("/attempts", StartAttemptHandler(d.Lifecycle))
		pr.With(auth.RequireCSRF(d.Auth), rbac.Require("attempt:save")).
			Post("/attempts/{attemptID}/answer", SaveAnswerHandler(d.Lifecycle))
		pr.With(auth.RequireCSRF(d.Auth), rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(d.Lifecycle))
		// compatibility alias
		pr.With(auth.RequireCSRF(d.Auth), rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/complete", SubmitAttemptHandler(d.Lifecycle))

		// Singular-path aliases kept for older clients.
		pr.With(auth.RequireCSRF(d.Auth), rbac.Require("attempt:create")).
			Post("/attempt/start", StartAttemptHandler(d.Lifecycle))
		pr.With(auth.RequireCSRF(d.Auth), rbac.Require("attempt:save")).
			Post("/attempt/{attemptID}/answer", SaveAnswerHandler(d.Lifecycle))
		pr.With(auth.RequireCSRF(d.Auth), rbac.Require("attempt:submit")).
			Post("/attempt/{attemptID}/submit", SubmitAttemptHandler(d.Lifecycle))
		pr.With(auth.RequireCSRF(d.Auth), rbac.Require("attempt:submit")).
			Post("/attempt/{attemptID}/complete", SubmitAttemptHandler(d.Lifecycle))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempt/{attemptID}/state", AttemptStateHandler(d.Lifecycle))

		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/state", AttemptStateHandler(d.Lifecycle))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/results", AttemptResultsHandler(d.Lifecycle))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", ListAttemptsHandler(d.Store))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	return r
}
