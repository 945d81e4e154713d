package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ragstack/corpora/internal/api/handlers"
	appMiddleware "github.com/ragstack/corpora/internal/api/middlewares"
	"github.com/ragstack/corpora/internal/config"
	"github.com/ragstack/corpora/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(
	cfg *config.Config,
	log *zap.Logger,
	users *services.UserService,
	projects *services.ProjectService,
	docs *services.DocumentService,
	settings *services.SettingsService,
	search *services.SearchService,
) *Server {
	authHandler := handlers.NewAuthHandler(users)
	projectHandler := handlers.NewProjectHandler(projects)
	docHandler := handlers.NewDocumentHandler(docs)
	settingsHandler := handlers.NewSettingsHandler(settings)
	searchHandler := handlers.NewSearchHandler(search)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)

			protected.Post("/projects", projectHandler.Create)
			protected.Get("/projects", projectHandler.List)
			protected.Get("/projects/{project_id}", projectHandler.Get)
			protected.Delete("/projects/{project_id}", projectHandler.Delete)

			protected.Post("/projects/{project_id}/documents/register", docHandler.RegisterUpload)
			protected.Get("/projects/{project_id}/documents", docHandler.List)
			protected.Post("/documents/{document_id}/confirm", docHandler.Confirm)
			protected.Get("/documents/{document_id}/status", docHandler.Status)
			protected.Get("/documents/{document_id}/chunks", docHandler.Chunks)
			protected.Delete("/documents/{document_id}", docHandler.Delete)

			protected.Get("/projects/{project_id}/settings", settingsHandler.Get)
			protected.Put("/projects/{project_id}/settings", settingsHandler.Update)
			protected.Post("/projects/{project_id}/settings/preview", settingsHandler.Preview)

			protected.Post("/projects/{project_id}/search", searchHandler.Search)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
