// Package devserver runs a local stand-in for the deployment tracker API: a
// sqlite-backed REST surface plus the push channel announcing every change.
package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	httpapi "github.com/chklst/deploysync/internal/http"
	"github.com/chklst/deploysync/internal/http/handlers"
	"github.com/chklst/deploysync/internal/storage"
)

type Server struct {
	Repo *storage.Repository
	Hub  *Hub

	api    *handlers.API
	logger *slog.Logger
}

// Open opens the database at dbPath and prepares the push hub.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	repo, err := storage.New(ctx, dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open dev database: %w", err)
	}
	hub := NewHub(logger)
	return &Server{
		Repo:   repo,
		Hub:    hub,
		api:    handlers.New(repo, hub, logger),
		logger: logger,
	}, nil
}

// Handler serves the REST routes under apiPath and the push channel at pushPath.
func (s *Server) Handler(apiPath, pushPath string) http.Handler {
	r := httpapi.NewRouter(s.logger)
	r.Route(apiPath, func(r chi.Router) {
		s.api.Mount(r)
	})
	r.Handle(pushPath, s.Hub)
	return r
}

func (s *Server) Close() error {
	s.Hub.Close()
	return s.Repo.Close()
}
