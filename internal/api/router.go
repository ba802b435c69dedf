package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/staykeep/internal/blob"
	"github.com/starford/staykeep/internal/identity"
)

// Config holds the collaborators the router serves.
type Config struct {
	Store Store
	Auth  *identity.Authenticator
	// Blobs, if non-nil, enables the photo routes.
	Blobs blob.Store
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(cfg Config) chi.Router {
	h := NewHandler(cfg.Store)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.Auth, cfg.Store))

	r.Get("/me", h.Me)

	// Backend-enforced one-time work.
	r.Post("/migration-claims/{key}", h.Claim)
	r.Delete("/migration-claims/{key}", h.Release)

	if cfg.Blobs != nil {
		ph := NewPhotoHandler(cfg.Blobs, cfg.Store)
		r.Post("/photos", ph.Upload)
		r.Delete("/photos/*", ph.Delete)
	}

	if cfg.Events != nil {
		r.With(h.eventAccess).Get("/events", cfg.Events.ServeHTTP)
	}

	// Entity CRUD.
	r.Get("/{table}", h.List)
	r.Post("/{table}", h.Create)
	r.Get("/{table}/{id}", h.Get)
	r.Patch("/{table}/{id}", h.Update)
	r.Delete("/{table}/{id}", h.Delete)

	return r
}
