// Package api implements the StayKeep REST API using chi.
package api

import (
	"net/http"

	"github.com/starford/staykeep/internal/identity"
	"github.com/starford/staykeep/internal/realtime"
)

// AuthMiddleware authenticates every request through auth and stores the
// caller in the request context. Profiles are looked up in lookup when the
// credentials carry no profile id.
func AuthMiddleware(auth *identity.Authenticator, lookup identity.ProfileLookup) func(http.Handler) http.Handler {
	return auth.Middleware(lookup, func(w http.ResponseWriter, err error) {
		writeError(w, "authenticate", err)
	})
}

// eventAccess narrows the event stream to the caller's properties.
func (h *Handler) eventAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc, err := access(r.Context(), h.store, caller(r))
		if err != nil {
			writeError(w, "list assignments", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(realtime.WithAccess(r.Context(), acc)))
	})
}
