package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/identity"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/scope"
)

const maxBodyBytes = 1 << 20

// Store is the entity store the handlers serve.
type Store interface {
	List(ctx context.Context, table string, f entity.Filter) ([]json.RawMessage, error)
	Get(ctx context.Context, table, id string) (json.RawMessage, error)
	Insert(ctx context.Context, table string, doc []byte) (json.RawMessage, error)
	Update(ctx context.Context, table, id string, patch map[string]any) (json.RawMessage, error)
	Delete(ctx context.Context, table, id string) error
	Assignments
	entity.Claimer
	identity.ProfileLookup
}

// Handler holds the entity route handlers.
type Handler struct {
	store Store
}

// NewHandler creates a new Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// adminTables may only be written by roles that see every property.
var adminTables = []string{models.TableProperties, models.TableProfiles, models.TablePropertyAssignments}

func tableParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	table := chi.URLParam(r, "table")
	if _, ok := models.New(table); !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown table"))
		return "", false
	}
	return table, true
}

func caller(r *http.Request) *identity.User {
	if u, ok := identity.FromContext(r.Context()); ok {
		return u
	}
	return &identity.User{}
}

// Assignments lists the properties a staff profile may reach.
type Assignments interface {
	AssignedPropertyIDs(ctx context.Context, profileID string) ([]string, error)
}

// access returns the properties u may reach: nil for roles that see every
// property, otherwise the profile's assignments.
func access(ctx context.Context, a Assignments, u *identity.User) (scope.Restriction, error) {
	if u.SeesAllProperties() {
		return nil, nil
	}
	if u.ProfileID == "" {
		return scope.Restrict(nil), nil
	}
	ids, err := a.AssignedPropertyIDs(ctx, u.ProfileID)
	if err != nil {
		return nil, err
	}
	return scope.Restrict(ids), nil
}

// rowProperty reads the property reference of a stored or submitted row.
func rowProperty(doc []byte) (*string, error) {
	var row struct {
		PropertyID *string `json:"property_id"`
	}
	if err := json.Unmarshal(doc, &row); err != nil {
		return nil, err
	}
	return row.PropertyID, nil
}

// reachable reports whether the caller may touch row id of table. Rows the
// caller cannot reach are reported as not found.
func (h *Handler) reachable(ctx context.Context, acc scope.Restriction, table, id string) error {
	if acc == nil {
		return nil
	}
	if table == models.TableProperties {
		if !acc.Allows(&id) {
			return fmt.Errorf("%s %s: %w", table, id, apperr.ErrNotFound)
		}
		return nil
	}
	if !models.Scoped(table) {
		return nil
	}
	doc, err := h.store.Get(ctx, table, id)
	if err != nil {
		return err
	}
	pid, err := rowProperty(doc)
	if err != nil {
		return fmt.Errorf("decode stored %s: %w", table, err)
	}
	if !acc.Allows(pid) {
		return fmt.Errorf("%s %s: %w", table, id, apperr.ErrNotFound)
	}
	return nil
}

// assignable reports whether the caller may bind a row to propertyID.
func assignable(acc scope.Restriction, table string, propertyID *string) error {
	if !models.Scoped(table) || acc.Allows(propertyID) {
		return nil
	}
	return fmt.Errorf("property %s is not assigned to you: %w", *propertyID, apperr.ErrForbidden)
}

func canWrite(u *identity.User, table string) bool {
	return u.SeesAllProperties() || !slices.Contains(adminTables, table)
}

// List handles GET /api/{table}.
//
//	@Summary		List rows of a table, narrowed by property scope
//	@Tags			entities
//	@Produce		json
//	@Param			table		path		string	true	"Table name"
//	@Param			mode		query		string	false	"Scope mode"	Enums(all, unassigned, property)
//	@Param			property_id	query		string	false	"Property id for property mode"
//	@Param			order		query		string	false	"Sort order"	Enums(created_at, -created_at, name)
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	ListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{table} [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	table, ok := tableParam(w, r)
	if !ok {
		return
	}
	f, err := entity.ParseFilter(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	acc, err := access(r.Context(), h.store, caller(r))
	if err != nil {
		writeError(w, "list assignments", err)
		return
	}
	switch {
	case acc == nil:
	case table == models.TableProperties:
		ids := []string(acc)
		if len(f.IDs) > 0 {
			ids = slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return !slices.Contains(f.IDs, id) })
		}
		if len(ids) == 0 {
			writeJSON(w, http.StatusOK, ListResponse{Items: []json.RawMessage{}})
			return
		}
		f.IDs = ids
	case models.Scoped(table):
		f.Access = acc
	}

	items, err := h.store.List(r.Context(), table, f)
	if err != nil {
		writeError(w, "list", err, slog.String("table", table))
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: items, Count: len(items)})
}

// Get handles GET /api/{table}/{id}.
//
//	@Summary		Get a single row
//	@Tags			entities
//	@Produce		json
//	@Param			table	path		string	true	"Table name"
//	@Param			id		path		string	true	"Row id"
//	@Success		200		{object}	object
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{table}/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	table, ok := tableParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	acc, err := access(r.Context(), h.store, caller(r))
	if err != nil {
		writeError(w, "list assignments", err)
		return
	}
	if err := h.reachable(r.Context(), acc, table, id); err != nil {
		writeError(w, "get", err, slog.String("table", table), slog.String("id", id))
		return
	}

	doc, err := h.store.Get(r.Context(), table, id)
	if err != nil {
		writeError(w, "get", err, slog.String("table", table), slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Create handles POST /api/{table}.
//
//	@Summary		Insert a row
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			table	path		string	true	"Table name"
//	@Success		201		{object}	object
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{table} [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	table, ok := tableParam(w, r)
	if !ok {
		return
	}
	if !canWrite(caller(r), table) {
		writeError(w, "create", apperr.ErrForbidden)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	acc, err := access(r.Context(), h.store, caller(r))
	if err != nil {
		writeError(w, "list assignments", err)
		return
	}
	if acc != nil {
		pid, err := rowProperty(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid property_id"))
			return
		}
		if err := assignable(acc, table, pid); err != nil {
			writeError(w, "create", err, slog.String("table", table))
			return
		}
	}

	doc, err := h.store.Insert(r.Context(), table, body)
	if err != nil {
		writeError(w, "create", err, slog.String("table", table))
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// Update handles PATCH /api/{table}/{id} with a JSON merge patch.
//
//	@Summary		Patch a row
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			table	path		string	true	"Table name"
//	@Param			id		path		string	true	"Row id"
//	@Success		200		{object}	object
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{table}/{id} [patch]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	table, ok := tableParam(w, r)
	if !ok {
		return
	}
	if !canWrite(caller(r), table) {
		writeError(w, "update", apperr.ErrForbidden)
		return
	}
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	acc, err := access(r.Context(), h.store, caller(r))
	if err != nil {
		writeError(w, "list assignments", err)
		return
	}
	if err := h.reachable(r.Context(), acc, table, id); err != nil {
		writeError(w, "update", err, slog.String("table", table), slog.String("id", id))
		return
	}
	if v, ok := patch["property_id"]; ok && acc != nil {
		var pid *string
		switch v := v.(type) {
		case nil:
		case string:
			pid = &v
		default:
			writeJSON(w, http.StatusBadRequest, errorBody("invalid property_id"))
			return
		}
		if err := assignable(acc, table, pid); err != nil {
			writeError(w, "update", err, slog.String("table", table), slog.String("id", id))
			return
		}
	}

	doc, err := h.store.Update(r.Context(), table, id, patch)
	if err != nil {
		writeError(w, "update", err, slog.String("table", table), slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete handles DELETE /api/{table}/{id}.
//
//	@Summary		Delete a row
//	@Tags			entities
//	@Param			table	path	string	true	"Table name"
//	@Param			id		path	string	true	"Row id"
//	@Success		204		"Row deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{table}/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	table, ok := tableParam(w, r)
	if !ok {
		return
	}
	if !canWrite(caller(r), table) {
		writeError(w, "delete", apperr.ErrForbidden)
		return
	}
	id := chi.URLParam(r, "id")
	acc, err := access(r.Context(), h.store, caller(r))
	if err != nil {
		writeError(w, "list assignments", err)
		return
	}
	if err := h.reachable(r.Context(), acc, table, id); err != nil {
		writeError(w, "delete", err, slog.String("table", table), slog.String("id", id))
		return
	}
	if err := h.store.Delete(r.Context(), table, id); err != nil {
		writeError(w, "delete", err, slog.String("table", table), slog.String("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Claim handles POST /api/migration-claims/{key}. 201 means the caller won
// the claim, 409 that someone else holds it.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	owner := caller(r).UserID
	won, err := h.store.Claim(r.Context(), key, owner)
	if err != nil {
		writeError(w, "claim", err, slog.String("key", key))
		return
	}
	status := http.StatusCreated
	if !won {
		status = http.StatusConflict
	}
	writeJSON(w, status, ClaimResponse{Key: key, Claimed: won})
}

// Release handles DELETE /api/migration-claims/{key}.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.store.Release(r.Context(), key); err != nil {
		writeError(w, "release claim", err, slog.String("key", key))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u := caller(r)
	resp := MeResponse{User: *u}
	if p, err := h.store.ProfileByUserID(r.Context(), u.UserID); err == nil {
		resp.Profile = p
	}
	writeJSON(w, http.StatusOK, resp)
}
