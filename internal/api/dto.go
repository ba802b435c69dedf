package api

import (
	"encoding/json"

	"github.com/starford/staykeep/internal/identity"
	"github.com/starford/staykeep/internal/models"
)

// ListResponse wraps the rows of a table listing.
type ListResponse struct {
	Items []json.RawMessage `json:"items" validate:"required"`
	Count int               `json:"count" example:"2" validate:"required"`
}

// ClaimResponse reports the outcome of a migration claim.
type ClaimResponse struct {
	Key     string `json:"key" example:"inventory-migration:1f0c" validate:"required"`
	Claimed bool   `json:"claimed" validate:"required"`
}

// PhotoResponse is returned after a successful photo upload.
type PhotoResponse struct {
	Key  string `json:"key" example:"photos/p1/ab/ab12.jpg" validate:"required"`
	URL  string `json:"url" example:"/files/photos/p1/ab/ab12.jpg" validate:"required"`
	Size int    `json:"size" example:"12345" validate:"required"`
}

// MeResponse describes the caller.
type MeResponse struct {
	User    identity.User   `json:"user" validate:"required"`
	Profile *models.Profile `json:"profile,omitempty"`
}
