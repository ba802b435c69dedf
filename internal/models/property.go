package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Property is a rental unit; it is the scope other entities bind to.
type Property struct {
	Meta
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	City     string  `json:"city"`
	State    string  `json:"state"`
	Zip      string  `json:"zip"`
	ImageURL *string `json:"image_url"`
}

func (p *Property) Scope() *string { return nil }
func (p *Property) Label() string  { return p.Name }

// Validate validates the property.
func (p *Property) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.ImageURL, validation.NilOrNotEmpty, is.URL),
	)
}

// Roles.
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// Profile is the application-level user record.
type Profile struct {
	Meta
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

func (p *Profile) Scope() *string { return nil }
func (p *Profile) Label() string  { return p.UserID }

// Validate validates the profile.
func (p *Profile) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.UserID, validation.Required),
		validation.Field(&p.Email, is.EmailFormat),
		validation.Field(&p.Role, validation.Required, validation.In(RoleOwner, RoleManager, RoleStaff)),
	)
}

// PropertyAssignment grants a staff profile access to a property.
type PropertyAssignment struct {
	Meta
	ProfileID  string  `json:"profile_id"`
	PropertyID *string `json:"property_id"`
}

func (a *PropertyAssignment) Scope() *string { return a.PropertyID }
func (a *PropertyAssignment) Label() string  { return a.ProfileID }

// Validate validates the assignment.
func (a *PropertyAssignment) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.ProfileID, validation.Required),
		validation.Field(&a.PropertyID, validation.Required),
	)
}
