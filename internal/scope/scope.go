// Package scope implements the property scoping rule shared by every
// property-bound entity kind.
package scope

import (
	"fmt"
	"strings"
)

// Mode selects which rows of a scoped table are visible.
type Mode string

// Scoping modes.
const (
	ModeProperty   Mode = "property"
	ModeAll        Mode = "all"
	ModeUnassigned Mode = "unassigned"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeProperty, ModeAll, ModeUnassigned:
		return true
	}
	return false
}

// ParseMode converts s into a Mode. Empty input yields ModeAll.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeAll, nil
	}
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("scope: unknown mode %q", s)
	}
	return m, nil
}

// Selection is the current scope: a mode plus, for ModeProperty, the
// selected property id.
type Selection struct {
	Mode       Mode    `json:"mode"`
	PropertyID *string `json:"selected_property_id"`
}

// All is the unrestricted selection.
func All() Selection { return Selection{Mode: ModeAll} }

// Unassigned selects rows that carry no property.
func Unassigned() Selection { return Selection{Mode: ModeUnassigned} }

// Property selects rows bound to id.
func Property(id string) Selection { return Selection{Mode: ModeProperty, PropertyID: &id} }

// Validate checks that a property selection names a property.
func (s Selection) Validate() error {
	if !s.Mode.Valid() {
		return fmt.Errorf("scope: unknown mode %q", s.Mode)
	}
	if s.Mode == ModeProperty && (s.PropertyID == nil || *s.PropertyID == "") {
		return fmt.Errorf("scope: mode %q requires a property id", ModeProperty)
	}
	return nil
}

// Visible reports whether a row bound to propertyID is visible under s.
// This is the one definition of the rule; SQL below must agree with it.
func (s Selection) Visible(propertyID *string) bool {
	switch s.Mode {
	case ModeUnassigned:
		return propertyID == nil
	case ModeProperty:
		return propertyID != nil && s.PropertyID != nil && *propertyID == *s.PropertyID
	default:
		return true
	}
}

// SQL renders the rule as a WHERE fragment over column using "?"
// placeholders. An empty fragment means no restriction.
func (s Selection) SQL(column string) (string, []any) {
	switch s.Mode {
	case ModeUnassigned:
		return column + " IS NULL", nil
	case ModeProperty:
		if s.PropertyID == nil {
			return "1 = 0", nil
		}
		return column + " = ?", []any{*s.PropertyID}
	default:
		return "", nil
	}
}

// Filter returns the elements of items visible under s.
func Filter[T any](s Selection, items []T, propertyOf func(T) *string) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if s.Visible(propertyOf(it)) {
			out = append(out, it)
		}
	}
	return out
}

// Restriction limits a caller to a set of properties. A nil Restriction
// allows everything. Rows without a property are shared stock and stay
// reachable under any restriction.
type Restriction []string

// Restrict returns a Restriction for ids; it is never nil, so an empty
// list still restricts.
func Restrict(ids []string) Restriction {
	if ids == nil {
		return Restriction{}
	}
	return Restriction(ids)
}

// Allows reports whether a row bound to propertyID is reachable.
func (r Restriction) Allows(propertyID *string) bool {
	if r == nil || propertyID == nil {
		return true
	}
	for _, id := range r {
		if id == *propertyID {
			return true
		}
	}
	return false
}

// SQL renders the restriction as a WHERE fragment over column. An empty
// fragment means no restriction.
func (r Restriction) SQL(column string) (string, []any) {
	if r == nil {
		return "", nil
	}
	if len(r) == 0 {
		return column + " IS NULL", nil
	}
	args := make([]any, len(r))
	for i, id := range r {
		args[i] = id
	}
	return "(" + column + " IS NULL OR " + column + " IN (" + strings.TrimSuffix(strings.Repeat("?,", len(r)), ",") + "))", args
}
