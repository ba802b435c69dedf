// Package entity defines the contract of the Scoped Entity Store: per-table
// CRUD with a filtered list, and a realtime change feed keyed by table.
package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/starford/staykeep/internal/scope"
)

// Sort orders accepted by List.
const (
	OrderCreated     = "created_at"
	OrderCreatedDesc = "-created_at"
	OrderName        = "name"
)

// Filter narrows a List call.
type Filter struct {
	Scope scope.Selection
	// Access is applied by the server on behalf of the caller and is never
	// sent over the wire.
	Access scope.Restriction
	IDs    []string
	Order  string
	Limit  int
	Offset int
}

// Validate checks the filter before it is sent anywhere.
func (f Filter) Validate() error {
	if f.Scope.Mode == "" {
		f.Scope.Mode = scope.ModeAll
	}
	if err := f.Scope.Validate(); err != nil {
		return err
	}
	switch f.Order {
	case "", OrderCreated, OrderCreatedDesc, OrderName:
	default:
		return fmt.Errorf("entity: unsupported order %q", f.Order)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return fmt.Errorf("entity: negative limit or offset")
	}
	return nil
}

// Values encodes f as URL query parameters.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.Scope.Mode != "" && f.Scope.Mode != scope.ModeAll {
		v.Set("mode", string(f.Scope.Mode))
	}
	if f.Scope.PropertyID != nil {
		v.Set("property_id", *f.Scope.PropertyID)
	}
	for _, id := range f.IDs {
		v.Add("id", id)
	}
	if f.Order != "" {
		v.Set("order", f.Order)
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		v.Set("offset", strconv.Itoa(f.Offset))
	}
	return v
}

// ParseFilter decodes query parameters produced by Filter.Values.
func ParseFilter(q url.Values) (Filter, error) {
	mode, err := scope.ParseMode(q.Get("mode"))
	if err != nil {
		return Filter{}, err
	}
	f := Filter{
		Scope: scope.Selection{Mode: mode},
		IDs:   q["id"],
		Order: q.Get("order"),
	}
	if pid := q.Get("property_id"); pid != "" {
		f.Scope.PropertyID = &pid
		if q.Get("mode") == "" {
			f.Scope.Mode = scope.ModeProperty
		}
	}
	if s := q.Get("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil {
			return Filter{}, fmt.Errorf("entity: bad limit: %w", err)
		}
	}
	if s := q.Get("offset"); s != "" {
		if f.Offset, err = strconv.Atoi(s); err != nil {
			return Filter{}, fmt.Errorf("entity: bad offset: %w", err)
		}
	}
	return f, f.Validate()
}

// ChangeType is the kind of write that produced a Change.
type ChangeType string

// Change types.
const (
	Insert ChangeType = "insert"
	Update ChangeType = "update"
	Delete ChangeType = "delete"
)

// Change describes one committed write.
type Change struct {
	Table      string          `json:"table"`
	Type       ChangeType      `json:"type"`
	ID         string          `json:"id"`
	PropertyID *string         `json:"property_id,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
	At         time.Time       `json:"at"`
}

// EventName is the stream event name for c, e.g. "properties.insert".
func (c Change) EventName() string {
	return c.Table + "." + string(c.Type)
}

// Repository is the typed CRUD surface of one table.
type Repository[T any] interface {
	List(ctx context.Context, f Filter) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Insert(ctx context.Context, row T) (T, error)
	Update(ctx context.Context, id string, patch map[string]any) (T, error)
	Delete(ctx context.Context, id string) error
}

// Feed delivers changes for the named tables until ctx is done. An empty
// table list subscribes to everything. The returned channel is closed when
// the subscription ends.
type Feed interface {
	Subscribe(ctx context.Context, tables ...string) (<-chan Change, error)
}

// Claimer arbitrates one-time work through a backend-enforced unique key.
type Claimer interface {
	// Claim reports whether the caller now owns key.
	Claim(ctx context.Context, key, owner string) (bool, error)
	Release(ctx context.Context, key string) error
}
