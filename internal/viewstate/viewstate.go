// Package viewstate models which screen of a feature is showing as one
// value instead of a set of flags.
package viewstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind names a view.
type Kind string

// View kinds.
const (
	KindList    Kind = "list"
	KindAdd     Kind = "add"
	KindEdit    Kind = "edit"
	KindHistory Kind = "history"
	KindDetail  Kind = "detail"
)

// ErrInvalidTransition is returned when a view cannot be reached from the
// current one.
var ErrInvalidTransition = errors.New("invalid view transition")

// View is one of List, Add, Edit, History or Detail.
type View interface {
	Kind() Kind
	isView()
}

// List shows all entries.
type List struct{}

// Add shows an empty form.
type Add struct{}

// Edit shows the form for an existing entry.
type Edit struct{ ID string }

// History shows past records, optionally for a single template.
type History struct{ TemplateID string }

// Detail shows one entry read-only.
type Detail struct{ ID string }

func (List) Kind() Kind    { return KindList }
func (Add) Kind() Kind     { return KindAdd }
func (Edit) Kind() Kind    { return KindEdit }
func (History) Kind() Kind { return KindHistory }
func (Detail) Kind() Kind  { return KindDetail }

func (List) isView()    {}
func (Add) isView()     {}
func (Edit) isView()    {}
func (History) isView() {}
func (Detail) isView()  {}

// Validate checks the fields a view needs.
func Validate(v View) error {
	switch v := v.(type) {
	case List, Add, History:
		return nil
	case Edit:
		return validation.Validate(v.ID, validation.Required.Error("edit view needs an id"))
	case Detail:
		return validation.Validate(v.ID, validation.Required.Error("detail view needs an id"))
	case nil:
		return errors.New("viewstate: nil view")
	default:
		return fmt.Errorf("viewstate: unknown view %T", v)
	}
}

// allowed reports whether to may follow from.
func allowed(from, to View) bool {
	if to.Kind() == KindList {
		return true
	}
	switch f := from.(type) {
	case List:
		return true
	case Detail:
		e, ok := to.(Edit)
		return ok && e.ID == f.ID
	case History:
		return to.Kind() == KindDetail
	default:
		return false
	}
}

// Navigator holds the current view and the views behind it.
type Navigator struct {
	mu      sync.Mutex
	current View
	back    []View
}

// NewNavigator starts on the list view.
func NewNavigator() *Navigator {
	return &Navigator{current: List{}}
}

// Current returns the showing view.
func (n *Navigator) Current() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Go moves to v. Moving to the list view clears the back stack.
func (n *Navigator) Go(v View) error {
	if err := Validate(v); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !allowed(n.current, v) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, n.current.Kind(), v.Kind())
	}
	if v.Kind() == KindList {
		n.back = nil
	} else {
		n.back = append(n.back, n.current)
	}
	n.current = v
	return nil
}

// Open jumps to v from anywhere, as if the user had gone back to the list
// first. The list stays on the back stack.
func (n *Navigator) Open(v View) error {
	if err := Validate(v); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if v.Kind() == KindList {
		n.back, n.current = nil, v
		return nil
	}
	if !allowed(List{}, v) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, KindList, v.Kind())
	}
	n.back, n.current = []View{List{}}, v
	return nil
}

// Back returns to the previous view, or the list when there is none.
func (n *Navigator) Back() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.back) == 0 {
		n.current = List{}
		return n.current
	}
	n.current = n.back[len(n.back)-1]
	n.back = n.back[:len(n.back)-1]
	return n.current
}

// wire is the JSON form of a view.
type wire struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// Encode renders v as JSON.
func Encode(v View) ([]byte, error) {
	w := wire{Kind: v.Kind()}
	switch v := v.(type) {
	case Edit:
		w.ID = v.ID
	case Detail:
		w.ID = v.ID
	case History:
		w.ID = v.TemplateID
	}
	return json.Marshal(w)
}

// Parse builds a view from its kind and optional id.
func Parse(kind, id string) (View, error) {
	var v View
	switch Kind(kind) {
	case KindList:
		v = List{}
	case KindAdd:
		v = Add{}
	case KindEdit:
		v = Edit{ID: id}
	case KindHistory:
		v = History{TemplateID: id}
	case KindDetail:
		v = Detail{ID: id}
	default:
		return nil, fmt.Errorf("viewstate: unknown kind %q", kind)
	}
	if err := Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode parses the JSON produced by Encode.
func Decode(raw []byte) (View, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("viewstate: decode: %w", err)
	}
	return Parse(string(w.Kind), w.ID)
}
