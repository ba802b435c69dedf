// Package selection holds the caller's property scope: the visible
// properties, the selected one and the scoping mode. The state is persisted
// to durable client storage and kept in step with the backend's property
// table through the change feed.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/kvstore"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/notify"
	"github.com/starford/staykeep/internal/scope"
)

// Durable storage keys.
const (
	KeySelectedProperty = "selectedPropertyId"
	KeyPropertyMode     = "propertyMode"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMinBackoff     = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
)

// State is a snapshot of the selection.
type State struct {
	Mode       scope.Mode        `json:"mode"`
	Selected   *models.Property  `json:"selected_property"`
	Properties []models.Property `json:"user_properties"`
}

// Scope converts the state into the filter every scoped list applies.
func (s State) Scope() scope.Selection {
	if s.Mode == scope.ModeProperty && s.Selected != nil {
		return scope.Property(s.Selected.ID)
	}
	if s.Mode == scope.ModeUnassigned {
		return scope.Unassigned()
	}
	return scope.All()
}

func (s State) clone() State {
	out := State{Mode: s.Mode, Properties: append([]models.Property(nil), s.Properties...)}
	if s.Selected != nil {
		p := *s.Selected
		out.Selected = &p
	}
	return out
}

// Option configures a Store.
type Option func(*Store)

// WithRequestTimeout bounds every property fetch.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithBackoff sets the delay range used when the change feed has to be
// re-established.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(s *Store) {
		if minDelay > 0 {
			s.minBackoff = minDelay
		}
		if maxDelay >= s.minBackoff {
			s.maxBackoff = maxDelay
		}
	}
}

// WithLogger sets the logger used for feed diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is the property selection state container. Construct one per
// session and pass it to the components that need the current scope.
type Store struct {
	props    entity.Repository[models.Property]
	feed     entity.Feed
	kv       kvstore.Store
	notifier notify.Notifier
	logger   *slog.Logger

	timeout    time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration

	mu        sync.RWMutex
	state     State
	listeners []func(State)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStore builds a Store. feed may be nil, in which case the state only
// changes through Refresh and the mutators.
func NewStore(
	props entity.Repository[models.Property],
	feed entity.Feed,
	kv kvstore.Store,
	notifier notify.Notifier,
	opts ...Option,
) *Store {
	s := &Store{
		props:      props,
		feed:       feed,
		kv:         kv,
		notifier:   notifier,
		logger:     slog.Default(),
		timeout:    defaultRequestTimeout,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		state:      State{Mode: scope.ModeAll},
	}
	for _, opt := range opts {
		opt(s)
	}
	if m := s.storedMode(); m != scope.ModeProperty {
		s.state.Mode = m
	}
	return s
}

// Start runs the initial fetch and, when a feed is configured, follows
// property changes until Close is called or ctx ends. A failed initial
// fetch is reported through the notifier and returned; the feed still
// starts so a later change can recover the state.
func (s *Store) Start(ctx context.Context) error {
	err := s.Refresh(ctx)
	if s.feed != nil {
		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.follow(ctx)
	}
	return err
}

// Close stops following the change feed.
func (s *Store) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Store) follow(ctx context.Context) {
	defer close(s.done)
	delay := s.minBackoff
	first := true
	for {
		ch, err := s.feed.Subscribe(ctx, models.TableProperties)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("property feed subscribe failed",
				slog.String("error", err.Error()), slog.Duration("retry_in", delay))
			if !sleep(ctx, delay) {
				return
			}
			delay = min(delay*2, s.maxBackoff)
			continue
		}
		delay = s.minBackoff
		if !first {
			// Changes may have been missed while disconnected.
			_ = s.Refresh(ctx)
		}
		first = false

		for range ch {
			_ = s.Refresh(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("property feed closed, resubscribing", slog.Duration("retry_in", delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Refresh fetches the visible properties and reconciles the selection with
// them. On failure the previous state is kept.
func (s *Store) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	props, err := s.props.List(ctx, entity.Filter{Order: entity.OrderName})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.notifier.Error("Could not load properties", err)
		}
		return fmt.Errorf("selection: list properties: %w", err)
	}

	s.mu.Lock()
	next := reconcile(props, s.storedMode(), s.storedID())
	s.state = next
	err = s.persist(next)
	snapshot := next.clone()
	s.mu.Unlock()

	s.emit(snapshot)
	return err
}

// reconcile applies the auto-selection policy. A single visible property
// is always selected. With several, the stored id is restored when it is
// still visible. Property mode without a selection falls back to all.
func reconcile(props []models.Property, mode scope.Mode, storedID string) State {
	next := State{Mode: mode, Properties: props}
	switch {
	case len(props) == 1:
		p := props[0]
		next.Selected = &p
	case len(props) > 1 && storedID != "":
		for _, p := range props {
			if p.ID == storedID {
				next.Selected = &p
				break
			}
		}
	}
	if next.Selected == nil && next.Mode == scope.ModeProperty {
		next.Mode = scope.ModeAll
	}
	return next
}

func (s *Store) storedMode() scope.Mode {
	raw, _ := s.kv.Get(KeyPropertyMode)
	m, err := scope.ParseMode(raw)
	if err != nil {
		return scope.ModeAll
	}
	return m
}

func (s *Store) storedID() string {
	id, _ := s.kv.Get(KeySelectedProperty)
	return id
}

func (s *Store) persist(st State) error {
	if err := s.kv.Set(KeyPropertyMode, string(st.Mode)); err != nil {
		return fmt.Errorf("selection: persist mode: %w", err)
	}
	if st.Selected == nil {
		if err := s.kv.Remove(KeySelectedProperty); err != nil {
			return fmt.Errorf("selection: clear selected property: %w", err)
		}
		return nil
	}
	if err := s.kv.Set(KeySelectedProperty, st.Selected.ID); err != nil {
		return fmt.Errorf("selection: persist selected property: %w", err)
	}
	return nil
}

// OnChange registers fn to receive every new state.
func (s *Store) OnChange(fn func(State)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) emit(st State) {
	s.mu.RLock()
	listeners := append(([]func(State))(nil), s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(st.clone())
	}
}

// State returns a snapshot of the whole selection.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// SelectedProperty returns the selected property, or nil.
func (s *Store) SelectedProperty() *models.Property {
	return s.State().Selected
}

// Mode returns the current scoping mode.
func (s *Store) Mode() scope.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Mode
}

// UserProperties returns the properties visible to the caller.
func (s *Store) UserProperties() []models.Property {
	return s.State().Properties
}

// Selection returns the list filter for the current state.
func (s *Store) Selection() scope.Selection {
	return s.State().Scope()
}

// SetSelectedProperty selects p and switches to property mode. A nil p
// clears the selection.
func (s *Store) SetSelectedProperty(p *models.Property) error {
	if p == nil {
		return s.mutate(func(st *State) error {
			st.Selected = nil
			if st.Mode == scope.ModeProperty {
				st.Mode = scope.ModeAll
			}
			return nil
		})
	}
	return s.mutate(func(st *State) error {
		found, err := visible(st.Properties, p.ID)
		if err != nil {
			return err
		}
		st.Selected = &found
		st.Mode = scope.ModeProperty
		return nil
	})
}

// SetPropertyMode changes the scoping mode, optionally selecting p at the
// same time. Property mode requires a selection.
func (s *Store) SetPropertyMode(mode scope.Mode, p *models.Property) error {
	if !mode.Valid() {
		return apperr.Validation(fmt.Errorf("unknown property mode %q", mode))
	}
	return s.mutate(func(st *State) error {
		if p != nil {
			found, err := visible(st.Properties, p.ID)
			if err != nil {
				return err
			}
			st.Selected = &found
		}
		if mode == scope.ModeProperty && st.Selected == nil {
			return apperr.Validation(errors.New("property mode needs a selected property"))
		}
		st.Mode = mode
		return nil
	})
}

func visible(props []models.Property, id string) (models.Property, error) {
	for _, p := range props {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Property{}, fmt.Errorf("selection: property %s is not visible: %w", id, apperr.ErrNotFound)
}

func (s *Store) mutate(apply func(*State) error) error {
	s.mu.Lock()
	next := s.state.clone()
	if err := apply(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		s.notifier.Error("Could not save property selection", err)
		return err
	}
	s.state = next
	snapshot := next.clone()
	s.mu.Unlock()

	s.emit(snapshot)
	return nil
}
