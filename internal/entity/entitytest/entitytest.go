// Package entitytest provides in-memory implementations of the entity
// contracts for tests.
package entitytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/models"
)

// Record constrains T so that *T is a models.Record.
type Record[T any] interface {
	*T
	models.Record
}

// Repo is an in-memory entity.Repository. Set Err to make every call fail.
type Repo[T any, PT Record[T]] struct {
	mu    sync.Mutex
	table string
	rows  []T
	feed  *Feed

	Err     error
	Inserts int
	Lists   int
}

// NewRepo returns an empty repository for table. feed may be nil.
func NewRepo[T any, PT Record[T]](table string, feed *Feed) *Repo[T, PT] {
	return &Repo[T, PT]{table: table, feed: feed}
}

var _ entity.Repository[models.Property] = (*Repo[models.Property, *models.Property])(nil)

// Seed stores rows without validation or notifications.
func (r *Repo[T, PT]) Seed(rows ...T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		if PT(&row).Base().ID == "" {
			PT(&row).Base().ID = uuid.NewString()
		}
		r.rows = append(r.rows, row)
	}
}

// Rows returns a copy of the stored rows.
func (r *Repo[T, PT]) Rows() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.rows...)
}

func (r *Repo[T, PT]) List(_ context.Context, f entity.Filter) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Lists++
	if r.Err != nil {
		return nil, r.Err
	}
	if f.Scope.Mode == "" {
		f.Scope.Mode = "all"
	}
	ids := map[string]bool{}
	for _, id := range f.IDs {
		ids[id] = true
	}
	out := []T{}
	for _, row := range r.rows {
		rec := PT(&row)
		if models.Scoped(r.table) && (!f.Scope.Visible(rec.Scope()) || !f.Access.Allows(rec.Scope())) {
			continue
		}
		if len(ids) > 0 && !ids[rec.Base().ID] {
			continue
		}
		out = append(out, row)
	}
	if f.Order == entity.OrderName {
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(PT(&out[i]).Label()) < strings.ToLower(PT(&out[j]).Label())
		})
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			out = []T{}
		} else {
			out = out[f.Offset:]
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *Repo[T, PT]) Get(_ context.Context, id string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if r.Err != nil {
		return zero, r.Err
	}
	for _, row := range r.rows {
		if PT(&row).Base().ID == id {
			return row, nil
		}
	}
	return zero, fmt.Errorf("%s %s: %w", r.table, id, apperr.ErrNotFound)
}

func (r *Repo[T, PT]) Insert(_ context.Context, row T) (T, error) {
	r.mu.Lock()
	if r.Err != nil {
		r.mu.Unlock()
		return row, r.Err
	}
	rec := PT(&row)
	if err := rec.Validate(); err != nil {
		r.mu.Unlock()
		return row, apperr.Validation(err)
	}
	if rec.Base().ID == "" {
		rec.Base().ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.Base().CreatedAt = now
	rec.Base().UpdatedAt = now
	r.rows = append(r.rows, row)
	r.Inserts++
	r.mu.Unlock()

	r.publish(entity.Insert, row)
	return row, nil
}

func (r *Repo[T, PT]) Update(_ context.Context, id string, patch map[string]any) (T, error) {
	r.mu.Lock()
	var zero T
	if r.Err != nil {
		r.mu.Unlock()
		return zero, r.Err
	}
	for i := range r.rows {
		if PT(&r.rows[i]).Base().ID != id {
			continue
		}
		raw, _ := json.Marshal(r.rows[i])
		var fields map[string]any
		_ = json.Unmarshal(raw, &fields)
		for k, v := range patch {
			if k == "id" || k == "created_at" {
				continue
			}
			fields[k] = v
		}
		merged, err := json.Marshal(fields)
		if err != nil {
			r.mu.Unlock()
			return zero, apperr.Validation(err)
		}
		var next T
		if err := json.Unmarshal(merged, &next); err != nil {
			r.mu.Unlock()
			return zero, apperr.Validation(err)
		}
		if err := PT(&next).Validate(); err != nil {
			r.mu.Unlock()
			return zero, apperr.Validation(err)
		}
		PT(&next).Base().UpdatedAt = time.Now().UTC()
		r.rows[i] = next
		r.mu.Unlock()
		r.publish(entity.Update, next)
		return next, nil
	}
	r.mu.Unlock()
	return zero, fmt.Errorf("%s %s: %w", r.table, id, apperr.ErrNotFound)
}

func (r *Repo[T, PT]) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	if r.Err != nil {
		r.mu.Unlock()
		return r.Err
	}
	for i := range r.rows {
		if PT(&r.rows[i]).Base().ID == id {
			row := r.rows[i]
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			r.mu.Unlock()
			r.publish(entity.Delete, row)
			return nil
		}
	}
	r.mu.Unlock()
	return fmt.Errorf("%s %s: %w", r.table, id, apperr.ErrNotFound)
}

func (r *Repo[T, PT]) publish(typ entity.ChangeType, row T) {
	if r.feed == nil {
		return
	}
	rec := PT(&row)
	raw, _ := json.Marshal(row)
	r.feed.Publish(entity.Change{
		Table:      r.table,
		Type:       typ,
		ID:         rec.Base().ID,
		PropertyID: rec.Scope(),
		Record:     raw,
		At:         time.Now().UTC(),
	})
}

// Feed is an in-memory entity.Feed.
type Feed struct {
	mu   sync.Mutex
	subs map[chan entity.Change]map[string]bool
	Err  error
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: map[chan entity.Change]map[string]bool{}}
}

func (f *Feed) Subscribe(ctx context.Context, tables ...string) (<-chan entity.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	ch := make(chan entity.Change, 64)
	want := map[string]bool{}
	for _, t := range tables {
		want[t] = true
	}
	f.subs[ch] = want
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}()
	return ch, nil
}

// Publish delivers c to matching subscribers, dropping it for full ones.
func (f *Feed) Publish(c entity.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch, want := range f.subs {
		if len(want) > 0 && !want[c.Table] {
			continue
		}
		select {
		case ch <- c:
		default:
		}
	}
}

// Drop closes every subscription, simulating a lost connection.
func (f *Feed) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		close(ch)
		delete(f.subs, ch)
	}
}

// Subscribers returns the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
