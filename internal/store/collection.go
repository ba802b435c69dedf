package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/starford/staykeep/internal/entity"
)

// Collection is a typed, in-process view of one table.
type Collection[T any] struct {
	db    *DB
	table string
}

// NewCollection binds table of db to the row type T.
func NewCollection[T any](db *DB, table string) *Collection[T] {
	return &Collection[T]{db: db, table: table}
}

var _ entity.Repository[struct{}] = (*Collection[struct{}])(nil)

// List implements entity.Repository.
func (c *Collection[T]) List(ctx context.Context, f entity.Filter) ([]T, error) {
	docs, err := c.db.List(ctx, c.table, f)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var row T
		if err := json.Unmarshal(doc, &row); err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", c.table, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// Get implements entity.Repository.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var row T
	doc, err := c.db.Get(ctx, c.table, id)
	if err != nil {
		return row, err
	}
	err = json.Unmarshal(doc, &row)
	return row, err
}

// Insert implements entity.Repository.
func (c *Collection[T]) Insert(ctx context.Context, row T) (T, error) {
	var out T
	in, err := json.Marshal(row)
	if err != nil {
		return out, fmt.Errorf("store: encode %s: %w", c.table, err)
	}
	doc, err := c.db.Insert(ctx, c.table, in)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(doc, &out)
	return out, err
}

// Update implements entity.Repository.
func (c *Collection[T]) Update(ctx context.Context, id string, patch map[string]any) (T, error) {
	var out T
	doc, err := c.db.Update(ctx, c.table, id, patch)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(doc, &out)
	return out, err
}

// Delete implements entity.Repository.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.db.Delete(ctx, c.table, id)
}
