package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/models"
)

// Record constrains T so that *T is a models.Record.
type Record[T any] interface {
	*T
	models.Record
}

// Collection is the remote repository of one table.
type Collection[T any, PT Record[T]] struct {
	c     *Client
	table string
}

// NewCollection returns the collection for table.
func NewCollection[T any, PT Record[T]](c *Client, table string) *Collection[T, PT] {
	return &Collection[T, PT]{c: c, table: table}
}

var _ entity.Repository[models.Property] = (*Collection[models.Property, *models.Property])(nil)

func (col *Collection[T, PT]) List(ctx context.Context, f entity.Filter) ([]T, error) {
	if err := f.Validate(); err != nil {
		return nil, apperr.Validation(err)
	}
	var resp struct {
		Items []T `json:"items"`
	}
	if _, err := col.c.do(ctx, http.MethodGet, col.table, f.Values(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		resp.Items = []T{}
	}
	return resp.Items, nil
}

func (col *Collection[T, PT]) Get(ctx context.Context, id string) (T, error) {
	var row T
	_, err := col.c.do(ctx, http.MethodGet, col.table+"/"+url.PathEscape(id), nil, nil, &row)
	return row, err
}

// Insert validates row locally before sending it.
func (col *Collection[T, PT]) Insert(ctx context.Context, row T) (T, error) {
	if err := PT(&row).Validate(); err != nil {
		return row, apperr.Validation(err)
	}
	var created T
	if _, err := col.c.do(ctx, http.MethodPost, col.table, nil, row, &created); err != nil {
		return row, err
	}
	return created, nil
}

func (col *Collection[T, PT]) Update(ctx context.Context, id string, patch map[string]any) (T, error) {
	var row T
	_, err := col.c.do(ctx, http.MethodPatch, col.table+"/"+url.PathEscape(id), nil, patch, &row)
	return row, err
}

func (col *Collection[T, PT]) Delete(ctx context.Context, id string) error {
	_, err := col.c.do(ctx, http.MethodDelete, col.table+"/"+url.PathEscape(id), nil, nil, nil)
	return err
}
