package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/models"
)

func record(table string) (models.Record, error) {
	rec, ok := models.New(table)
	if !ok {
		return nil, fmt.Errorf("store: unknown table %q: %w", table, apperr.ErrNotFound)
	}
	return rec, nil
}

// decode unmarshals doc into a fresh record of table and validates it.
func decode(table string, doc []byte) (models.Record, error) {
	rec, err := record(table)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(doc, rec); err != nil {
		return nil, apperr.Validation(fmt.Errorf("decode %s: %w", table, err))
	}
	if err := rec.Validate(); err != nil {
		return nil, apperr.Validation(err)
	}
	return rec, nil
}

// List returns the documents of table matching f.
func (db *DB) List(ctx context.Context, table string, f entity.Filter) ([]json.RawMessage, error) {
	if _, err := record(table); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, apperr.Validation(err)
	}

	var (
		where []string
		args  []any
	)
	if models.Scoped(table) {
		if frag, fargs := f.Scope.SQL("property_id"); frag != "" {
			where = append(where, frag)
			args = append(args, fargs...)
		}
		if frag, fargs := f.Access.SQL("property_id"); frag != "" {
			where = append(where, frag)
			args = append(args, fargs...)
		}
	}
	if len(f.IDs) > 0 {
		where = append(where, "id IN ("+strings.TrimSuffix(strings.Repeat("?,", len(f.IDs)), ",")+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}

	q := "SELECT doc FROM " + table
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	switch f.Order {
	case entity.OrderCreatedDesc:
		q += " ORDER BY created_at DESC, id"
	case entity.OrderName:
		q += " ORDER BY LOWER(name), id"
	default:
		q += " ORDER BY created_at, id"
	}
	switch {
	case f.Limit > 0:
		q += " LIMIT ?"
		args = append(args, f.Limit)
	case f.Offset > 0 && db.dialect == DriverPostgres:
		q += " LIMIT ALL"
	case f.Offset > 0:
		q += " LIMIT -1"
	}
	if f.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", table, err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", table, err)
		}
		out = append(out, json.RawMessage(doc))
	}
	return out, rows.Err()
}

// Get returns one document by id.
func (db *DB) Get(ctx context.Context, table, id string) (json.RawMessage, error) {
	if _, err := record(table); err != nil {
		return nil, err
	}
	return db.getDoc(ctx, db.conn, table, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) getDoc(ctx context.Context, q queryer, table, id string) (json.RawMessage, error) {
	var doc []byte
	err := q.QueryRowContext(ctx, db.rebind("SELECT doc FROM "+table+" WHERE id = ?"), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %s %s: %w", table, id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", table, err)
	}
	return json.RawMessage(doc), nil
}

// FindByName returns the first document of table whose name column equals
// name ignoring case.
func (db *DB) FindByName(ctx context.Context, table, name string) (json.RawMessage, error) {
	if _, err := record(table); err != nil {
		return nil, err
	}
	var doc []byte
	err := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT doc FROM "+table+" WHERE LOWER(name) = LOWER(?) ORDER BY created_at LIMIT 1"),
		name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %s named %q: %w", table, name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", table, err)
	}
	return json.RawMessage(doc), nil
}

// Insert validates doc, assigns id and timestamps, and stores it.
func (db *DB) Insert(ctx context.Context, table string, doc []byte) (json.RawMessage, error) {
	rec, err := decode(table, doc)
	if err != nil {
		return nil, err
	}
	meta := rec.Base()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	now := db.now()
	meta.CreatedAt = now
	meta.UpdatedAt = now

	out, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", table, err)
	}
	_, err = db.conn.ExecContext(ctx, db.rebind(
		"INSERT INTO "+table+" (id, property_id, name, created_at, updated_at, doc) VALUES (?, ?, ?, ?, ?, ?)"),
		meta.ID, nullable(rec.Scope()), rec.Label(), formatTime(now), formatTime(now), string(out))
	if err != nil {
		return nil, wrapWriteErr("insert", table, err)
	}

	db.emit(entity.Change{Table: table, Type: entity.Insert, ID: meta.ID, PropertyID: rec.Scope(), Record: out, At: now})
	return out, nil
}

// Update applies patch as a shallow merge over the stored document. The id
// and timestamps cannot be patched.
func (db *DB) Update(ctx context.Context, table, id string, patch map[string]any) (json.RawMessage, error) {
	if _, err := record(table); err != nil {
		return nil, err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	current, err := db.getDoc(ctx, tx, table, id)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(current, &fields); err != nil {
		return nil, fmt.Errorf("store: decode stored %s: %w", table, err)
	}
	for k, v := range patch {
		switch k {
		case "id", "created_at", "updated_at":
			continue
		}
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, apperr.Validation(err)
	}
	rec, err := decode(table, merged)
	if err != nil {
		return nil, err
	}
	now := db.now()
	rec.Base().UpdatedAt = now

	out, err := db.writeDoc(ctx, tx, table, rec)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}

	db.emit(entity.Change{Table: table, Type: entity.Update, ID: id, PropertyID: rec.Scope(), Record: out, At: now})
	return out, nil
}

func (db *DB) writeDoc(ctx context.Context, tx *sql.Tx, table string, rec models.Record) (json.RawMessage, error) {
	out, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", table, err)
	}
	meta := rec.Base()
	_, err = tx.ExecContext(ctx, db.rebind(
		"UPDATE "+table+" SET property_id = ?, name = ?, updated_at = ?, doc = ? WHERE id = ?"),
		nullable(rec.Scope()), rec.Label(), formatTime(meta.UpdatedAt), string(out), meta.ID)
	if err != nil {
		return nil, wrapWriteErr("update", table, err)
	}
	return out, nil
}

// Delete removes a row. Deleting a property detaches every scoped row that
// referenced it: assignments are removed, other rows become unassigned.
func (db *DB) Delete(ctx context.Context, table, id string) error {
	if _, err := record(table); err != nil {
		return err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	doc, err := db.getDoc(ctx, tx, table, id)
	if err != nil {
		return err
	}
	rec, err := record(table)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, rec); err != nil {
		return fmt.Errorf("store: decode stored %s: %w", table, err)
	}

	now := db.now()
	var changes []entity.Change
	if table == models.TableProperties {
		changes, err = db.detachProperty(ctx, tx, id)
		if err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, db.rebind("DELETE FROM "+table+" WHERE id = ?"), id); err != nil {
		return fmt.Errorf("store: delete %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	changes = append(changes, entity.Change{Table: table, Type: entity.Delete, ID: id, PropertyID: rec.Scope(), At: now})
	db.emit(changes...)
	return nil
}

func (db *DB) detachProperty(ctx context.Context, tx *sql.Tx, propertyID string) ([]entity.Change, error) {
	var changes []entity.Change
	now := db.now()
	for _, table := range models.ScopedTables() {
		rows, err := tx.QueryContext(ctx, db.rebind("SELECT doc FROM "+table+" WHERE property_id = ?"), propertyID)
		if err != nil {
			return nil, fmt.Errorf("store: scan dependents of %s: %w", table, err)
		}
		var docs [][]byte
		for rows.Next() {
			var doc []byte
			if err := rows.Scan(&doc); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: scan dependents of %s: %w", table, err)
			}
			docs = append(docs, doc)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for _, doc := range docs {
			rec, err := record(table)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(doc, rec); err != nil {
				return nil, fmt.Errorf("store: decode stored %s: %w", table, err)
			}
			rowID := rec.Base().ID

			if table == models.TablePropertyAssignments {
				if _, err := tx.ExecContext(ctx, db.rebind("DELETE FROM "+table+" WHERE id = ?"), rowID); err != nil {
					return nil, fmt.Errorf("store: delete assignment: %w", err)
				}
				pid := propertyID
				changes = append(changes, entity.Change{Table: table, Type: entity.Delete, ID: rowID, PropertyID: &pid, At: now})
				continue
			}

			var fields map[string]any
			if err := json.Unmarshal(doc, &fields); err != nil {
				return nil, fmt.Errorf("store: decode stored %s: %w", table, err)
			}
			fields["property_id"] = nil
			fields["updated_at"] = now
			merged, err := json.Marshal(fields)
			if err != nil {
				return nil, fmt.Errorf("store: encode %s: %w", table, err)
			}
			if rec, err = record(table); err != nil {
				return nil, err
			}
			if err := json.Unmarshal(merged, rec); err != nil {
				return nil, fmt.Errorf("store: detach %s: %w", table, err)
			}
			out, err := db.writeDoc(ctx, tx, table, rec)
			if err != nil {
				return nil, err
			}
			changes = append(changes, entity.Change{Table: table, Type: entity.Update, ID: rowID, Record: out, At: now})
		}
	}
	return changes, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
