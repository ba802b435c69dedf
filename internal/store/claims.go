package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/models"
)

var _ entity.Claimer = (*DB)(nil)

// Claim inserts key unless it already exists. It reports whether this call
// created the row, which makes it safe under concurrent first runs.
func (db *DB) Claim(ctx context.Context, key, owner string) (bool, error) {
	if key == "" || owner == "" {
		return false, apperr.Validation(fmt.Errorf("claim key and owner are required"))
	}
	res, err := db.conn.ExecContext(ctx, db.rebind(
		"INSERT INTO migration_claims (claim_key, owner, claimed_at) VALUES (?, ?, ?) ON CONFLICT (claim_key) DO NOTHING"),
		key, owner, formatTime(db.now()))
	if err != nil {
		return false, fmt.Errorf("store: claim %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim %s: %w", key, err)
	}
	return n == 1, nil
}

// Release drops key so the work can be claimed again.
func (db *DB) Release(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM migration_claims WHERE claim_key = ?"), key); err != nil {
		return fmt.Errorf("store: release %s: %w", key, err)
	}
	return nil
}

// ProfileByUserID returns the profile owned by an identity user id.
func (db *DB) ProfileByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	doc, err := db.FindByName(ctx, models.TableProfiles, userID)
	if err != nil {
		return nil, err
	}
	var p models.Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("store: decode profile: %w", err)
	}
	return &p, nil
}

// AssignedPropertyIDs lists the properties a profile is assigned to.
func (db *DB) AssignedPropertyIDs(ctx context.Context, profileID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(
		"SELECT property_id FROM property_assignments WHERE name = ? AND property_id IS NOT NULL ORDER BY created_at"),
		profileID)
	if err != nil {
		return nil, fmt.Errorf("store: list assignments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan assignment: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
