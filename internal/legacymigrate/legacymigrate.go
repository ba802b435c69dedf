// Package legacymigrate moves inventory kept in durable client storage by
// older releases into the entity store, once per installation.
package legacymigrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/identity"
	"github.com/starford/staykeep/internal/kvstore"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/notify"
	"github.com/starford/staykeep/internal/rules"
)

// Durable storage keys.
const (
	KeyLegacyItems = "inventory"
	KeyComplete    = "inventoryMigrationComplete"
)

// ClaimPrefix prefixes the backend claim key; the profile id follows.
const ClaimPrefix = "inventory-migration:"

const defaultRequestTimeout = 15 * time.Second

// LegacyItem is an inventory entry as older releases stored it locally.
type LegacyItem struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Category         string   `json:"category"`
	Quantity         int      `json:"quantity"`
	MinQuantity      int      `json:"minQuantity"`
	Cost             *float64 `json:"cost"`
	PackageCost      *float64 `json:"packageCost"`
	UnitsPerPackage  *int     `json:"unitsPerPackage"`
	Supplier         string   `json:"supplier"`
	SupplierURL      string   `json:"supplierUrl"`
	Notes            string   `json:"notes"`
	PropertyID       *string  `json:"propertyId"`
	RestockRequested bool     `json:"restockRequested"`
}

// Status says how a Migrate call ended.
type Status string

const (
	StatusAuthLoading   Status = "auth_loading"
	StatusAlreadyDone   Status = "already_done"
	StatusNoLegacyData  Status = "no_legacy_data"
	StatusNoUser        Status = "no_user"
	StatusRemoteHasData Status = "remote_has_data"
	StatusClaimLost     Status = "claim_lost"
	StatusInProgress    Status = "in_progress"
	StatusMigrated      Status = "migrated"
	StatusFailed        Status = "failed"
)

// Result reports the outcome of Migrate.
type Result struct {
	Status   Status `json:"status"`
	Migrated int    `json:"migrated"`
	// Skipped counts local items left behind because the remote already
	// had inventory.
	Skipped int `json:"skipped,omitempty"`
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithClaimer makes the migrator take a backend claim before inserting, so
// only one session migrates a profile's data.
func WithClaimer(c entity.Claimer) Option {
	return func(m *Migrator) { m.claimer = c }
}

// WithProfileLookup resolves the profile id when the user carries none.
func WithProfileLookup(l identity.ProfileLookup) Option {
	return func(m *Migrator) { m.profiles = l }
}

// WithRequestTimeout bounds each backend call.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Migrator) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l
		}
	}
}

// Migrator runs the one-time migration. Migrate is safe to call repeatedly
// and concurrently; a call made while another is running returns at once.
type Migrator struct {
	items      entity.Repository[models.InventoryItem]
	categories entity.Repository[models.InventoryCategory]
	kv         kvstore.Store
	notifier   notify.Notifier
	claimer    entity.Claimer
	profiles   identity.ProfileLookup
	logger     *slog.Logger
	timeout    time.Duration

	running atomic.Bool
}

// New builds a Migrator.
func New(
	items entity.Repository[models.InventoryItem],
	categories entity.Repository[models.InventoryCategory],
	kv kvstore.Store,
	notifier notify.Notifier,
	opts ...Option,
) *Migrator {
	m := &Migrator{
		items:      items,
		categories: categories,
		kv:         kv,
		notifier:   notifier,
		logger:     slog.Default(),
		timeout:    defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Complete reports whether the completion flag is set.
func (m *Migrator) Complete() bool {
	v, ok := m.kv.Get(KeyComplete)
	return ok && v == "true"
}

func (m *Migrator) markComplete() error {
	return m.kv.Set(KeyComplete, "true")
}

func hasLegacyData(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "", "[]", "null":
		return false
	}
	return true
}

// Migrate copies legacy inventory to the entity store. Guards are checked in
// order: auth still loading, already complete, nothing to migrate, no user,
// remote already populated. The completion flag stays unset on failure so
// the next call retries.
func (m *Migrator) Migrate(ctx context.Context, user *identity.User, authLoading bool) (Result, error) {
	if authLoading {
		return Result{Status: StatusAuthLoading}, nil
	}
	if !m.running.CompareAndSwap(false, true) {
		return Result{Status: StatusInProgress}, nil
	}
	defer m.running.Store(false)

	if m.Complete() {
		return Result{Status: StatusAlreadyDone}, nil
	}
	raw, _ := m.kv.Get(KeyLegacyItems)
	if !hasLegacyData(raw) {
		return Result{Status: StatusNoLegacyData}, m.markComplete()
	}
	if user == nil {
		return Result{Status: StatusNoUser}, nil
	}

	existing, err := m.listItems(ctx)
	if err != nil {
		return m.fail(err)
	}
	if len(existing) > 0 {
		res := Result{Status: StatusRemoteHasData, Skipped: legacyCount(raw)}
		if res.Skipped > 0 {
			m.logger.Warn("legacy inventory not migrated: remote already has items",
				slog.Int("skipped", res.Skipped))
			m.notifier.Info(fmt.Sprintf("%d local inventory items were not migrated because the server already has inventory", res.Skipped))
		}
		return res, m.markComplete()
	}

	profileID := m.resolveProfile(ctx, user)
	claimKey := ClaimPrefix + profileID
	if profileID == "" {
		claimKey = ClaimPrefix + user.UserID
	}
	if m.claimer != nil {
		won, err := m.claim(ctx, claimKey, user.UserID)
		if err != nil {
			return m.fail(err)
		}
		if !won {
			m.logger.Info("inventory migration claimed elsewhere", slog.String("claim", claimKey))
			return Result{Status: StatusClaimLost}, m.markComplete()
		}
	}

	n, err := m.run(ctx, raw, profileID)
	if err != nil {
		if m.claimer != nil {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
			if rerr := m.claimer.Release(rctx, claimKey); rerr != nil {
				m.logger.Error("release migration claim", slog.String("claim", claimKey), slog.String("error", rerr.Error()))
			}
			cancel()
		}
		res, ferr := m.fail(err)
		res.Migrated = n
		return res, ferr
	}

	if err := m.markComplete(); err != nil {
		return m.fail(err)
	}
	m.logger.Info("inventory migrated", slog.Int("items", n), slog.String("profile_id", profileID))
	m.notifier.Info(fmt.Sprintf("Migrated %d inventory items", n))
	return Result{Status: StatusMigrated, Migrated: n}, nil
}

// legacyCount returns the number of entries in the stored legacy list, or
// zero when it cannot be parsed.
func legacyCount(raw string) int {
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return 0
	}
	return len(entries)
}

func (m *Migrator) fail(err error) (Result, error) {
	m.notifier.Error("Inventory migration failed", err)
	return Result{Status: StatusFailed}, fmt.Errorf("legacymigrate: %w", err)
}

func (m *Migrator) listItems(ctx context.Context) ([]models.InventoryItem, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.items.List(ctx, entity.Filter{Limit: 1})
}

func (m *Migrator) claim(ctx context.Context, key, owner string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.claimer.Claim(ctx, key, owner)
}

func (m *Migrator) resolveProfile(ctx context.Context, user *identity.User) string {
	if user.ProfileID != "" || m.profiles == nil {
		return user.ProfileID
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	p, err := m.profiles.ProfileByUserID(ctx, user.UserID)
	if err != nil {
		m.logger.Warn("resolve profile", slog.String("user_id", user.UserID), slog.String("error", err.Error()))
		return ""
	}
	return p.ID
}

// run performs the inserts and returns how many items were written. After a
// partial failure the local list is cut down to the items not yet written.
func (m *Migrator) run(ctx context.Context, raw, profileID string) (int, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return 0, fmt.Errorf("parse legacy inventory: %w", err)
	}
	legacy := make([]LegacyItem, len(entries))
	for i, e := range entries {
		if err := json.Unmarshal(e, &legacy[i]); err != nil {
			return 0, fmt.Errorf("parse legacy inventory item %d: %w", i, err)
		}
	}

	cats, err := m.categoryMap(ctx)
	if err != nil {
		return 0, err
	}

	var createdBy *string
	if profileID != "" {
		createdBy = &profileID
	}

	n := 0
	for _, li := range legacy {
		catID, err := m.resolveCategory(ctx, cats, li.Category)
		if err == nil {
			ictx, cancel := context.WithTimeout(ctx, m.timeout)
			_, err = m.items.Insert(ictx, convert(li, catID, createdBy))
			cancel()
			if err != nil {
				err = fmt.Errorf("insert %q: %w", li.Name, err)
			}
		}
		if err != nil {
			if n > 0 {
				m.keepRemaining(entries[n:])
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (m *Migrator) keepRemaining(entries []json.RawMessage) {
	rest, err := json.Marshal(entries)
	if err == nil {
		err = m.kv.Set(KeyLegacyItems, string(rest))
	}
	if err != nil {
		m.logger.Error("store remaining legacy inventory", slog.String("error", err.Error()))
	}
}

// categoryMap indexes remote categories by lower-cased name and makes sure
// the fallback category exists.
func (m *Migrator) categoryMap(ctx context.Context) (map[string]string, error) {
	lctx, cancel := context.WithTimeout(ctx, m.timeout)
	list, err := m.categories.List(lctx, entity.Filter{})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	cats := make(map[string]string, len(list)+1)
	for _, c := range list {
		cats[strings.ToLower(c.Name)] = c.ID
	}
	if _, ok := cats[strings.ToLower(models.FallbackCategory)]; !ok {
		if _, err := m.createCategory(ctx, cats, models.FallbackCategory); err != nil {
			return nil, err
		}
	}
	return cats, nil
}

func (m *Migrator) resolveCategory(ctx context.Context, cats map[string]string, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = models.FallbackCategory
	}
	if id, ok := cats[strings.ToLower(name)]; ok {
		return id, nil
	}
	return m.createCategory(ctx, cats, name)
}

func (m *Migrator) createCategory(ctx context.Context, cats map[string]string, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	c, err := m.categories.Insert(ctx, models.InventoryCategory{Name: name})
	if err != nil {
		return "", fmt.Errorf("create category %q: %w", name, err)
	}
	cats[strings.ToLower(c.Name)] = c.ID
	return c.ID, nil
}

func convert(li LegacyItem, categoryID string, createdBy *string) models.InventoryItem {
	return models.InventoryItem{
		Name:             li.Name,
		CategoryID:       &categoryID,
		PropertyID:       li.PropertyID,
		CurrentQuantity:  max(li.Quantity, 0),
		RestockThreshold: max(li.MinQuantity, 0),
		UnitPrice:        rules.UnitPrice(li.PackageCost, li.UnitsPerPackage, li.Cost),
		PackageCost:      li.PackageCost,
		UnitsPerPackage:  li.UnitsPerPackage,
		Supplier:         li.Supplier,
		SupplierURL:      li.SupplierURL,
		Notes:            li.Notes,
		RestockRequested: li.RestockRequested,
		CreatedBy:        createdBy,
	}
}
