// Package models defines the persisted entity types of the property dashboard.
package models

import (
	"sort"
	"time"
)

// Table names.
const (
	TableProperties          = "properties"
	TablePropertyAssignments = "property_assignments"
	TableProfiles            = "profiles"
	TableInventoryCategories = "inventory_categories"
	TableInventoryItems      = "inventory_items"
	TableRestockRequests     = "restock_requests"
	TableChecklistTemplates  = "checklist_templates"
	TableInspectionRecords   = "inspection_records"
	TableDamageReports       = "damage_reports"
)

// Meta carries the identity and timestamps every row has.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Base exposes the embedded Meta to generic code.
func (m *Meta) Base() *Meta { return m }

// Record is implemented by every entity stored in a table.
type Record interface {
	Base() *Meta
	// Scope returns the owning property id; nil means unassigned or unscoped.
	Scope() *string
	// Label is the value kept in the indexed name column: the display name
	// for most tables, the owning user or profile id for identity rows.
	Label() string
	Validate() error
}

type tableInfo struct {
	scoped bool
	new    func() Record
}

var tables = map[string]tableInfo{
	TableProperties:          {false, func() Record { return &Property{} }},
	TablePropertyAssignments: {true, func() Record { return &PropertyAssignment{} }},
	TableProfiles:            {false, func() Record { return &Profile{} }},
	TableInventoryCategories: {false, func() Record { return &InventoryCategory{} }},
	TableInventoryItems:      {true, func() Record { return &InventoryItem{} }},
	TableRestockRequests:     {true, func() Record { return &RestockRequest{} }},
	TableChecklistTemplates:  {true, func() Record { return &ChecklistTemplate{} }},
	TableInspectionRecords:   {true, func() Record { return &InspectionRecord{} }},
	TableDamageReports:       {true, func() Record { return &DamageReport{} }},
}

// New returns an empty record for table, or false for an unknown table.
func New(table string) (Record, bool) {
	info, ok := tables[table]
	if !ok {
		return nil, false
	}
	return info.new(), true
}

// Scoped reports whether rows of table carry a property reference.
func Scoped(table string) bool {
	return tables[table].scoped
}

// Tables lists all known table names in sorted order.
func Tables() []string {
	out := make([]string, 0, len(tables))
	for name := range tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ScopedTables lists the tables that reference a property.
func ScopedTables() []string {
	var out []string
	for _, name := range Tables() {
		if tables[name].scoped {
			out = append(out, name)
		}
	}
	return out
}
