package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// FallbackCategory is the category assigned to items with no better match.
const FallbackCategory = "Other"

// InventoryCategory groups inventory items. Names are unique ignoring case.
type InventoryCategory struct {
	Meta
	Name string `json:"name"`
}

func (c *InventoryCategory) Scope() *string { return nil }
func (c *InventoryCategory) Label() string  { return c.Name }

// Validate validates the category.
func (c *InventoryCategory) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 100)),
	)
}

// InventoryItem is a stocked supply at a property.
type InventoryItem struct {
	Meta
	Name             string   `json:"name"`
	CategoryID       *string  `json:"category_id"`
	PropertyID       *string  `json:"property_id"`
	CurrentQuantity  int      `json:"current_quantity"`
	RestockThreshold int      `json:"restock_threshold"`
	UnitPrice        *float64 `json:"unit_price"`
	PackageCost      *float64 `json:"package_cost"`
	UnitsPerPackage  *int     `json:"units_per_package"`
	Supplier         string   `json:"supplier"`
	SupplierURL      string   `json:"supplier_url"`
	Notes            string   `json:"notes"`
	RestockRequested bool     `json:"restock_requested"`
	CreatedBy        *string  `json:"created_by"`
}

func (i *InventoryItem) Scope() *string { return i.PropertyID }
func (i *InventoryItem) Label() string  { return i.Name }

// Validate validates the item.
func (i *InventoryItem) Validate() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&i.CurrentQuantity, validation.Min(0)),
		validation.Field(&i.RestockThreshold, validation.Min(0)),
		validation.Field(&i.UnitPrice, validation.Min(0.0)),
		validation.Field(&i.PackageCost, validation.Min(0.0)),
		validation.Field(&i.UnitsPerPackage, validation.Min(1)),
		validation.Field(&i.SupplierURL, is.URL),
	)
}

// Restock request states.
const (
	RestockPending   = "pending"
	RestockOrdered   = "ordered"
	RestockReceived  = "received"
	RestockCancelled = "cancelled"
)

// RestockRequest asks for more of an inventory item.
type RestockRequest struct {
	Meta
	ItemID      string  `json:"item_id"`
	PropertyID  *string `json:"property_id"`
	Quantity    int     `json:"quantity"`
	Status      string  `json:"status"`
	RequestedBy *string `json:"requested_by"`
	Notes       string  `json:"notes"`
}

func (r *RestockRequest) Scope() *string { return r.PropertyID }
func (r *RestockRequest) Label() string  { return r.ItemID }

// Validate validates the request.
func (r *RestockRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ItemID, validation.Required),
		validation.Field(&r.Quantity, validation.Required, validation.Min(1)),
		validation.Field(&r.Status, validation.Required,
			validation.In(RestockPending, RestockOrdered, RestockReceived, RestockCancelled)),
	)
}
