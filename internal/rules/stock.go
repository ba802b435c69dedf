// Package rules derives display state (stock status, claim deadlines) from
// stored fields and the current date.
package rules

import "github.com/starford/staykeep/internal/models"

// StockStatus is the derived restock state of an item.
type StockStatus string

// Stock statuses.
const (
	StockOut StockStatus = "Out"
	StockLow StockStatus = "Low"
	StockOK  StockStatus = "OK"
)

// Stock classifies a quantity against its restock threshold.
func Stock(quantity, threshold int) StockStatus {
	switch {
	case quantity <= 0:
		return StockOut
	case quantity <= threshold:
		return StockLow
	default:
		return StockOK
	}
}

// ItemStock is Stock applied to an inventory item.
func ItemStock(it models.InventoryItem) StockStatus {
	return Stock(it.CurrentQuantity, it.RestockThreshold)
}

// AdjustStock applies delta to the item's quantity, clamping at zero. When
// the new quantity is at or below the threshold the item is flagged for
// restock. The flag is never cleared here; clearing it belongs to the
// restock workflow.
func AdjustStock(it models.InventoryItem, delta int) models.InventoryItem {
	q := it.CurrentQuantity + delta
	if q < 0 {
		q = 0
	}
	it.CurrentQuantity = q
	if q <= it.RestockThreshold {
		it.RestockRequested = true
	}
	return it
}

// StockPatch is the update patch that persists AdjustStock's result.
func StockPatch(it models.InventoryItem) map[string]any {
	return map[string]any{
		"current_quantity":  it.CurrentQuantity,
		"restock_requested": it.RestockRequested,
	}
}

// NeedsRestock returns the items that are Low or Out, in input order.
func NeedsRestock(items []models.InventoryItem) []models.InventoryItem {
	var out []models.InventoryItem
	for _, it := range items {
		if ItemStock(it) != StockOK {
			out = append(out, it)
		}
	}
	return out
}

// UnitPrice derives a per-unit price: package cost split across units when
// both are known and units is positive, else the flat cost.
func UnitPrice(packageCost *float64, unitsPerPackage *int, flat *float64) *float64 {
	if packageCost != nil && unitsPerPackage != nil && *unitsPerPackage > 0 {
		v := *packageCost / float64(*unitsPerPackage)
		return &v
	}
	if flat == nil {
		return nil
	}
	v := *flat
	return &v
}

// InventoryValue is the sum of quantity times unit price. Items without a
// price count as zero.
func InventoryValue(items []models.InventoryItem) float64 {
	var total float64
	for _, it := range items {
		if it.UnitPrice != nil {
			total += float64(it.CurrentQuantity) * *it.UnitPrice
		}
	}
	return total
}
