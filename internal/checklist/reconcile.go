// Package checklist keeps in-progress inspections in step with the
// templates they were started from.
package checklist

import (
	"github.com/google/uuid"

	"github.com/starford/staykeep/internal/models"
)

// KeyFunc decides which template item an active item corresponds to. Items
// with equal keys are treated as the same item.
type KeyFunc func(description string) string

// ByDescription matches items on their exact description text. Renaming an
// item therefore starts it over, and duplicate descriptions pair up in order.
func ByDescription(description string) string {
	return description
}

// Reconcile merges an edited template's items into an active instance using
// ByDescription.
func Reconcile(active []models.InspectionItem, template []models.ChecklistItem) []models.InspectionItem {
	return ReconcileWith(active, template, ByDescription)
}

// ReconcileWith rebuilds active in template order. A template item that
// matches an unused active item keeps that item's id, completion and notes
// and takes the template's description. Unmatched template items become new
// unchecked items. Active items with no template counterpart are dropped.
// Each active item is consumed at most once; among equal keys the earliest
// active item wins.
func ReconcileWith(active []models.InspectionItem, template []models.ChecklistItem, key KeyFunc) []models.InspectionItem {
	byKey := make(map[string][]int, len(active))
	for i, it := range active {
		k := key(it.Description)
		byKey[k] = append(byKey[k], i)
	}

	out := make([]models.InspectionItem, 0, len(template))
	for _, ti := range template {
		k := key(ti.Description)
		if idx := byKey[k]; len(idx) > 0 {
			match := active[idx[0]]
			byKey[k] = idx[1:]
			match.Description = ti.Description
			out = append(out, match)
			continue
		}
		out = append(out, models.InspectionItem{
			ID:          uuid.NewString(),
			Description: ti.Description,
			Completed:   false,
			Notes:       "",
		})
	}
	return out
}
