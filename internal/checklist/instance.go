package checklist

import (
	"time"

	"github.com/google/uuid"

	"github.com/starford/staykeep/internal/models"
)

// Instance is an in-progress inspection derived from a template.
type Instance struct {
	TemplateID string                  `json:"template_id"`
	PropertyID *string                 `json:"property_id"`
	StartedAt  time.Time               `json:"started_at"`
	Items      []models.InspectionItem `json:"items"`
}

// NewInstance clones the template's items with fresh ids, all unchecked.
func NewInstance(tpl models.ChecklistTemplate, propertyID *string, now time.Time) Instance {
	items := make([]models.InspectionItem, 0, len(tpl.Items))
	for _, ti := range tpl.Items {
		items = append(items, models.InspectionItem{
			ID:          uuid.NewString(),
			Description: ti.Description,
		})
	}
	if propertyID == nil {
		propertyID = tpl.PropertyID
	}
	return Instance{TemplateID: tpl.ID, PropertyID: propertyID, StartedAt: now, Items: items}
}

// Progress returns completed and total item counts.
func (in Instance) Progress() (done, total int) {
	for _, it := range in.Items {
		if it.Completed {
			done++
		}
	}
	return done, len(in.Items)
}

// Record snapshots the instance as an inspection record.
func Record(in Instance, tpl models.ChecklistTemplate, at time.Time, by *string) models.InspectionRecord {
	items := make([]models.InspectionItem, len(in.Items))
	copy(items, in.Items)
	return models.InspectionRecord{
		TemplateID:   tpl.ID,
		TemplateName: tpl.Name,
		PropertyID:   in.PropertyID,
		Date:         at,
		Items:        items,
		NextDueDate:  NextOccurrence(tpl.FrequencyType, tpl.FrequencyDays, at),
		InspectedBy:  by,
	}
}

// NextOccurrence returns when a template with the given frequency is next
// due after from, or nil for unscheduled templates.
func NextOccurrence(frequency string, days *int, from time.Time) *time.Time {
	var next time.Time
	switch frequency {
	case models.FrequencyDaily:
		next = from.AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		next = from.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		next = from.AddDate(0, 1, 0)
	case models.FrequencyCustom:
		if days == nil || *days <= 0 {
			return nil
		}
		next = from.AddDate(0, 0, *days)
	default:
		return nil
	}
	return &next
}
