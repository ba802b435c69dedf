package checklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/notify"
)

// Synchronizer edits templates and drives the inspections started from them.
type Synchronizer struct {
	templates entity.Repository[models.ChecklistTemplate]
	records   entity.Repository[models.InspectionRecord]
	active    *ActiveStore
	notifier  notify.Notifier
	now       func() time.Time
}

// NewSynchronizer wires a Synchronizer.
func NewSynchronizer(
	templates entity.Repository[models.ChecklistTemplate],
	records entity.Repository[models.InspectionRecord],
	active *ActiveStore,
	notifier notify.Notifier,
) *Synchronizer {
	return &Synchronizer{
		templates: templates,
		records:   records,
		active:    active,
		notifier:  notifier,
		now:       time.Now,
	}
}

// templatePatch lists the fields an editor may change.
func templatePatch(t models.ChecklistTemplate) map[string]any {
	return map[string]any{
		"name":                    t.Name,
		"items":                   t.Items,
		"property_id":             t.PropertyID,
		"frequency_type":          t.FrequencyType,
		"frequency_days":          t.FrequencyDays,
		"next_occurrence":         t.NextOccurrence,
		"notifications_enabled":   t.NotificationsEnabled,
		"notification_method":     t.NotificationMethod,
		"notification_days_ahead": t.NotificationDaysAhead,
	}
}

func assignItemIDs(items []models.ChecklistItem) []models.ChecklistItem {
	out := make([]models.ChecklistItem, len(items))
	for i, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		out[i] = it
	}
	return out
}

// CreateTemplate validates and stores a new template.
func (s *Synchronizer) CreateTemplate(ctx context.Context, t models.ChecklistTemplate) (models.ChecklistTemplate, error) {
	t.Items = assignItemIDs(t.Items)
	if t.FrequencyType == "" {
		t.FrequencyType = models.FrequencyNone
	}
	if err := t.Validate(); err != nil {
		s.notifier.Error("Template is incomplete", err)
		return t, apperr.Validation(err)
	}
	created, err := s.templates.Insert(ctx, t)
	if err != nil {
		s.notifier.Error("Could not save template", err)
		return t, err
	}
	return created, nil
}

// UpdateTemplate saves the edited template and, when an inspection from it
// is in progress, reconciles that inspection with the new item list.
func (s *Synchronizer) UpdateTemplate(ctx context.Context, t models.ChecklistTemplate) (models.ChecklistTemplate, error) {
	if t.ID == "" {
		return t, apperr.Validation(errors.New("template id is required"))
	}
	t.Items = assignItemIDs(t.Items)
	if err := t.Validate(); err != nil {
		s.notifier.Error("Template is incomplete", err)
		return t, apperr.Validation(err)
	}

	saved, err := s.templates.Update(ctx, t.ID, templatePatch(t))
	if err != nil {
		s.notifier.Error("Could not save template", err)
		return t, err
	}

	in, ok, err := s.active.Load(saved.ID)
	if err != nil {
		return saved, err
	}
	if ok {
		in.Items = Reconcile(in.Items, saved.Items)
		if err := s.active.Save(in); err != nil {
			s.notifier.Error("Could not update the inspection in progress", err)
			return saved, err
		}
	}
	return saved, nil
}

// Start resumes the in-progress inspection for a template or begins one.
func (s *Synchronizer) Start(ctx context.Context, templateID string, propertyID *string) (Instance, error) {
	if in, ok, err := s.active.Load(templateID); err != nil || ok {
		return in, err
	}
	tpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		s.notifier.Error("Could not load template", err)
		return Instance{}, err
	}
	in := NewInstance(tpl, propertyID, s.now())
	if err := s.active.Save(in); err != nil {
		return Instance{}, err
	}
	return in, nil
}

// Active returns the in-progress inspection for a template, if any.
func (s *Synchronizer) Active(templateID string) (Instance, bool, error) {
	return s.active.Load(templateID)
}

func (s *Synchronizer) editItem(templateID, itemID string, edit func(*models.InspectionItem)) (Instance, error) {
	in, ok, err := s.active.Load(templateID)
	if err != nil {
		return in, err
	}
	if !ok {
		return in, fmt.Errorf("checklist: no inspection in progress for %s: %w", templateID, apperr.ErrNotFound)
	}
	for i := range in.Items {
		if in.Items[i].ID == itemID {
			edit(&in.Items[i])
			return in, s.active.Save(in)
		}
	}
	return in, fmt.Errorf("checklist: item %s: %w", itemID, apperr.ErrNotFound)
}

// SetCompleted marks one item done or not done.
func (s *Synchronizer) SetCompleted(templateID, itemID string, done bool) (Instance, error) {
	return s.editItem(templateID, itemID, func(it *models.InspectionItem) { it.Completed = done })
}

// SetNotes replaces the notes of one item.
func (s *Synchronizer) SetNotes(templateID, itemID, notes string) (Instance, error) {
	return s.editItem(templateID, itemID, func(it *models.InspectionItem) { it.Notes = notes })
}

// Discard drops the in-progress inspection without saving it.
func (s *Synchronizer) Discard(templateID string) error {
	return s.active.Clear(templateID)
}

// Complete saves the in-progress inspection as a record, schedules the
// template's next occurrence and clears the working copy.
func (s *Synchronizer) Complete(ctx context.Context, templateID string, by *string) (models.InspectionRecord, error) {
	in, ok, err := s.active.Load(templateID)
	if err != nil {
		return models.InspectionRecord{}, err
	}
	if !ok {
		return models.InspectionRecord{}, fmt.Errorf("checklist: no inspection in progress for %s: %w", templateID, apperr.ErrNotFound)
	}
	if len(in.Items) == 0 {
		err := apperr.Validation(errors.New("an inspection needs at least one item"))
		s.notifier.Error("Nothing to save", err)
		return models.InspectionRecord{}, err
	}

	tpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		s.notifier.Error("Could not load template", err)
		return models.InspectionRecord{}, err
	}

	rec := Record(in, tpl, s.now(), by)
	saved, err := s.records.Insert(ctx, rec)
	if err != nil {
		s.notifier.Error("Could not save inspection", err)
		return models.InspectionRecord{}, err
	}

	if saved.NextDueDate != nil {
		if _, err := s.templates.Update(ctx, tpl.ID, map[string]any{"next_occurrence": saved.NextDueDate}); err != nil {
			s.notifier.Error("Inspection saved but the next occurrence was not scheduled", err)
		}
	}
	if err := s.active.Clear(templateID); err != nil {
		return saved, err
	}

	done, total := in.Progress()
	s.notifier.Info(fmt.Sprintf("Inspection saved (%d of %d items complete)", done, total))
	return saved, nil
}
