package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Frequency types.
const (
	FrequencyNone    = "none"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyCustom  = "custom"
)

// Notification methods.
const (
	NotifyEmail = "email"
	NotifySMS   = "sms"
	NotifyInApp = "in_app"
)

// ChecklistItem is one line of a template. It has no completion state.
type ChecklistItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Notes       string `json:"notes"`
}

// Validate validates the item.
func (i ChecklistItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Description, validation.Required),
	)
}

// ChecklistTemplate is a reusable checklist definition. A nil PropertyID
// marks the template as usable by any property.
type ChecklistTemplate struct {
	Meta
	Name                  string          `json:"name"`
	Items                 []ChecklistItem `json:"items"`
	PropertyID            *string         `json:"property_id"`
	IsPredefined          bool            `json:"is_predefined"`
	FrequencyType         string          `json:"frequency_type"`
	FrequencyDays         *int            `json:"frequency_days"`
	NextOccurrence        *time.Time      `json:"next_occurrence"`
	NotificationsEnabled  bool            `json:"notifications_enabled"`
	NotificationMethod    string          `json:"notification_method"`
	NotificationDaysAhead int             `json:"notification_days_ahead"`
}

func (t *ChecklistTemplate) Scope() *string { return t.PropertyID }
func (t *ChecklistTemplate) Label() string  { return t.Name }

// Validate validates the template.
func (t *ChecklistTemplate) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&t.Items),
		validation.Field(&t.FrequencyType,
			validation.In(FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustom)),
		validation.Field(&t.FrequencyDays,
			validation.When(t.FrequencyType == FrequencyCustom, validation.Required, validation.Min(1))),
		validation.Field(&t.NotificationMethod, validation.In(NotifyEmail, NotifySMS, NotifyInApp)),
		validation.Field(&t.NotificationDaysAhead, validation.Min(0)),
	)
}

// InspectionItem is one line of an active instance or a saved record.
type InspectionItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	Notes       string `json:"notes"`
}

// InspectionRecord is the saved outcome of an inspection. Records are not
// edited after they are saved.
type InspectionRecord struct {
	Meta
	TemplateID   string           `json:"template_id"`
	TemplateName string           `json:"template_name"`
	PropertyID   *string          `json:"property_id"`
	Date         time.Time        `json:"date"`
	Items        []InspectionItem `json:"items"`
	NextDueDate  *time.Time       `json:"next_due_date"`
	InspectedBy  *string          `json:"inspected_by"`
}

func (r *InspectionRecord) Scope() *string { return r.PropertyID }
func (r *InspectionRecord) Label() string  { return r.TemplateName }

// Validate validates the record.
func (r *InspectionRecord) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.TemplateID, validation.Required),
		validation.Field(&r.TemplateName, validation.Required),
		validation.Field(&r.Date, validation.Required),
		validation.Field(&r.Items, validation.Required),
	)
}
