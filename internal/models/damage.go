package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DateLayout is the calendar-date format used by date-only fields.
const DateLayout = "2006-01-02"

// Severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Damage report states.
const (
	DamageOpen       = "open"
	DamageInProgress = "in_progress"
	DamageResolved   = "resolved"
)

// Booking platforms.
const (
	PlatformAirbnb = "airbnb"
	PlatformVRBO   = "vrbo"
	PlatformDirect = "direct"
	PlatformOther  = "other"
)

// Claim states.
const (
	ClaimNotFiled = "not_filed"
	ClaimFiled    = "filed_with_platform"
	ClaimApproved = "approved"
	ClaimDenied   = "denied"
	ClaimPaid     = "paid"
)

// DamageReport records guest-caused damage and the platform claim for it.
type DamageReport struct {
	Meta
	PropertyID    *string  `json:"property_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Severity      string   `json:"severity"`
	Status        string   `json:"status"`
	Platform      string   `json:"platform"`
	ReservationID string   `json:"reservation_id"`
	GuestName     string   `json:"guest_name"`
	CheckoutDate  string   `json:"checkout_date"`
	ClaimDeadline *string  `json:"claim_deadline"`
	ClaimStatus   string   `json:"claim_status"`
	EstimatedCost *float64 `json:"estimated_cost"`
	PhotoURLs     []string `json:"photo_urls"`
	ReportedBy    *string  `json:"reported_by"`
}

func (d *DamageReport) Scope() *string { return d.PropertyID }
func (d *DamageReport) Label() string  { return d.Title }

// Validate validates the report.
func (d *DamageReport) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&d.Severity, validation.Required,
			validation.In(SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical)),
		validation.Field(&d.Status, validation.In(DamageOpen, DamageInProgress, DamageResolved)),
		validation.Field(&d.Platform, validation.In(PlatformAirbnb, PlatformVRBO, PlatformDirect, PlatformOther)),
		validation.Field(&d.CheckoutDate, validation.Date(DateLayout)),
		validation.Field(&d.ClaimDeadline, validation.Date(DateLayout)),
		validation.Field(&d.ClaimStatus,
			validation.In(ClaimNotFiled, ClaimFiled, ClaimApproved, ClaimDenied, ClaimPaid)),
		validation.Field(&d.EstimatedCost, validation.Min(0.0)),
	)
}
