package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/staykeep/internal/models"
)

// Claim windows in days after checkout, per platform.
const (
	AirbnbClaimDays  = 14
	VRBOClaimDays    = 60
	DefaultClaimDays = 30
)

// ClaimBand is the urgency of an open claim window.
type ClaimBand string

// Claim bands.
const (
	ClaimOverdue ClaimBand = "overdue"
	ClaimUrgent  ClaimBand = "urgent"
	ClaimNormal  ClaimBand = "normal"
)

// ClaimWindowDays returns the filing window of a platform.
func ClaimWindowDays(platform string) int {
	switch strings.ToLower(platform) {
	case models.PlatformAirbnb:
		return AirbnbClaimDays
	case models.PlatformVRBO:
		return VRBOClaimDays
	default:
		return DefaultClaimDays
	}
}

// ClaimDeadline returns the stored deadline when present, otherwise checkout
// plus the platform window. Dates are YYYY-MM-DD.
func ClaimDeadline(checkoutDate, platform string, stored *string) (time.Time, error) {
	if stored != nil && *stored != "" {
		d, err := time.Parse(models.DateLayout, *stored)
		if err != nil {
			return time.Time{}, fmt.Errorf("rules: bad claim deadline %q: %w", *stored, err)
		}
		return d, nil
	}
	checkout, err := time.Parse(models.DateLayout, checkoutDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("rules: bad checkout date %q: %w", checkoutDate, err)
	}
	return checkout.AddDate(0, 0, ClaimWindowDays(platform)), nil
}

// DaysRemaining counts calendar days from today's date to deadline. The
// clock time of today is ignored.
func DaysRemaining(deadline, today time.Time) int {
	d := time.Date(deadline.Year(), deadline.Month(), deadline.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(t).Hours() / 24)
}

// Band classifies days remaining.
func Band(daysRemaining int) ClaimBand {
	switch {
	case daysRemaining < 0:
		return ClaimOverdue
	case daysRemaining <= 3:
		return ClaimUrgent
	default:
		return ClaimNormal
	}
}

// ClaimFiled reports whether deadline tracking no longer applies.
func ClaimFiled(claimStatus string) bool {
	return claimStatus != "" && claimStatus != models.ClaimNotFiled
}

// ClaimView is what a damage report shows about its claim. Either Filed is
// true and only Status is meaningful, or the deadline fields are set.
type ClaimView struct {
	Filed         bool      `json:"filed"`
	Status        string    `json:"status"`
	Deadline      string    `json:"deadline,omitempty"`
	DaysRemaining int       `json:"days_remaining,omitempty"`
	Band          ClaimBand `json:"band,omitempty"`
}

// Claim derives the claim view of a report. A filed claim returns before
// any deadline arithmetic runs.
func Claim(r models.DamageReport, today time.Time) (ClaimView, error) {
	if ClaimFiled(r.ClaimStatus) {
		return ClaimView{Filed: true, Status: r.ClaimStatus}, nil
	}
	deadline, err := ClaimDeadline(r.CheckoutDate, r.Platform, r.ClaimDeadline)
	if err != nil {
		return ClaimView{}, err
	}
	days := DaysRemaining(deadline, today)
	return ClaimView{
		Status:        models.ClaimNotFiled,
		Deadline:      deadline.Format(models.DateLayout),
		DaysRemaining: days,
		Band:          Band(days),
	}, nil
}
