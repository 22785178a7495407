package lifecycle

import (
	"time"

	"paflow/internal/paf/models"
)

// RenewalWindow is how far ahead of expiration a PAF becomes renewal-eligible.
const RenewalWindow = 30 * 24 * time.Hour

// ComputeExpiration returns the expiration for a PAF that became effective on
// the given date: one calendar year later. Policy for leap days: Feb 29 plus
// one year resolves to Mar 1 (Go's AddDate normalization), so a PAF validated
// on a leap day expires the day after Feb 28.
func ComputeExpiration(effective time.Time) time.Time {
	return effective.AddDate(1, 0, 0)
}

// RenewalEligible reports whether the PAF may take the renew edge at "now":
// it must be validated/active with an expiration no more than RenewalWindow
// away (inclusive). A PAF already past expiration remains eligible until it
// is rejected or renewed.
func RenewalEligible(p *models.PAF, now time.Time) bool {
	if p.Status != models.StatusValidatedActive || p.ExpirationDate == nil {
		return false
	}
	return !p.ExpirationDate.After(now.Add(RenewalWindow))
}
