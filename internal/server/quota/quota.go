// Package quota computes the read side of the enhancement credit model.
// Consumption itself happens in the enhancement workflow.
package quota

import "github.com/dmitrijs2005/photokeeper/internal/server/models"

const (
	// FreeTierCredits is granted to every new account without an access code.
	FreeTierCredits int64 = 10
	// UnlimitedCredits is the grant recorded for accounts that redeemed an
	// access code. The quota check ignores it; it only keeps the stored
	// numbers meaningful for reporting.
	UnlimitedCredits int64 = 999999
	// Unlimited is reported by Remaining for unlimited-access accounts.
	Unlimited int64 = -1
)

// Remaining returns granted minus consumed, clamped at zero. Stored values
// are never modified.
func Remaining(acc *models.Account) int64 {
	if acc.UnlimitedAccess {
		return Unlimited
	}
	if r := acc.CreditsGranted - acc.CreditsConsumed; r > 0 {
		return r
	}
	return 0
}

// CanConsume reports whether the account may start another enhancement.
func CanConsume(acc *models.Account) bool {
	return acc.UnlimitedAccess || Remaining(acc) > 0
}

// Grant returns the initial credit grant for a new account.
func Grant(unlimited bool) int64 {
	if unlimited {
		return UnlimitedCredits
	}
	return FreeTierCredits
}
