package entitlements

import "strings"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Normalize maps arbitrary plan strings onto a known plan, defaulting to free.
func Normalize(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPro):
		return PlanPro
	default:
		return PlanFree
	}
}

// Rank orders plans so "best plan wins" comparisons stay in one place.
func Rank(plan Plan) int {
	switch plan {
	case PlanPro:
		return 1
	default:
		return 0
	}
}

// IsPaid reports whether the plan carries a recurring payment.
func IsPaid(plan Plan) bool {
	return Rank(plan) > 0
}

// ListingPerks returns which listing extras a plan unlocks: highlighted
// styling on the board and access to view analytics.
func ListingPerks(plan Plan) (highlight, analytics bool) {
	switch plan {
	case PlanPro:
		return true, true
	default:
		return false, false
	}
}
