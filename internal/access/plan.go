package access

import (
	"strings"
	"time"
)

// Plan is a paid access package granted by the owner.
type Plan string

const (
	PlanDay       Plan = "day"
	PlanWeek      Plan = "week"
	PlanMonth     Plan = "month"
	PlanPermanent Plan = "permanent"
)

// Plans lists every plan in the order the admin panel offers them.
var Plans = []Plan{PlanDay, PlanWeek, PlanMonth, PlanPermanent}

// ParsePlan accepts a plan name in any case.
func ParsePlan(s string) (Plan, bool) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Plans {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Duration is how long the plan lasts; zero for permanent.
func (p Plan) Duration() time.Duration {
	switch p {
	case PlanDay:
		return 24 * time.Hour
	case PlanWeek:
		return 7 * 24 * time.Hour
	case PlanMonth:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Label is the Indonesian name shown to users and the owner.
func (p Plan) Label() string {
	switch p {
	case PlanDay:
		return "1 hari"
	case PlanWeek:
		return "1 minggu"
	case PlanMonth:
		return "1 bulan"
	case PlanPermanent:
		return "permanent"
	}
	return string(p)
}
