// Package workday maps instants to the logical shift day they belong to.
// Shifts run past midnight, so a check-in at 01:30 on Saturday counts for
// Friday's event.
//
// Two cutover rules exist. Exactly one is chosen at startup and the same
// Resolver must be used by every caller (snapshot parsing, duplicate check
// and append); mixing rules lets a worker register twice for one night.
package workday

import (
	"fmt"
	"strings"
	"time"
)

// Rule selects the cutover policy.
type Rule string

const (
	// RuleWindow accepts registrations from 10:00 until 04:00 of the next
	// calendar day. Between 04:00 and 10:00 registration is closed.
	RuleWindow Rule = "window"
	// RuleOvernight treats a shift as starting at 22:00 and running through
	// 04:00, with a buffer until 10:00 that still belongs to the previous
	// night. There is no closed period.
	RuleOvernight Rule = "overnight"
)

const (
	// nightEndHour is the hour at which the previous night's shift ends.
	nightEndHour = 4
	// dayStartHour is the hour at which a new work day opens.
	dayStartHour = 10
)

// ParseRule parses a rule name; the empty string selects RuleWindow.
func ParseRule(s string) (Rule, error) {
	switch Rule(strings.ToLower(strings.TrimSpace(s))) {
	case "", RuleWindow:
		return RuleWindow, nil
	case RuleOvernight:
		return RuleOvernight, nil
	default:
		return "", fmt.Errorf("unknown work-day rule %q, allowed: %s, %s", s, RuleWindow, RuleOvernight)
	}
}

// Resolver resolves instants to work days in a fixed time zone.
type Resolver struct {
	rule Rule
	loc  *time.Location
}

// NewResolver creates a resolver. A nil location means time.Local.
func NewResolver(rule Rule, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{rule: rule, loc: loc}
}

// Rule returns the configured rule.
func (r *Resolver) Rule() Rule {
	return r.rule
}

// Location returns the zone in which instants are interpreted.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve returns the work day of instant as a midnight date in the
// resolver's zone. ok is false when the instant falls outside any active
// work day (RuleWindow, 04:00-10:00); callers treat that as "registration
// closed", not as an error.
func (r *Resolver) Resolve(instant time.Time) (day time.Time, ok bool) {
	local := instant.In(r.loc)
	y, m, d := local.Date()
	h := local.Hour()

	switch r.rule {
	case RuleOvernight:
		if h < dayStartHour {
			return r.date(y, m, d-1), true
		}
		return r.date(y, m, d), true
	default:
		switch {
		case h >= dayStartHour:
			return r.date(y, m, d), true
		case h < nightEndHour:
			return r.date(y, m, d-1), true
		default:
			return time.Time{}, false
		}
	}
}

func (r *Resolver) date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

// weekdayNames is ordered Monday first.
var weekdayNames = [7]string{"segunda", "terça", "quarta", "quinta", "sexta", "sábado", "domingo"}

// Weekday returns the lowercase Portuguese name of day's weekday.
// Always pass a resolved work day, never the raw instant.
func Weekday(day time.Time) string {
	return weekdayNames[(int(day.Weekday())+6)%7]
}

// WeekdayNames returns the seven weekday names, Monday first.
func WeekdayNames() []string {
	names := make([]string, len(weekdayNames))
	copy(names, weekdayNames[:])
	return names
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
