package model

import "time"

// Date and timestamp layouts written to the registrations sheet.
const (
	DateLayout      = "02/01/2006"
	TimestampLayout = "02/01/2006 15:04:05"
)

// Registration is one attendance event: a collaborator checked in for a
// work day in a sector and role. Rows are append-only; the name, payment
// key and amount are frozen at registration time.
type Registration struct {
	// Timestamp is the local wall-clock time of the check-in.
	Timestamp time.Time
	// WorkDate is the resolved work day (midnight, local zone).
	WorkDate time.Time
	// DayOfWeek is the lowercase Portuguese name of WorkDate.
	DayOfWeek string
	Sector    string
	Role      string
	// Identifier is the normalized CPF.
	Identifier    string
	Name          string
	PaymentKey    string
	PaymentAmount int
}

// Key identifies the (identifier, work day) pair at most one registration
// may exist for.
func (r Registration) Key() string {
	return ClaimKey(r.Identifier, r.WorkDate)
}

// ClaimKey builds the uniqueness key for identifier on workDate.
func ClaimKey(identifier string, workDate time.Time) string {
	return workDate.Format("2006-01-02") + ":" + identifier
}
