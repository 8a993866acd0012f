// Package model holds the domain records of the check-in service.
package model

// Collaborator is a person allowed to check in. Read-only reference data
// maintained by the event organizers in the collaborators sheet.
type Collaborator struct {
	// Identifier is the normalized CPF, unique per collaborator.
	Identifier string
	// FullName as typed in the sheet.
	FullName string
	// PaymentKey is the PIX key the shift payment is sent to.
	PaymentKey string
}
