// Package repository maps sheet rows to domain records and back.
// The layout of both sheets is fixed by the Google Form the organizers
// used before this service existed, so column positions are constants.
// Repositories hold no state; snapshots are owned by the service layer.
package repository

import (
	"strings"
	"time"

	"github.com/bigkaa/feirinha/checkin-module/internal/domain/model"
)

// Default sheet names.
const (
	DefaultCollaboratorsSheet = "Cadastro de Colaboradores"
	DefaultRegistrationsSheet = "Respostas ao formulário 1"
)

// Collaborators sheet columns.
const (
	colCollabName = 0
	colCollabID   = 1
	colCollabPix  = 2
)

// Registrations sheet columns. 5-7 are left blank for form fields the
// organizers no longer use.
const (
	colRegTimestamp = 0
	colRegName      = 1
	colRegWorkDate  = 2
	colRegWeekday   = 3
	colRegSector    = 4
	colRegRole      = 8
	colRegPayment   = 9
	colRegID        = 10
	colRegPix       = 11
	colRegNotes     = 12

	registrationColumns = 13
)

// CollaboratorsHeader is written when the collaborators sheet is created.
var CollaboratorsHeader = []string{"Nome", "CPF", "PIX"}

// RegistrationsHeader is written when the registrations sheet is created.
var RegistrationsHeader = []string{
	"Carimbo de data/hora", "Nome", "Data", "Dia da semana", "Setor",
	"", "", "", "Função", "Pagamento", "CPF", "PIX", "Observações",
}

// timestampLayouts are tried in order. Rows written by this service use
// the first; the others come from manual edits and older form exports.
var timestampLayouts = []string{
	model.TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
}

// parseTimestamp parses a stored timestamp as wall-clock time in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// parseDate parses a stored DD/MM/YYYY work date in loc.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// cell returns the trimmed value at idx, or "" for short rows.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
