// Package rowstore abstracts the tabular ledger the check-in service reads
// and appends to. A store holds named sheets; every sheet is a list of rows
// of string cells whose first row is the header.
//
// Adapters live in sub-packages: sheets (Google Sheets API), xlsx (local
// workbook) and postgres. Memory is an in-process store for tests and demos.
package rowstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrSheetNotFound is returned when the named sheet does not exist.
var ErrSheetNotFound = errors.New("sheet not found")

// Store reads and appends rows.
type Store interface {
	// ReadAll returns every row of sheet, header included. Short rows are
	// not padded; callers must check lengths.
	ReadAll(ctx context.Context, sheet string) ([][]string, error)
	// Append writes one row after the last row of sheet.
	Append(ctx context.Context, sheet string, values []any) error
}

// Initializer is implemented by stores that can create a missing sheet.
type Initializer interface {
	// EnsureSheet creates sheet with the given header when it is absent.
	// An existing sheet is left untouched.
	EnsureSheet(ctx context.Context, sheet string, header []string) error
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cell renders one appended value the way it is read back.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Cells renders a whole row with Cell.
func Cells(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = Cell(v)
	}
	return out
}
