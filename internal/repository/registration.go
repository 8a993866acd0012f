package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bigkaa/feirinha/checkin-module/internal/domain/identifier"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/model"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/workday"
	"github.com/bigkaa/feirinha/checkin-module/internal/rowstore"
)

// RegistrationRepository reads and appends the registrations sheet.
type RegistrationRepository interface {
	// List returns every parsable registration in sheet order.
	List(ctx context.Context) ([]model.Registration, error)
	// Append writes one registration row.
	Append(ctx context.Context, reg model.Registration) error
	// Sheet returns the sheet name.
	Sheet() string
}

type registrationRepo struct {
	store    rowstore.Store
	sheet    string
	resolver *workday.Resolver
	logger   *slog.Logger
}

// NewRegistrationRepository creates a repository on sheet of store. The
// resolver derives the work day of stored rows and must be the one used
// for new registrations.
func NewRegistrationRepository(store rowstore.Store, sheet string, resolver *workday.Resolver, logger *slog.Logger) RegistrationRepository {
	return &registrationRepo{
		store:    store,
		sheet:    sheet,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "registration_repo")),
	}
}

func (r *registrationRepo) Sheet() string {
	return r.sheet
}

func (r *registrationRepo) List(ctx context.Context) ([]model.Registration, error) {
	rows, err := r.store.ReadAll(ctx, r.sheet)
	if err != nil {
		return nil, fmt.Errorf("read registrations: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]model.Registration, 0, len(rows)-1)
	skipped := 0
	for i, row := range rows[1:] {
		reg, ok := r.parseRow(row)
		if !ok {
			skipped++
			r.logger.Warn("Skipping unparsable registration row",
				slog.Int("row", i+2),
				slog.String("timestamp", cell(row, colRegTimestamp)),
			)
			continue
		}
		out = append(out, reg)
	}
	if skipped > 0 {
		r.logger.Info("Registrations loaded with skipped rows",
			slog.Int("loaded", len(out)),
			slog.Int("skipped", skipped),
		)
	}
	return out, nil
}

// parseRow derives the work day from the timestamp with the shared
// resolver; when the timestamp is unusable it falls back to the stored
// work-date column.
func (r *registrationRepo) parseRow(row []string) (model.Registration, bool) {
	rawID := cell(row, colRegID)
	if identifier.IsBlank(rawID) {
		return model.Registration{}, false
	}

	loc := r.resolver.Location()
	ts, tsOK := parseTimestamp(cell(row, colRegTimestamp), loc)

	var workDate time.Time
	resolved := false
	if tsOK {
		workDate, resolved = r.resolver.Resolve(ts)
	}
	if !resolved {
		d, ok := parseDate(cell(row, colRegWorkDate), loc)
		if !ok {
			return model.Registration{}, false
		}
		workDate = d
		if !tsOK {
			ts = d
		}
	}

	payment, err := strconv.Atoi(cell(row, colRegPayment))
	if err != nil {
		payment = 0
	}

	return model.Registration{
		Timestamp:     ts,
		WorkDate:      workDate,
		DayOfWeek:     workday.Weekday(workDate),
		Sector:        cell(row, colRegSector),
		Role:          cell(row, colRegRole),
		Identifier:    identifier.Normalize(rawID),
		Name:          cell(row, colRegName),
		PaymentKey:    cell(row, colRegPix),
		PaymentAmount: payment,
	}, true
}

func (r *registrationRepo) Append(ctx context.Context, reg model.Registration) error {
	if err := r.store.Append(ctx, r.sheet, registrationRow(reg)); err != nil {
		return fmt.Errorf("append registration: %w", err)
	}
	return nil
}

// registrationRow renders reg in sheet column order. The payment is
// written as a number so sheet formulas can sum it.
func registrationRow(reg model.Registration) []any {
	row := make([]any, registrationColumns)
	for i := range row {
		row[i] = ""
	}
	row[colRegTimestamp] = reg.Timestamp.Format(model.TimestampLayout)
	row[colRegName] = reg.Name
	row[colRegWorkDate] = reg.WorkDate.Format(model.DateLayout)
	row[colRegWeekday] = reg.DayOfWeek
	row[colRegSector] = reg.Sector
	row[colRegRole] = reg.Role
	row[colRegPayment] = reg.PaymentAmount
	row[colRegID] = reg.Identifier
	row[colRegPix] = reg.PaymentKey
	row[colRegNotes] = ""
	return row
}
