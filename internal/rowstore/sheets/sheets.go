// Package sheets stores rows in a Google Sheets spreadsheet through the
// Sheets API v4. Each sheet of the rowstore is a tab of one spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/bigkaa/feirinha/checkin-module/internal/rowstore"
)

// Values are written as given; the API must not reinterpret identifiers
// with leading zeros or dates.
const valueInputRaw = "RAW"

// Options configure the adapter. Exactly one credentials source is used:
// CredentialsJSON wins over CredentialsFile.
type Options struct {
	SpreadsheetID   string
	CredentialsFile string
	CredentialsJSON []byte
	// Endpoint overrides the API base URL (tests).
	Endpoint string
	// HTTPClient replaces the authenticated client (tests).
	HTTPClient *http.Client
}

// Store implements rowstore.Store on one spreadsheet.
type Store struct {
	svc           *gsheets.Service
	spreadsheetID string
	logger        *slog.Logger
}

// New creates the Sheets API client.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if opts.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}

	var clientOpts []option.ClientOption
	switch {
	case opts.HTTPClient != nil:
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	case len(opts.CredentialsJSON) > 0:
		clientOpts = append(clientOpts,
			option.WithCredentialsJSON(opts.CredentialsJSON),
			option.WithScopes(gsheets.SpreadsheetsScope),
		)
	case opts.CredentialsFile != "":
		clientOpts = append(clientOpts,
			option.WithCredentialsFile(opts.CredentialsFile),
			option.WithScopes(gsheets.SpreadsheetsScope),
		)
	default:
		return nil, fmt.Errorf("no Google credentials configured")
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := gsheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create Sheets client: %w", err)
	}

	return &Store{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		logger:        logger.With(slog.String("component", "sheets_store")),
	}, nil
}

// ReadAll implements rowstore.Store.
func (s *Store) ReadAll(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, a1Range(sheet)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, s.mapError(sheet, "read", err)
	}

	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		rows[i] = make([]string, len(r))
		for j, v := range r {
			rows[i][j] = rowstore.Cell(v)
		}
	}
	return rows, nil
}

// Append implements rowstore.Store.
func (s *Store) Append(ctx context.Context, sheet string, values []any) error {
	vr := &gsheets.ValueRange{Values: [][]interface{}{values}}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, a1Range(sheet), vr).
		ValueInputOption(valueInputRaw).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return s.mapError(sheet, "append", err)
	}
	return nil
}

// EnsureSheet implements rowstore.Initializer by adding a tab and writing
// header into its first row.
func (s *Store) EnsureSheet(ctx context.Context, sheet string, header []string) error {
	titles, err := s.titles(ctx)
	if err != nil {
		return err
	}
	for _, t := range titles {
		if t == sheet {
			return nil
		}
	}

	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{Title: sheet},
			},
		}},
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	s.logger.Info("Sheet created", slog.String("sheet", sheet))

	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	return s.Append(ctx, sheet, row)
}

// Ping implements rowstore.Pinger by fetching spreadsheet metadata.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("spreadsheet %s unreachable: %w", s.spreadsheetID, err)
	}
	return nil
}

func (s *Store) titles(ctx context.Context) ([]string, error) {
	sp, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	out := make([]string, 0, len(sp.Sheets))
	for _, sh := range sp.Sheets {
		if sh.Properties != nil {
			out = append(out, sh.Properties.Title)
		}
	}
	return out, nil
}

// mapError turns the API's "Unable to parse range" into ErrSheetNotFound.
func (s *Store) mapError(sheet, op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest &&
		strings.Contains(gerr.Message, "Unable to parse range") {
		return fmt.Errorf("%w: %s", rowstore.ErrSheetNotFound, sheet)
	}
	return fmt.Errorf("%s sheet %s: %w", op, sheet, err)
}

// a1Range addresses a whole tab. Names are quoted since they may contain
// spaces and accents.
func a1Range(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}
