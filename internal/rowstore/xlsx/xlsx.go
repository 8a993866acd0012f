// Package xlsx stores rows in a local Excel workbook. Useful for events
// without connectivity; the file can be uploaded to the shared spreadsheet
// afterwards. Every append is saved to disk before returning.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/bigkaa/feirinha/checkin-module/internal/rowstore"
)

// Store implements rowstore.Store on one workbook file.
type Store struct {
	mu   sync.Mutex
	path string
	file *excelize.File
}

// Open opens path, creating an empty workbook when it does not exist.
func Open(path string, logger *slog.Logger) (*Store, error) {
	f, err := excelize.OpenFile(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		f = excelize.NewFile()
		if err := f.SaveAs(path); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create workbook %s: %w", path, err)
		}
		logger.Info("Workbook created", slog.String("path", path))
	default:
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &Store{path: path, file: f}, nil
}

// ReadAll implements rowstore.Store.
func (s *Store) ReadAll(_ context.Context, sheet string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasSheet(sheet) {
		return nil, fmt.Errorf("%w: %s", rowstore.ErrSheetNotFound, sheet)
	}
	rows, err := s.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

// Append implements rowstore.Store.
func (s *Store) Append(ctx context.Context, sheet string, values []any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasSheet(sheet) {
		return fmt.Errorf("%w: %s", rowstore.ErrSheetNotFound, sheet)
	}
	if err := s.appendRow(sheet, values); err != nil {
		return err
	}
	return s.save()
}

// EnsureSheet implements rowstore.Initializer.
func (s *Store) EnsureSheet(_ context.Context, sheet string, header []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasSheet(sheet) {
		return nil
	}
	if _, err := s.file.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := s.appendRow(sheet, row); err != nil {
		return err
	}
	return s.save()
}

// Ping implements rowstore.Pinger: the workbook file must still exist.
func (s *Store) Ping(context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("workbook %s: %w", s.path, err)
	}
	return nil
}

// Close releases the workbook.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *Store) hasSheet(sheet string) bool {
	idx, err := s.file.GetSheetIndex(sheet)
	return err == nil && idx >= 0
}

func (s *Store) appendRow(sheet string, values []any) error {
	rows, err := s.file.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	if err := s.file.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row to %s: %w", sheet, err)
	}
	return nil
}

func (s *Store) save() error {
	if err := s.file.Save(); err != nil {
		return fmt.Errorf("save workbook %s: %w", s.path, err)
	}
	return nil
}
