package rowstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a Store kept in process memory. Sheets must be created with
// Seed or EnsureSheet before use.
type Memory struct {
	mu     sync.RWMutex
	sheets map[string][][]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sheets: make(map[string][][]string)}
}

// Seed replaces the content of sheet with rows.
func (m *Memory) Seed(sheet string, rows ...[]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet] = cloneRows(rows)
}

// ReadAll implements Store.
func (m *Memory) ReadAll(_ context.Context, sheet string) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	return cloneRows(rows), nil
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, sheet string, values []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.sheets[sheet]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	m.sheets[sheet] = append(rows, Cells(values))
	return nil
}

// EnsureSheet implements Initializer.
func (m *Memory) EnsureSheet(_ context.Context, sheet string, header []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[sheet]; ok {
		return nil
	}
	m.sheets[sheet] = [][]string{append([]string(nil), header...)}
	return nil
}

// Ping implements Pinger.
func (m *Memory) Ping(context.Context) error {
	return nil
}

// Rows returns the number of rows in sheet, header included.
func (m *Memory) Rows(sheet string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sheets[sheet])
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
