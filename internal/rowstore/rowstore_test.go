package rowstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_AppendRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.EnsureSheet(ctx, "log", []string{"a", "b"}); err != nil {
		t.Fatalf("EnsureSheet: %v", err)
	}
	if err := m.Append(ctx, "log", []any{"x", 190}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rows, err := m.ReadAll(ctx, "log")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[1][1] != "190" {
		t.Errorf("cell = %q, want 190", rows[1][1])
	}

	// Returned rows are copies.
	rows[1][0] = "mutated"
	again, _ := m.ReadAll(ctx, "log")
	if again[1][0] != "x" {
		t.Error("store mutated through ReadAll result")
	}
}

func TestMemory_EnsureSheetKeepsExisting(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Seed("log", []string{"h"}, []string{"1"})
	if err := m.EnsureSheet(ctx, "log", []string{"other"}); err != nil {
		t.Fatalf("EnsureSheet: %v", err)
	}
	if m.Rows("log") != 2 {
		t.Errorf("existing sheet was replaced")
	}
}

func TestMemory_MissingSheet(t *testing.T) {
	m := NewMemory()
	if _, err := m.ReadAll(context.Background(), "nope"); !errors.Is(err, ErrSheetNotFound) {
		t.Errorf("ReadAll err = %v, want ErrSheetNotFound", err)
	}
	if err := m.Append(context.Background(), "nope", nil); !errors.Is(err, ErrSheetNotFound) {
		t.Errorf("Append err = %v, want ErrSheetNotFound", err)
	}
}

func TestCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"a", "a"},
		{170, "170"},
		{int64(220), "220"},
		{1.5, "1.5"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := Cell(tt.in); got != tt.want {
			t.Errorf("Cell(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// slowStore blocks until the context is done.
type slowStore struct{}

func (slowStore) ReadAll(ctx context.Context, _ string) ([][]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowStore) Append(ctx context.Context, _ string, _ []any) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestInstrument_Timeout(t *testing.T) {
	s := Instrument(slowStore{}, "slow", 20*time.Millisecond)

	start := time.Now()
	_, err := s.ReadAll(context.Background(), "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not applied")
	}
}

func TestInstrument_ForwardsCapabilities(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s := Instrument(m, "memory", time.Second)

	if err := s.EnsureSheet(ctx, "log", []string{"h"}); err != nil {
		t.Fatalf("EnsureSheet: %v", err)
	}
	if m.Rows("log") != 1 {
		t.Error("EnsureSheet not forwarded")
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	// A store without optional capabilities is still usable.
	bare := Instrument(slowStore{}, "bare", time.Second)
	if err := bare.EnsureSheet(ctx, "x", nil); err != nil {
		t.Errorf("EnsureSheet on bare store: %v", err)
	}
	if err := bare.Ping(ctx); err != nil {
		t.Errorf("Ping on bare store: %v", err)
	}
}

// failingPinger is a store whose backend is unreachable.
type failingPinger struct{ slowStore }

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestInstrument_CheckReady(t *testing.T) {
	if status, _ := Instrument(NewMemory(), "memory", time.Second).CheckReady(); status != "ok" {
		t.Errorf("memory status = %q, want ok", status)
	}
	status, msg := Instrument(failingPinger{}, "sheets", time.Second).CheckReady()
	if status != "fail" {
		t.Errorf("status = %q, want fail", status)
	}
	if msg != "sheets: connection refused" {
		t.Errorf("message = %q", msg)
	}
}
