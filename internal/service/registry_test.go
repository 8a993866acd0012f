package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/feirinha/checkin-module/internal/domain/catalog"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/model"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/payroll"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/workday"
	"github.com/bigkaa/feirinha/checkin-module/internal/repository"
	"github.com/bigkaa/feirinha/checkin-module/internal/rowstore"
)

// --- Mocks ---

type mockCollaboratorRepo struct {
	listFn func(ctx context.Context) ([]model.Collaborator, error)
	calls  atomic.Int32
}

func (m *mockCollaboratorRepo) List(ctx context.Context) ([]model.Collaborator, error) {
	m.calls.Add(1)
	return m.listFn(ctx)
}

func (m *mockCollaboratorRepo) Sheet() string { return "collaborators" }

type mockRegistrationRepo struct {
	listFn   func(ctx context.Context) ([]model.Registration, error)
	appendFn func(ctx context.Context, reg model.Registration) error
	appends  atomic.Int32
}

func (m *mockRegistrationRepo) List(ctx context.Context) ([]model.Registration, error) {
	if m.listFn == nil {
		return nil, nil
	}
	return m.listFn(ctx)
}

func (m *mockRegistrationRepo) Append(ctx context.Context, reg model.Registration) error {
	m.appends.Add(1)
	if m.appendFn == nil {
		return nil
	}
	return m.appendFn(ctx, reg)
}

func (m *mockRegistrationRepo) Sheet() string { return "registrations" }

// --- Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func ana() model.Collaborator {
	return model.Collaborator{Identifier: "12345678901", FullName: "Ana Souza", PaymentKey: "ana@pix"}
}

func newTestRegistry(t *testing.T, collabs repository.CollaboratorRepository, regs repository.RegistrationRepository, reload time.Duration) *Registry {
	t.Helper()
	calc, err := payroll.NewCalculator(payroll.DefaultTable())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	r := NewRegistry(
		collabs,
		regs,
		workday.NewResolver(workday.RuleWindow, saoPaulo(t)),
		calc,
		catalog.Default(),
		NewCollaboratorCache(100, time.Minute),
		NewMemoryGuard(),
		reload,
		testLogger(),
	)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return r
}

// newStoreRegistry wires the registry to real repositories over an
// in-memory store.
func newStoreRegistry(t *testing.T) (*Registry, *rowstore.Memory) {
	t.Helper()
	store := rowstore.NewMemory()
	store.Seed(repository.DefaultCollaboratorsSheet,
		repository.CollaboratorsHeader,
		[]string{"Ana Souza", "123.456.789-01", "ana@pix"},
		[]string{"Bia Lima", "2345678901", "bia@pix"},
	)
	store.Seed(repository.DefaultRegistrationsSheet, repository.RegistrationsHeader)

	resolver := workday.NewResolver(workday.RuleWindow, saoPaulo(t))
	collabs := repository.NewCollaboratorRepository(store, repository.DefaultCollaboratorsSheet, testLogger())
	regs := repository.NewRegistrationRepository(store, repository.DefaultRegistrationsSheet, resolver, testLogger())
	return newTestRegistry(t, collabs, regs, 0), store
}

// --- Tests ---

func TestRegistry_RegisterThenDuplicate(t *testing.T) {
	r, store := newStoreRegistry(t)
	loc := saoPaulo(t)
	ctx := context.Background()

	saturdayNight := time.Date(2024, 1, 13, 22, 0, 0, 0, loc)
	reg, err := r.Register(ctx, Request{Identifier: "123.456.789-01", Sector: "bar", Role: "Bartender"}, saturdayNight)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.PaymentAmount != 190 {
		t.Errorf("payment = %d, want 190", reg.PaymentAmount)
	}
	if reg.DayOfWeek != "sábado" {
		t.Errorf("day = %q, want sábado", reg.DayOfWeek)
	}
	if reg.Sector != "Bar" || reg.Role != "bartender" {
		t.Errorf("sector/role not canonical: %q/%q", reg.Sector, reg.Role)
	}
	if reg.Name != "Ana Souza" || reg.PaymentKey != "ana@pix" {
		t.Errorf("collaborator snapshot missing: %+v", reg)
	}
	if store.Rows(repository.DefaultRegistrationsSheet) != 2 {
		t.Fatalf("rows = %d, want header + 1", store.Rows(repository.DefaultRegistrationsSheet))
	}

	// Sunday 01:00 is still Saturday's shift.
	st, err := r.HasRegisteredToday(ctx, "12345678901", saturdayNight.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("HasRegisteredToday: %v", err)
	}
	if !st.Registered || st.Record == nil || !st.Record.Timestamp.Equal(saturdayNight) {
		t.Errorf("status = %+v", st)
	}

	_, err = r.Register(ctx, Request{Identifier: "12345678901", Sector: "Bar", Role: "bartender"}, saturdayNight.Add(3*time.Hour))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second Register err = %v, want ErrDuplicate", err)
	}
	if store.Rows(repository.DefaultRegistrationsSheet) != 2 {
		t.Error("duplicate must not append")
	}

	// Next evening is a new work day.
	if _, err := r.Register(ctx, Request{Identifier: "12345678901", Sector: "Bar", Role: "bartender"}, saturdayNight.Add(20*time.Hour)); err != nil {
		t.Errorf("next day Register: %v", err)
	}
}

func TestRegistry_DuplicateFromStoredRows(t *testing.T) {
	r, store := newStoreRegistry(t)
	loc := saoPaulo(t)
	ctx := context.Background()

	// A row written by an earlier process for Friday night.
	row := make([]string, 13)
	row[0] = "12/01/2024 23:00:00"
	row[10] = "2345678901"
	store.Seed(repository.DefaultRegistrationsSheet, repository.RegistrationsHeader, row)
	if err := r.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err := r.Register(ctx, Request{Identifier: "02345678901", Sector: "Cozinha", Role: "cozinheiro"}, time.Date(2024, 1, 13, 2, 0, 0, 0, loc))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestRegistry_UnknownWorkerNoAppend(t *testing.T) {
	regs := &mockRegistrationRepo{}
	collabs := &mockCollaboratorRepo{listFn: func(context.Context) ([]model.Collaborator, error) {
		return []model.Collaborator{ana()}, nil
	}}
	r := newTestRegistry(t, collabs, regs, 0)

	_, err := r.Register(context.Background(), Request{Identifier: "99999999999", Sector: "Bar", Role: "bartender"},
		time.Date(2024, 1, 10, 20, 0, 0, 0, saoPaulo(t)))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if regs.appends.Load() != 0 {
		t.Error("unknown worker must not append")
	}
}

func TestRegistry_ClosedWindow(t *testing.T) {
	regs := &mockRegistrationRepo{}
	collabs := &mockCollaboratorRepo{listFn: func(context.Context) ([]model.Collaborator, error) {
		return []model.Collaborator{ana()}, nil
	}}
	r := newTestRegistry(t, collabs, regs, 0)
	morning := time.Date(2024, 1, 10, 7, 0, 0, 0, saoPaulo(t))

	_, err := r.Register(context.Background(), Request{Identifier: ana().Identifier, Sector: "Bar", Role: "bartender"}, morning)
	if !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("Register err = %v, want ErrRegistrationClosed", err)
	}
	if regs.appends.Load() != 0 {
		t.Error("closed window must not append")
	}
	if _, err := r.HasRegisteredToday(context.Background(), ana().Identifier, morning); !errors.Is(err, ErrRegistrationClosed) {
		t.Errorf("HasRegisteredToday err = %v, want ErrRegistrationClosed", err)
	}
}

func TestRegistry_Validation(t *testing.T) {
	collabs := &mockCollaboratorRepo{listFn: func(context.Context) ([]model.Collaborator, error) {
		return []model.Collaborator{ana()}, nil
	}}
	regs := &mockRegistrationRepo{}
	r := newTestRegistry(t, collabs, regs, 0)
	now := time.Date(2024, 1, 10, 20, 0, 0, 0, saoPaulo(t))

	tests := []struct {
		name string
		req  Request
	}{
		{"blank identifier", Request{Identifier: "---", Sector: "Bar", Role: "bartender"}},
		{"missing sector", Request{Identifier: ana().Identifier, Role: "bartender"}},
		{"missing role", Request{Identifier: ana().Identifier, Sector: "Bar"}},
		{"role outside sector", Request{Identifier: ana().Identifier, Sector: "Bar", Role: "cozinheiro"}},
		{"unknown sector", Request{Identifier: ana().Identifier, Sector: "Portaria", Role: "bartender"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Register(context.Background(), tt.req, now); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
	if regs.appends.Load() != 0 {
		t.Error("invalid requests must not append")
	}
}

func TestRegistry_AppendFailureLeavesSnapshot(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	regs := &mockRegistrationRepo{appendFn: func(context.Context, model.Registration) error {
		if fail.Load() {
			return errors.New("quota exceeded")
		}
		return nil
	}}
	collabs := &mockCollaboratorRepo{listFn: func(context.Context) ([]model.Collaborator, error) {
		return []model.Collaborator{ana()}, nil
	}}
	r := newTestRegistry(t, collabs, regs, 0)
	now := time.Date(2024, 1, 10, 20, 0, 0, 0, saoPaulo(t))
	req := Request{Identifier: ana().Identifier, Sector: "Salão", Role: "garçom"}

	if _, err := r.Register(context.Background(), req, now); !errors.Is(err, ErrStore) {
		t.Fatalf("err = %v, want ErrStore", err)
	}
	if len(r.Registrations()) != 0 {
		t.Fatal("failed append must not reach the snapshot")
	}

	fail.Store(false)
	reg, err := r.Register(context.Background(), req, now)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if reg.PaymentAmount != 170 {
		t.Errorf("payment = %d, want 170", reg.PaymentAmount)
	}
	if len(r.Registrations()) != 1 {
		t.Errorf("registrations = %d, want 1", len(r.Registrations()))
	}
}

func TestRegistry_ConcurrentRegisterSingleWinner(t *testing.T) {
	r, store := newStoreRegistry(t)
	now := time.Date(2024, 1, 10, 21, 0, 0, 0, saoPaulo(t))

	const workers = 20
	var (
		wg         sync.WaitGroup
		successes  atomic.Int32
		duplicates atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Register(context.Background(), Request{Identifier: "12345678901", Sector: "Bar", Role: "chefe de bar"}, now)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrDuplicate):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 || duplicates.Load() != workers-1 {
		t.Errorf("successes = %d, duplicates = %d", successes.Load(), duplicates.Load())
	}
	if store.Rows(repository.DefaultRegistrationsSheet) != 2 {
		t.Errorf("rows = %d, want header + 1", store.Rows(repository.DefaultRegistrationsSheet))
	}
}

func TestRegistry_ReloadOnMiss(t *testing.T) {
	bia := model.Collaborator{Identifier: "02345678901", FullName: "Bia Lima"}
	var added atomic.Bool
	collabs := &mockCollaboratorRepo{listFn: func(context.Context) ([]model.Collaborator, error) {
		if added.Load() {
			return []model.Collaborator{ana(), bia}, nil
		}
		return []model.Collaborator{ana()}, nil
	}}
	r := newTestRegistry(t, collabs, &mockRegistrationRepo{}, time.Minute)

	clock := time.Now()
	r.now = func() time.Time { return clock }
	r.lastReload = clock

	added.Store(true)

	// Within the interval the miss does not hit the store.
	if _, err := r.LookupWorker(context.Background(), "2345678901"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if collabs.calls.Load() != 1 {
		t.Fatalf("List calls = %d, want 1", collabs.calls.Load())
	}

	clock = clock.Add(2 * time.Minute)
	got, err := r.LookupWorker(context.Background(), "2345678901")
	if err != nil {
		t.Fatalf("LookupWorker after interval: %v", err)
	}
	if got.FullName != "Bia Lima" {
		t.Errorf("FullName = %q", got.FullName)
	}
	if collabs.calls.Load() != 2 {
		t.Errorf("List calls = %d, want 2", collabs.calls.Load())
	}
}

func TestRegistry_ReloadFailureKeepsSnapshot(t *testing.T) {
	var broken atomic.Bool
	collabs := &mockCollaboratorRepo{listFn: func(context.Context) ([]model.Collaborator, error) {
		if broken.Load() {
			return nil, errors.New("sheet unavailable")
		}
		return []model.Collaborator{ana()}, nil
	}}
	r := newTestRegistry(t, collabs, &mockRegistrationRepo{}, time.Nanosecond)
	broken.Store(true)

	if _, err := r.LookupWorker(context.Background(), "00000000001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := r.LookupWorker(context.Background(), ana().Identifier); err != nil {
		t.Errorf("known worker lost after failed reload: %v", err)
	}
}

func TestRegistry_LoadFailure(t *testing.T) {
	calc, _ := payroll.NewCalculator(payroll.DefaultTable())
	r := NewRegistry(
		&mockCollaboratorRepo{listFn: func(context.Context) ([]model.Collaborator, error) {
			return nil, errors.New("permission denied")
		}},
		&mockRegistrationRepo{},
		workday.NewResolver(workday.RuleWindow, saoPaulo(t)),
		calc,
		catalog.Default(),
		nil,
		NewMemoryGuard(),
		0,
		testLogger(),
	)
	if err := r.Load(context.Background()); !errors.Is(err, ErrStore) {
		t.Errorf("err = %v, want ErrStore", err)
	}
	if status, _ := r.CheckReady(); status != "fail" {
		t.Errorf("CheckReady = %q before a successful load", status)
	}
}

func TestRegistry_StatsAndRoles(t *testing.T) {
	r, _ := newStoreRegistry(t)
	st := r.Stats()
	if st.Collaborators != 2 || st.Registrations != 0 || st.LoadedAt.IsZero() {
		t.Errorf("Stats = %+v", st)
	}
	if status, _ := r.CheckReady(); status != "ok" {
		t.Errorf("CheckReady = %q", status)
	}
	roles, ok := r.Roles("Cozinha")
	if !ok || len(roles) != 3 {
		t.Errorf("Roles(Cozinha) = %v, %v", roles, ok)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{ErrValidation, "invalid"},
		{ErrNotFound, "unknown_worker"},
		{ErrRegistrationClosed, "closed"},
		{ErrDuplicate, "duplicate"},
		{ErrStore, "error"},
	}
	for _, tt := range tests {
		if got := outcome(tt.err); got != tt.want {
			t.Errorf("outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
