// registry.go is the attendance registry: collaborator lookup, the
// one-registration-per-work-day check and the registration itself.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/feirinha/checkin-module/internal/domain/catalog"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/identifier"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/model"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/payroll"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/workday"
	"github.com/bigkaa/feirinha/checkin-module/internal/repository"
)

// Service errors. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrValidation         = errors.New("invalid request")
	ErrNotFound           = errors.New("collaborator not found")
	ErrRegistrationClosed = errors.New("registration closed")
	ErrDuplicate          = errors.New("already registered for this work day")
	ErrStore              = errors.New("row store failure")
)

// Registry metrics.
var (
	registrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cm_registrations_total",
			Help: "Registration attempts by outcome.",
		},
		[]string{"outcome"},
	)
	paymentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_payments_total",
		Help: "Sum of payment amounts of successful registrations.",
	})
	snapshotRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cm_snapshot_rows",
			Help: "Number of records held in each in-memory snapshot.",
		},
		[]string{"snapshot"},
	)
	collaboratorReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cm_collaborator_reloads_total",
			Help: "Collaborator snapshot reloads triggered by lookup misses.",
		},
		[]string{"status"},
	)
)

// Request is a registration attempt as received from a worker.
type Request struct {
	Identifier string
	Sector     string
	Role       string
}

// Status is the answer to "did this worker already check in today".
type Status struct {
	Registered bool
	WorkDate   time.Time
	// Record is the matching registration when Registered is true.
	Record *model.Registration
}

// Stats describes the loaded snapshots.
type Stats struct {
	Collaborators int
	Registrations int
	LoadedAt      time.Time
}

// Registry owns the collaborators and registrations snapshots. The
// collaborators snapshot may be reloaded on a lookup miss; the
// registrations snapshot is loaded once and then only appended to by this
// process.
type Registry struct {
	collaborators  repository.CollaboratorRepository
	registrations  repository.RegistrationRepository
	resolver       *workday.Resolver
	pay            *payroll.Calculator
	catalog        *catalog.Catalog
	cache          *CollaboratorCache
	guard          Guard
	reloadInterval time.Duration
	logger         *slog.Logger
	now            func() time.Time

	mu         sync.RWMutex
	byID       map[string]model.Collaborator
	regs       []model.Registration
	regIndex   map[string]int
	loadedAt   time.Time
	lastReload time.Time

	reloads singleflight.Group
}

// NewRegistry creates a registry. Load must be called before use.
// A non-positive reloadInterval disables reloads on lookup misses.
func NewRegistry(
	collaborators repository.CollaboratorRepository,
	registrations repository.RegistrationRepository,
	resolver *workday.Resolver,
	pay *payroll.Calculator,
	cat *catalog.Catalog,
	cache *CollaboratorCache,
	guard Guard,
	reloadInterval time.Duration,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		collaborators:  collaborators,
		registrations:  registrations,
		resolver:       resolver,
		pay:            pay,
		catalog:        cat,
		cache:          cache,
		guard:          guard,
		reloadInterval: reloadInterval,
		logger:         logger.With(slog.String("component", "registry")),
		now:            time.Now,
		byID:           make(map[string]model.Collaborator),
		regIndex:       make(map[string]int),
	}
}

// Load reads both sheets concurrently and replaces the snapshots.
func (r *Registry) Load(ctx context.Context) error {
	var (
		collabs []model.Collaborator
		regs    []model.Registration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		collabs, err = r.collaborators.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		regs, err = r.registrations.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: load snapshots: %v", ErrStore, err)
	}

	byID := indexCollaborators(collabs)
	regIndex := make(map[string]int, len(regs))
	for i, reg := range regs {
		regIndex[reg.Key()] = i
	}

	now := r.now()
	r.mu.Lock()
	r.byID = byID
	r.regs = regs
	r.regIndex = regIndex
	r.loadedAt = now
	r.lastReload = now
	r.mu.Unlock()

	if r.cache != nil {
		r.cache.Purge()
	}
	snapshotRows.WithLabelValues("collaborators").Set(float64(len(byID)))
	snapshotRows.WithLabelValues("registrations").Set(float64(len(regs)))

	r.logger.Info("Snapshots loaded",
		slog.Int("collaborators", len(byID)),
		slog.Int("registrations", len(regs)),
	)
	return nil
}

// LookupWorker returns the collaborator with the given identifier.
func (r *Registry) LookupWorker(ctx context.Context, rawID string) (model.Collaborator, error) {
	id := identifier.Normalize(rawID)

	if r.cache != nil {
		if c, ok := r.cache.Get(id); ok {
			return c, nil
		}
	}
	if c, ok := r.collaborator(id); ok {
		r.remember(c)
		return c, nil
	}

	if r.reloadDue() {
		r.reloadCollaborators(ctx)
		if c, ok := r.collaborator(id); ok {
			r.remember(c)
			return c, nil
		}
	}
	return model.Collaborator{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// HasRegisteredToday reports whether rawID already has a registration for
// the work day containing now.
func (r *Registry) HasRegisteredToday(_ context.Context, rawID string, now time.Time) (Status, error) {
	id := identifier.Normalize(rawID)
	workDate, ok := r.resolver.Resolve(now)
	if !ok {
		return Status{}, ErrRegistrationClosed
	}

	st := Status{WorkDate: workDate}
	if reg, found := r.find(id, workDate); found {
		st.Registered = true
		st.Record = &reg
	}
	return st, nil
}

// Register records a check-in. On success the returned record has been
// appended to the store and to the snapshot.
func (r *Registry) Register(ctx context.Context, req Request, now time.Time) (model.Registration, error) {
	reg, err := r.register(ctx, req, now)
	registrationsTotal.WithLabelValues(outcome(err)).Inc()
	return reg, err
}

func (r *Registry) register(ctx context.Context, req Request, now time.Time) (model.Registration, error) {
	// 1. Required fields and sector/role consistency.
	if identifier.IsBlank(req.Identifier) {
		return model.Registration{}, fmt.Errorf("%w: identifier is required", ErrValidation)
	}
	if strings.TrimSpace(req.Sector) == "" || strings.TrimSpace(req.Role) == "" {
		return model.Registration{}, fmt.Errorf("%w: sector and role are required", ErrValidation)
	}
	sector, role, ok := r.catalog.Match(req.Sector, req.Role)
	if !ok {
		return model.Registration{}, fmt.Errorf("%w: role %q is not offered in sector %q", ErrValidation, req.Role, req.Sector)
	}

	// 2. Known collaborator.
	collab, err := r.LookupWorker(ctx, req.Identifier)
	if err != nil {
		return model.Registration{}, err
	}

	// 3. Open work day.
	workDate, ok := r.resolver.Resolve(now)
	if !ok {
		return model.Registration{}, ErrRegistrationClosed
	}

	// 4. Exclusive claim, then the authoritative duplicate check.
	key := model.ClaimKey(collab.Identifier, workDate)
	claim, err := r.guard.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return model.Registration{}, err
		}
		return model.Registration{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	committed := false
	defer func() { claim.Release(ctx, committed) }()

	if _, found := r.find(collab.Identifier, workDate); found {
		return model.Registration{}, fmt.Errorf("%w: %s on %s", ErrDuplicate, collab.Identifier, workDate.Format(model.DateLayout))
	}

	// 5. Pay.
	day := workday.Weekday(workDate)
	reg := model.Registration{
		Timestamp:     now.In(r.resolver.Location()),
		WorkDate:      workDate,
		DayOfWeek:     day,
		Sector:        sector,
		Role:          role,
		Identifier:    collab.Identifier,
		Name:          collab.FullName,
		PaymentKey:    collab.PaymentKey,
		PaymentAmount: r.pay.Calculate(role, day),
	}

	// 6. Durable append; the snapshot is untouched on failure.
	if err := r.registrations.Append(ctx, reg); err != nil {
		r.logger.Error("Registration append failed",
			slog.String("identifier", reg.Identifier),
			slog.String("error", err.Error()),
		)
		return model.Registration{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	// 7. Snapshot.
	r.mu.Lock()
	r.regIndex[reg.Key()] = len(r.regs)
	r.regs = append(r.regs, reg)
	n := len(r.regs)
	r.mu.Unlock()
	committed = true

	snapshotRows.WithLabelValues("registrations").Set(float64(n))
	paymentsTotal.Add(float64(reg.PaymentAmount))
	r.logger.Info("Worker registered",
		slog.String("identifier", reg.Identifier),
		slog.String("work_date", reg.WorkDate.Format(model.DateLayout)),
		slog.String("sector", reg.Sector),
		slog.String("role", reg.Role),
		slog.Int("payment", reg.PaymentAmount),
	)
	return reg, nil
}

// Registrations returns a copy of every known registration in order.
func (r *Registry) Registrations() []model.Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Registration, len(r.regs))
	copy(out, r.regs)
	return out
}

// Stats returns snapshot sizes.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Collaborators: len(r.byID),
		Registrations: len(r.regs),
		LoadedAt:      r.loadedAt,
	}
}

// Sectors returns the sector names in catalog order.
func (r *Registry) Sectors() []string {
	return r.catalog.Sectors()
}

// Roles returns the roles offered in sector.
func (r *Registry) Roles(sector string) ([]string, bool) {
	return r.catalog.Roles(sector)
}

// CheckReady reports whether the snapshots were loaded.
func (r *Registry) CheckReady() (status string, message string) {
	st := r.Stats()
	if st.LoadedAt.IsZero() {
		return "fail", "snapshots not loaded"
	}
	return "ok", fmt.Sprintf("%d collaborators, %d registrations", st.Collaborators, st.Registrations)
}

func (r *Registry) collaborator(id string) (model.Collaborator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

func (r *Registry) remember(c model.Collaborator) {
	if r.cache != nil {
		r.cache.Set(c.Identifier, c)
	}
}

func (r *Registry) find(id string, workDate time.Time) (model.Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.regIndex[model.ClaimKey(id, workDate)]
	if !ok {
		return model.Registration{}, false
	}
	return r.regs[i], true
}

func (r *Registry) reloadDue() bool {
	if r.reloadInterval <= 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.now().Sub(r.lastReload) >= r.reloadInterval
}

// reloadCollaborators refreshes the collaborators snapshot. Concurrent
// misses share one read of the sheet. Failures keep the old snapshot.
func (r *Registry) reloadCollaborators(ctx context.Context) {
	_, _, _ = r.reloads.Do("collaborators", func() (any, error) {
		if !r.reloadDue() {
			return nil, nil
		}
		collabs, err := r.collaborators.List(ctx)

		r.mu.Lock()
		r.lastReload = r.now()
		if err == nil {
			r.byID = indexCollaborators(collabs)
		}
		n := len(r.byID)
		r.mu.Unlock()

		if err != nil {
			collaboratorReloadsTotal.WithLabelValues("error").Inc()
			r.logger.Warn("Collaborator reload failed, keeping previous snapshot",
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		if r.cache != nil {
			r.cache.Purge()
		}
		collaboratorReloadsTotal.WithLabelValues("ok").Inc()
		snapshotRows.WithLabelValues("collaborators").Set(float64(n))
		r.logger.Info("Collaborators reloaded", slog.Int("collaborators", n))
		return nil, nil
	})
}

func indexCollaborators(collabs []model.Collaborator) map[string]model.Collaborator {
	byID := make(map[string]model.Collaborator, len(collabs))
	for _, c := range collabs {
		if _, dup := byID[c.Identifier]; !dup {
			byID[c.Identifier] = c
		}
	}
	return byID
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "unknown_worker"
	case errors.Is(err, ErrRegistrationClosed):
		return "closed"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	default:
		return "error"
	}
}
