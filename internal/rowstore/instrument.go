package rowstore

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Row store metrics.
var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cm_rowstore_operations_total",
			Help: "Total number of row store operations by backend, operation and status.",
		},
		[]string{"backend", "operation", "status"},
	)
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cm_rowstore_operation_duration_seconds",
			Help:    "Row store operation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
)

// Instrumented decorates a Store with a per-call timeout and Prometheus
// metrics. Optional capabilities of the wrapped store are forwarded; when
// the wrapped store lacks one, the call is a no-op.
type Instrumented struct {
	next    Store
	backend string
	timeout time.Duration
}

// Instrument wraps next. A non-positive timeout disables the deadline.
func Instrument(next Store, backend string, timeout time.Duration) *Instrumented {
	return &Instrumented{next: next, backend: backend, timeout: timeout}
}

// Backend returns the backend label.
func (s *Instrumented) Backend() string {
	return s.backend
}

// ReadAll implements Store.
func (s *Instrumented) ReadAll(ctx context.Context, sheet string) ([][]string, error) {
	var rows [][]string
	err := s.observe(ctx, "read_all", func(ctx context.Context) error {
		var err error
		rows, err = s.next.ReadAll(ctx, sheet)
		return err
	})
	return rows, err
}

// Append implements Store.
func (s *Instrumented) Append(ctx context.Context, sheet string, values []any) error {
	return s.observe(ctx, "append", func(ctx context.Context) error {
		return s.next.Append(ctx, sheet, values)
	})
}

// EnsureSheet implements Initializer.
func (s *Instrumented) EnsureSheet(ctx context.Context, sheet string, header []string) error {
	init, ok := s.next.(Initializer)
	if !ok {
		return nil
	}
	return s.observe(ctx, "ensure_sheet", func(ctx context.Context) error {
		return init.EnsureSheet(ctx, sheet, header)
	})
}

// Ping implements Pinger.
func (s *Instrumented) Ping(ctx context.Context) error {
	p, ok := s.next.(Pinger)
	if !ok {
		return nil
	}
	return s.observe(ctx, "ping", p.Ping)
}

// CheckReady pings the backend for the readiness probe.
func (s *Instrumented) CheckReady() (status, message string) {
	if err := s.Ping(context.Background()); err != nil {
		return "fail", s.backend + ": " + err.Error()
	}
	return "ok", s.backend + " reachable"
}

// Close closes the wrapped store when it holds resources.
func (s *Instrumented) Close() error {
	if c, ok := s.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Instrumented) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	operationDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	operationsTotal.WithLabelValues(s.backend, op, status).Inc()
	return err
}
