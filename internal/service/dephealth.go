// dephealth.go integrates the topologymetrics SDK to monitor the row
// store backend:
//   - PostgreSQL: SQL checker over the existing pgxpool (critical)
//   - Google Sheets API: HTTP checker against the discovery document (critical)
//
// Only the backend actually configured is monitored. Metrics are exposed
// on /metrics next to the service metrics:
//   - app_dependency_health
//   - app_dependency_latency_seconds
//   - app_dependency_status
//   - app_dependency_status_detail
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // registers the HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DependencyTargets lists what to monitor. Zero-valued targets are skipped.
type DependencyTargets struct {
	// PostgresDB is obtained from the pool via stdlib.OpenDBFromPool.
	PostgresDB *sql.DB
	// PostgresURL is used for labels only.
	PostgresURL string
	// HTTPName and HTTPURL describe an HTTP dependency such as the
	// Sheets API; HTTPHealthPath is probed on it.
	HTTPName       string
	HTTPURL        string
	HTTPHealthPath string
}

func (t DependencyTargets) empty() bool {
	return t.PostgresDB == nil && t.HTTPURL == ""
}

// DephealthService monitors dependencies through topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService creates the monitor with metrics in the global
// Prometheus registry.
func NewDephealthService(
	serviceID string,
	group string,
	targets DependencyTargets,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, isEntry, logger)
}

// NewDephealthServiceWithRegisterer creates the monitor with a custom
// registerer. Used in tests to isolate metrics.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	targets DependencyTargets,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, isEntry,
		logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	targets DependencyTargets,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	if targets.empty() {
		return nil, errors.New("no dependencies to monitor")
	}

	common := func(rawURL string) []dephealth.DependencyOption {
		opts := []dephealth.DependencyOption{
			dephealth.FromURL(rawURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		}
		if isEntry {
			opts = append(opts, dephealth.WithLabel("isentry", "yes"))
		}
		return opts
	}

	opts := make([]dephealth.Option, 0, 3+len(extraOpts))
	opts = append(opts, dephealth.WithLogger(logger))

	if targets.PostgresDB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(targets.PostgresDB)), common(targets.PostgresURL)...))
	}

	if targets.HTTPURL != "" {
		httpOpts := common(targets.HTTPURL)
		if targets.HTTPHealthPath != "" {
			httpOpts = append(httpOpts, dephealth.WithHTTPHealthPath(targets.HTTPHealthPath))
		}
		if parsed, err := url.Parse(targets.HTTPURL); err == nil && parsed.Scheme == "https" {
			httpOpts = append(httpOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		name := targets.HTTPName
		if name == "" {
			name = "http-backend"
		}
		opts = append(opts, dephealth.HTTP(name, httpOpts...))
	}

	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start begins periodic dependency checks.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Dependency monitoring started")
	return ds.dh.Start(ctx)
}

// Stop ends dependency checks.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Dependency monitoring stopped")
}

// Health returns the current state per dependency, true meaning ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
