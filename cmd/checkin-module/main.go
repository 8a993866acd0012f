// main.go is the entry point of the Feirinha check-in module.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/feirinha/checkin-module/internal/api/handlers"
	"github.com/bigkaa/feirinha/checkin-module/internal/api/middleware"
	"github.com/bigkaa/feirinha/checkin-module/internal/config"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/catalog"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/payroll"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/workday"
	"github.com/bigkaa/feirinha/checkin-module/internal/repository"
	"github.com/bigkaa/feirinha/checkin-module/internal/rowstore"
	"github.com/bigkaa/feirinha/checkin-module/internal/server"
	"github.com/bigkaa/feirinha/checkin-module/internal/service"
)

const serviceID = "checkin-module"

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Config load failed", slog.String("error", err.Error()))
		return 1
	}

	// 2. Logger
	logger := config.SetupLogger(cfg)
	logger.Info("Check-in module starting",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("workday_rule", string(cfg.WorkdayRule)),
		slog.String("timezone", cfg.Location.String()),
	)

	ctx := context.Background()

	// 3. Catalog and pay table
	cat, table := catalog.Default(), payroll.DefaultTable()
	if cfg.CatalogPath != "" {
		cat, table, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			logger.Error("Catalog load failed",
				slog.String("path", cfg.CatalogPath),
				slog.String("error", err.Error()),
			)
			return 1
		}
	}
	pay, err := payroll.NewCalculator(table)
	if err != nil {
		logger.Error("Invalid pay table", slog.String("error", err.Error()))
		return 1
	}

	// 4. Row store
	opened, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Row store unavailable",
			slog.String("backend", cfg.StoreBackend),
			slog.String("error", err.Error()),
		)
		return 1
	}
	store := rowstore.Instrument(opened.store, cfg.StoreBackend, cfg.StoreTimeout)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Row store close failed", slog.String("error", err.Error()))
		}
	}()

	// Local backends start empty, so their sheets are always created.
	if cfg.StoreCreateSheets || cfg.StoreBackend == config.BackendMemory || cfg.StoreBackend == config.BackendXLSX {
		for sheet, header := range map[string][]string{
			cfg.CollaboratorsSheet: repository.CollaboratorsHeader,
			cfg.RegistrationsSheet: repository.RegistrationsHeader,
		} {
			if err := store.EnsureSheet(ctx, sheet, header); err != nil {
				logger.Error("Sheet creation failed",
					slog.String("sheet", sheet),
					slog.String("error", err.Error()),
				)
				return 1
			}
		}
	}

	// 5. Claim guard
	var guard service.Guard = service.NewMemoryGuard()
	var redisGuard *service.RedisGuard
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("Invalid CM_REDIS_URL", slog.String("error", err.Error()))
			return 1
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("Redis unreachable", slog.String("addr", opts.Addr), slog.String("error", err.Error()))
			return 1
		}
		redisGuard = service.NewRedisGuard(client, cfg.ClaimTTL, logger)
		guard = redisGuard
		logger.Info("Redis claim guard enabled",
			slog.String("addr", opts.Addr),
			slog.Duration("claim_ttl", cfg.ClaimTTL),
		)
	}

	// 6. Registry with initial snapshots
	resolver := workday.NewResolver(cfg.WorkdayRule, cfg.Location)
	var cache *service.CollaboratorCache
	if cfg.CacheSize > 0 {
		cache = service.NewCollaboratorCache(cfg.CacheSize, cfg.CacheTTL)
	}
	registry := service.NewRegistry(
		repository.NewCollaboratorRepository(store, cfg.CollaboratorsSheet, logger),
		repository.NewRegistrationRepository(store, cfg.RegistrationsSheet, resolver, logger),
		resolver, pay, cat, cache, guard,
		cfg.CollaboratorsReloadInterval,
		logger,
	)
	if err := registry.Load(ctx); err != nil {
		logger.Error("Initial snapshot load failed", slog.String("error", err.Error()))
		return 1
	}

	// 7. Health
	checkers := []handlers.NamedChecker{
		{Name: "rowstore", Checker: store},
		{Name: "registry", Checker: registry},
	}
	if redisGuard != nil {
		checkers = append(checkers, handlers.NamedChecker{Name: "redis", Checker: redisGuard})
	}

	// 8. JWT protection of the registrations listing
	var adminAuth func(http.Handler) http.Handler
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err := middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.JWTCACertPath,
			cfg.JWTIssuer,
			cfg.JWTAdminGroups,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("JWT middleware init failed", slog.String("error", err.Error()))
			return 1
		}
		requireAdmin := middleware.RequireAdmin(cfg.JWTAdminScopes...)
		adminAuth = func(next http.Handler) http.Handler {
			return jwtAuth.Middleware()(requireAdmin(next))
		}

		jwksChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWTCACertPath, cfg.JWKSClientTimeout)
		if err != nil {
			logger.Error("JWKS readiness checker init failed", slog.String("error", err.Error()))
			return 1
		}
		checkers = append(checkers, handlers.NamedChecker{Name: "jwks", Checker: jwksChecker})
		logger.Info("JWT protection enabled for /registrations",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("CM_JWT_JWKS_URL not set, /registrations is not protected")
	}

	// 9. Dependency monitoring
	if cfg.DephealthEnabled {
		if os.Getenv("CM_DEPHEALTH_GROUP") == "" {
			logger.Warn("CM_DEPHEALTH_GROUP not set, using default",
				slog.String("default", cfg.DephealthGroup),
			)
		}
		dephealthSvc, err := service.NewDephealthService(
			serviceID,
			cfg.DephealthGroup,
			opened.targets,
			cfg.DephealthCheckInterval,
			cfg.DephealthIsEntry,
			logger,
		)
		if err != nil {
			logger.Warn("topologymetrics unavailable, running without dependency monitoring",
				slog.String("error", err.Error()),
			)
		} else if err := dephealthSvc.Start(ctx); err != nil {
			logger.Warn("topologymetrics start failed", slog.String("error", err.Error()))
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics started",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 10. HTTP server
	apiHandler := handlers.NewAPIHandler(handlers.NewHealthHandler(checkers...), registry, logger)
	srv := server.New(cfg, logger, apiHandler, adminAuth,
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(cfg.APIPrefix),
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Server error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("Check-in module stopped")
	return 0
}

// openedStore is a backend plus what dependency monitoring should watch.
type openedStore struct {
	store   rowstore.Store
	targets service.DependencyTargets
}

const (
	sheetsAPIURL        = "https://sheets.googleapis.com"
	sheetsDiscoveryPath = "/$discovery/rest?version=v4"
)

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (openedStore, error) {
	switch cfg.StoreBackend {
	case config.BackendSheets:
		s, err := newSheetsStore(ctx, cfg, logger)
		if err != nil {
			return openedStore{}, err
		}
		endpoint := sheetsAPIURL
		if cfg.SheetsEndpoint != "" {
			endpoint = cfg.SheetsEndpoint
		}
		return openedStore{store: s, targets: service.DependencyTargets{
			HTTPName:       "google-sheets",
			HTTPURL:        endpoint,
			HTTPHealthPath: sheetsDiscoveryPath,
		}}, nil

	case config.BackendXLSX:
		s, err := newXLSXStore(cfg, logger)
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{store: s}, nil

	case config.BackendPostgres:
		s, pool, err := newPostgresStore(ctx, cfg, logger)
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{store: s, targets: service.DependencyTargets{
			PostgresDB:  stdlib.OpenDBFromPool(pool),
			PostgresURL: cfg.DatabaseURL,
		}}, nil

	case config.BackendMemory:
		logger.Warn("Memory row store: registrations are lost on restart")
		return openedStore{store: rowstore.NewMemory()}, nil
	}
	return openedStore{}, errors.New("unknown backend " + cfg.StoreBackend)
}
