// Package postgres keeps sheets in PostgreSQL: one row per sheet in
// "sheets" and every data row, header included, in "sheet_rows" as a text
// array. Row order is insertion order (id).
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/feirinha/checkin-module/internal/rowstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// foreignKeyViolation is the SQLSTATE raised when a row references a
// sheet that does not exist.
const foreignKeyViolation = "23503"

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a connection pool and pings it.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		slog.String("host", poolCfg.ConnConfig.Host),
		slog.Int("port", int(poolCfg.ConnConfig.Port)),
		slog.String("database", poolCfg.ConnConfig.Database),
	)
	return pool, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(dsn string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, MigrateURL(dsn))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations applied",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// MigrateURL rewrites a postgres:// DSN to the pgx5:// scheme expected by
// the migrate driver.
func MigrateURL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}

// Store implements rowstore.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	db   DBTX
}

// New creates a store on pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// ReadAll implements rowstore.Store.
func (s *Store) ReadAll(ctx context.Context, sheet string) ([][]string, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sheets WHERE name = $1)`, sheet).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check sheet %s: %w", sheet, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", rowstore.ErrSheetNotFound, sheet)
	}

	rows, err := s.db.Query(ctx, `SELECT cells FROM sheet_rows WHERE sheet = $1 ORDER BY id`, sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[[]string])
	if err != nil {
		return nil, fmt.Errorf("scan sheet %s: %w", sheet, err)
	}
	return out, nil
}

// Append implements rowstore.Store.
func (s *Store) Append(ctx context.Context, sheet string, values []any) error {
	_, err := s.db.Exec(ctx, `INSERT INTO sheet_rows (sheet, cells) VALUES ($1, $2)`, sheet, rowstore.Cells(values))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return fmt.Errorf("%w: %s", rowstore.ErrSheetNotFound, sheet)
		}
		return fmt.Errorf("append to %s: %w", sheet, err)
	}
	return nil
}

// EnsureSheet implements rowstore.Initializer. The sheet and its header
// row are created in one transaction.
func (s *Store) EnsureSheet(ctx context.Context, sheet string, header []string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO sheets (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, sheet)
		if err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `INSERT INTO sheet_rows (sheet, cells) VALUES ($1, $2)`, sheet, header); err != nil {
			return fmt.Errorf("write header of %s: %w", sheet, err)
		}
		return nil
	})
}

// Ping implements rowstore.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
