// Package postgres implements the storage ports on PostgreSQL through pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scour/internal/ports"
)

type DB struct {
	Pool *pgxpool.Pool
	geo  bool
}

func Connect(ctx context.Context, url string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() { db.Pool.Close() }

var geoColumns = []string{"lat", "lng", "radius_km", "geojson"}

// DetectSchema records whether the incidents table carries every geo column.
// Call it once after migrations; inserts consult the result instead of probing
// the schema per write.
func (db *DB) DetectSchema(ctx context.Context) error {
	var n int
	err := db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'incidents' AND column_name = ANY($1)
	`, geoColumns).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect incidents columns: %w", err)
	}
	db.geo = n == len(geoColumns)
	return nil
}

func (db *DB) SupportsGeoColumns() bool { return db.geo }

// ErrNotFound is the port-level sentinel so services can match it with
// errors.Is regardless of the adapter.
var ErrNotFound = ports.ErrNotFound

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

var (
	_ ports.SourceRepository   = (*DB)(nil)
	_ ports.IncidentRepository = (*DB)(nil)
	_ ports.TrendRepository    = (*DB)(nil)
	_ ports.JobStore           = (*DB)(nil)
	_ ports.JobLocker          = (*DB)(nil)
	_ ports.HealthStore        = (*DB)(nil)
	_ ports.QuotaStore         = (*DB)(nil)
	_ ports.SchemaCapabilities = (*DB)(nil)
)
