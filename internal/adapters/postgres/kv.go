package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scour/internal/domain"
)

const healthKeyPrefix = "source_health:"

func (db *DB) GetHealth(ctx context.Context, sourceID string) (domain.SourceHealthState, bool, error) {
	var raw []byte
	err := db.Pool.QueryRow(ctx, `SELECT value FROM app_kv WHERE key = $1`, healthKeyPrefix+sourceID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SourceHealthState{}, false, nil
	}
	if err != nil {
		return domain.SourceHealthState{}, false, err
	}
	var st domain.SourceHealthState
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.SourceHealthState{}, false, fmt.Errorf("decode health %s: %w", sourceID, err)
	}
	return st, true, nil
}

func (db *DB) SaveHealth(ctx context.Context, state domain.SourceHealthState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO app_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, healthKeyPrefix+state.SourceID, raw)
	return err
}

// IncrementQuota bumps the (kind, day, user) counter atomically.
func (db *DB) IncrementQuota(ctx context.Context, kind, day, userID string) (int64, error) {
	var n int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO usage_counters (kind, day, user_id, count) VALUES ($1, $2, $3, 1)
		ON CONFLICT (kind, day, user_id) DO UPDATE SET count = usage_counters.count + 1
		RETURNING count
	`, kind, day, userID).Scan(&n)
	return n, err
}
