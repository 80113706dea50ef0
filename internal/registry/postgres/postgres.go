// Package postgres is the multi-instance durable Registry Store backend,
// grounded on antwort's pkg/storage/postgres.Store: pgxpool for connection
// pooling, JSONB for the free-form Config column, and a unique-violation
// check translating into registry.ErrConflict.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// Config holds connection and pool-sizing settings.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrateOnStart  bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MinConns == 0 {
		c.MinConns = 5
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sandboxes (
	sandbox_id        TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	container_id      TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	hot_path          TEXT NOT NULL DEFAULT '',
	cold_path         TEXT NOT NULL DEFAULT '',
	cwd               TEXT NOT NULL DEFAULT '',
	config            JSONB NOT NULL DEFAULT '{}',
	ttl_seconds       INTEGER NOT NULL DEFAULT 0,
	expires_at        TIMESTAMPTZ,
	last_heartbeat_at TIMESTAMPTZ,
	stopped_at        TIMESTAMPTZ,
	stop_reason       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sandboxes_user_id ON sandboxes(user_id);
CREATE INDEX IF NOT EXISTS idx_sandboxes_expiry_sweep ON sandboxes(status, expires_at);
`

// Store is a pgx-backed registry.Store, safe for concurrent use by multiple
// orchestrator instances sharing one database (per §4.1's "production"
// backend requirement).
type Store struct {
	pool *pgxpool.Pool
}

var _ registry.Store = (*Store)(nil)

// New opens a connection pool against cfg.DSN, verifies connectivity, and
// optionally creates the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if _, err := pool.Exec(ctx, createTableSQL); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

func (s *Store) Save(ctx context.Context, rec *registry.Record) error {
	configJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sandboxes (
			sandbox_id, user_id, container_id, status, hot_path, cold_path, cwd,
			config, ttl_seconds, expires_at, last_heartbeat_at, stopped_at,
			stop_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		rec.SandboxID, rec.UserID, rec.ContainerID, string(rec.Status), rec.HotPath, rec.ColdPath, rec.Cwd,
		configJSON, rec.TTLSeconds, rec.ExpiresAt, rec.LastHeartbeatAt, rec.StoppedAt,
		string(rec.StopReason), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return registry.ErrConflict
		}
		return fmt.Errorf("inserting sandbox record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sandboxID string) (*registry.Record, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE sandbox_id = $1`, sandboxID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]*registry.Record, error) {
	var rows pgx.Rows
	var err error
	if userID == "" {
		rows, err = s.pool.Query(ctx, selectColumns+` ORDER BY created_at ASC`)
	} else {
		rows, err = s.pool.Query(ctx, selectColumns+` WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing sandbox records: %w", err)
	}
	defer rows.Close()

	var out []*registry.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sandbox records: %w", err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, sandboxID string, patch registry.Patch) (*registry.Record, error) {
	existing, err := s.Get(ctx, sandboxID)
	if err != nil {
		return nil, err
	}
	patch.Apply(existing, time.Now().UTC())

	configJSON, err := json.Marshal(existing.Config)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sandboxes SET
			container_id = $1, status = $2, cwd = $3, config = $4, ttl_seconds = $5,
			expires_at = $6, last_heartbeat_at = $7, stopped_at = $8, stop_reason = $9, updated_at = $10
		WHERE sandbox_id = $11
	`,
		existing.ContainerID, string(existing.Status), existing.Cwd, configJSON, existing.TTLSeconds,
		existing.ExpiresAt, existing.LastHeartbeatAt, existing.StoppedAt, string(existing.StopReason),
		existing.UpdatedAt.UTC(), sandboxID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating sandbox record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, registry.ErrNotFound
	}
	return existing, nil
}

func (s *Store) Delete(ctx context.Context, sandboxID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sandboxes WHERE sandbox_id = $1`, sandboxID)
	if err != nil {
		return fmt.Errorf("deleting sandbox record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// ListExpired runs as a single indexed query (idx_sandboxes_expiry_sweep)
// rather than a per-record scan, per the orchestrator's supplemented
// reconciliation design.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*registry.Record, error) {
	rows, err := s.pool.Query(ctx,
		selectColumns+` WHERE status IN ($1, $2) AND expires_at IS NOT NULL AND expires_at <= $3`,
		string(registry.StatusReady), string(registry.StatusRunning), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing expired sandbox records: %w", err)
	}
	defer rows.Close()

	var out []*registry.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const selectColumns = `SELECT
	sandbox_id, user_id, container_id, status, hot_path, cold_path, cwd,
	config, ttl_seconds, expires_at, last_heartbeat_at, stopped_at,
	stop_reason, created_at, updated_at
FROM sandboxes`

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*registry.Record, error) {
	var rec registry.Record
	var configJSON []byte
	var status, stopReason string

	err := row.Scan(
		&rec.SandboxID, &rec.UserID, &rec.ContainerID, &status, &rec.HotPath, &rec.ColdPath, &rec.Cwd,
		&configJSON, &rec.TTLSeconds, &rec.ExpiresAt, &rec.LastHeartbeatAt, &rec.StoppedAt,
		&stopReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = registry.Status(status)
	rec.StopReason = registry.StopReason(stopReason)
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &rec.Config); err != nil {
			return nil, fmt.Errorf("unmarshaling config: %w", err)
		}
	}
	return &rec, nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
