// Package sqlite is the single-node durable Registry Store backend,
// adapted from the teacher's internal/store package to persist
// registry.Record instead of a pool session. Suitable for a single
// orchestrator instance; multi-instance deployments should use postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// DefaultMaxOpenConns mirrors the teacher's pool sizing rationale: WAL mode
// allows multiple readers alongside a single writer.
const DefaultMaxOpenConns = 4

func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// dsnWithPragmas applies WAL + busy_timeout + cache pragmas per-connection,
// same rationale as the teacher: concurrent reads from the API and the
// reconcile/expiry loops while a single writer holds the lock briefly.
func dsnWithPragmas(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=cache_size(-64000)" +
		"&_pragma=temp_store(MEMORY)"
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
	config_json       TEXT NOT NULL DEFAULT '{}',
	ttl_seconds       INTEGER NOT NULL DEFAULT 0,
	expires_at        DATETIME,
	last_heartbeat_at DATETIME,
	stopped_at        DATETIME,
	stop_reason       TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sandboxes_user_id ON sandboxes(user_id);
CREATE INDEX IF NOT EXISTS idx_sandboxes_status ON sandboxes(status);
CREATE INDEX IF NOT EXISTS idx_sandboxes_expires_at ON sandboxes(expires_at);
`

// Store is a *sql.DB-backed registry.Store.
type Store struct {
	db *sql.DB
}

var _ registry.Store = (*Store)(nil)

// New opens dbPath (creating it if missing), applies pragmas, and ensures
// the schema exists. maxOpenConns <= 0 uses DefaultMaxOpenConns.
func New(dbPath string, maxOpenConns int) (*Store, error) {
	dsn := dsnWithPragmas(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = DefaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, rec *registry.Record) error {
	configJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	err = retryOnBusy(func() error {
		_, e := s.db.ExecContext(ctx,
			`INSERT INTO sandboxes (
				sandbox_id, user_id, container_id, status, hot_path, cold_path, cwd,
				config_json, ttl_seconds, expires_at, last_heartbeat_at, stopped_at,
				stop_reason, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SandboxID, rec.UserID, rec.ContainerID, string(rec.Status), rec.HotPath, rec.ColdPath, rec.Cwd,
			string(configJSON), rec.TTLSeconds, nullTime(rec.ExpiresAt), nullTime(rec.LastHeartbeatAt), nullTime(rec.StoppedAt),
			string(rec.StopReason), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
		)
		return e
	})
	if err != nil {
		if isUniqueViolation(err) {
			return registry.ErrConflict
		}
		return fmt.Errorf("inserting sandbox record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sandboxID string) (*registry.Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE sandbox_id = ?`, sandboxID)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, registry.ErrNotFound
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]*registry.Record, error) {
	var rows *sql.Rows
	var err error
	if userID == "" {
		rows, err = s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at ASC`)
	} else {
		rows, err = s.db.QueryContext(ctx, selectColumns+` WHERE user_id = ? ORDER BY created_at ASC`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing sandbox records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
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

	var result sql.Result
	err = retryOnBusy(func() error {
		var e error
		result, e = s.db.ExecContext(ctx,
			`UPDATE sandboxes SET
				container_id = ?, status = ?, cwd = ?, config_json = ?, ttl_seconds = ?,
				expires_at = ?, last_heartbeat_at = ?, stopped_at = ?, stop_reason = ?, updated_at = ?
			 WHERE sandbox_id = ?`,
			existing.ContainerID, string(existing.Status), existing.Cwd, string(configJSON), existing.TTLSeconds,
			nullTime(existing.ExpiresAt), nullTime(existing.LastHeartbeatAt), nullTime(existing.StoppedAt),
			string(existing.StopReason), existing.UpdatedAt.UTC(), sandboxID,
		)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("updating sandbox record: %w", err)
	}
	if err := checkRowAffected(result, sandboxID); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Store) Delete(ctx context.Context, sandboxID string) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.ExecContext(ctx, `DELETE FROM sandboxes WHERE sandbox_id = ?`, sandboxID)
		return e
	})
	if err != nil {
		return fmt.Errorf("deleting sandbox record: %w", err)
	}
	return checkRowAffected(result, sandboxID)
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*registry.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE status IN (?, ?) AND expires_at IS NOT NULL AND expires_at <= ?`,
		string(registry.StatusReady), string(registry.StatusRunning), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing expired sandbox records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

const selectColumns = `SELECT
	sandbox_id, user_id, container_id, status, hot_path, cold_path, cwd,
	config_json, ttl_seconds, expires_at, last_heartbeat_at, stopped_at,
	stop_reason, created_at, updated_at
FROM sandboxes`

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*registry.Record, error) {
	var rec registry.Record
	var configJSON string
	var status, stopReason string
	var expiresAt, lastHeartbeatAt, stoppedAt sql.NullTime

	err := row.Scan(
		&rec.SandboxID, &rec.UserID, &rec.ContainerID, &status, &rec.HotPath, &rec.ColdPath, &rec.Cwd,
		&configJSON, &rec.TTLSeconds, &expiresAt, &lastHeartbeatAt, &stoppedAt,
		&stopReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sandbox record: %w", err)
	}

	rec.Status = registry.Status(status)
	rec.StopReason = registry.StopReason(stopReason)
	if err := json.Unmarshal([]byte(configJSON), &rec.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	rec.ExpiresAt = timePtr(expiresAt)
	rec.LastHeartbeatAt = timePtr(lastHeartbeatAt)
	rec.StoppedAt = timePtr(stoppedAt)
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*registry.Record, error) {
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

func checkRowAffected(result sql.Result, sandboxID string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
