// Package registry holds the durable Sandbox Record and the Store interface
// that every backend (memory, sqlite, postgres) implements identically, per
// §4.1. The Lifecycle Manager is the only caller.
package registry

import (
	"context"
	"errors"
	"time"
)

// Status is one of the states in the §4.4 state machine.
type Status string

const (
	StatusCreating     Status = "creating"
	StatusStarting     Status = "starting"
	StatusReady        Status = "ready"
	StatusRunning      Status = "running"
	StatusShuttingDown Status = "shutting_down"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
	StatusExpired      Status = "expired"
)

// StopReason is the documented cause of a terminal transition.
type StopReason string

const (
	StopReasonUserRequested    StopReason = "user_requested"
	StopReasonExpired          StopReason = "expired"
	StopReasonError            StopReason = "error"
	StopReasonGracefulShutdown StopReason = "graceful_shutdown"
	StopReasonAdmin            StopReason = "admin"
)

// NonTerminalStatuses lists every status a live container may be in.
var NonTerminalStatuses = []Status{
	StatusCreating, StatusStarting, StatusReady, StatusRunning, StatusShuttingDown,
}

// ActiveStatuses lists statuses eligible for the expiry sweep (§4.4).
var ActiveStatuses = []Status{StatusReady, StatusRunning}

// Record is the central entity described in spec §3. JSON tags fix the
// wire shape returned directly by the HTTP layer as "the Sandbox Record".
type Record struct {
	SandboxID   string `json:"sandbox_id"`
	UserID      string `json:"user_id"`
	ContainerID string `json:"container_id,omitempty"`

	Status Status `json:"status"`

	HotPath  string `json:"hot_path"`
	ColdPath string `json:"cold_path"`
	Cwd      string `json:"cwd"`

	Config map[string]string `json:"config,omitempty"`

	TTLSeconds int        `json:"ttl_seconds"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`

	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`

	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	StopReason StopReason `json:"stop_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch carries a partial update for Update. Nil fields are left untouched;
// ExpiresAt can be cleared (as distinct from left alone) by setting
// ClearExpiresAt. StoppedAt has no clear flag.
type Patch struct {
	ContainerID *string
	Status      *Status
	Cwd         *string
	Config      map[string]string // replaces wholesale when non-nil
	TTLSeconds  *int
	ExpiresAt   *time.Time
	ClearExpiresAt bool

	LastHeartbeatAt *time.Time

	StoppedAt      *time.Time
	StopReason     *StopReason
}

// Sentinel errors, classified by the HTTP layer per §7.
var (
	ErrNotFound = errors.New("registry: record not found")
	ErrConflict = errors.New("registry: sandbox_id already exists")
)

// Store is the uniform interface every backend implements (§4.1).
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, sandboxID string) (*Record, error)
	List(ctx context.Context, userID string) ([]*Record, error)
	Update(ctx context.Context, sandboxID string, patch Patch) (*Record, error)
	Delete(ctx context.Context, sandboxID string) error
	ListExpired(ctx context.Context, now time.Time) ([]*Record, error)
	Close() error
}

// Apply mutates rec in place with patch and advances UpdatedAt. The memory
// backend applies it to its stored record; the SQL backends read the row,
// apply the patch to that copy, and write every mutable column back.
func (p Patch) Apply(rec *Record, now time.Time) {
	if p.ContainerID != nil {
		rec.ContainerID = *p.ContainerID
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Cwd != nil {
		rec.Cwd = *p.Cwd
	}
	if p.Config != nil {
		rec.Config = p.Config
	}
	if p.TTLSeconds != nil {
		rec.TTLSeconds = *p.TTLSeconds
	}
	if p.ClearExpiresAt {
		rec.ExpiresAt = nil
	} else if p.ExpiresAt != nil {
		rec.ExpiresAt = p.ExpiresAt
	}
	if p.LastHeartbeatAt != nil {
		rec.LastHeartbeatAt = p.LastHeartbeatAt
	}
	if p.StoppedAt != nil {
		rec.StoppedAt = p.StoppedAt
	}
	if p.StopReason != nil {
		rec.StopReason = *p.StopReason
	}
	rec.UpdatedAt = now
}

// Clone returns a deep-enough copy of rec so callers mutating the result
// cannot corrupt a backend's internal state (relevant to the memory backend).
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Config != nil {
		c.Config = make(map[string]string, len(r.Config))
		for k, v := range r.Config {
			c.Config[k] = v
		}
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	if r.LastHeartbeatAt != nil {
		t := *r.LastHeartbeatAt
		c.LastHeartbeatAt = &t
	}
	if r.StoppedAt != nil {
		t := *r.StoppedAt
		c.StoppedAt = &t
	}
	return &c
}
