// Package lifecycle is the Sandbox Lifecycle Manager (§4.4) — the single
// source of truth for sandbox state transitions. All mutations of a
// Sandbox Record pass through this package.
package lifecycle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/matrx-platform/sandbox-orchestrator/internal/config"
	"github.com/matrx-platform/sandbox-orchestrator/internal/containerdriver"
	"github.com/matrx-platform/sandbox-orchestrator/internal/objectstore"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// sandboxLabelSelector is the label the reconciliation loop filters
// containers by, matching containerdriver.DockerDriver's labelPrefix
// convention.
const sandboxLabelSelector = "orchestrator.managed=true"

// Manager owns every sandbox state transition, grounded on the teacher's
// session.Manager: a registry.Store, a containerdriver.Driver, and a
// per-sandbox mutex map (sandboxLock/removeSandboxLock, after the
// teacher's sessionLock/removeSessionLock) that serializes
// exec/destroy races on the same sandbox_id (§5's ordering guarantee).
type Manager struct {
	cfg    *config.Config
	store  registry.Store
	driver containerdriver.Driver
	object *objectstore.Gateway
	logger *slog.Logger

	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// NewManager wires a Lifecycle Manager from its three collaborators plus
// the already-loaded config; logger defaults to slog.Default() if nil.
func NewManager(cfg *config.Config, store registry.Store, driver containerdriver.Driver, object *objectstore.Gateway, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		driver: driver,
		object: object,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (m *Manager) sandboxLock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	mu, ok := m.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[id] = mu
	}
	return mu
}

func (m *Manager) removeSandboxLock(id string) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	delete(m.locks, id)
}

// execDeadline resolves the effective deadline for an exec call: the
// caller's requested timeout when positive, else the configured default
// (§5: "every exec carries a deadline"). No upper bound is applied to the
// caller's timeout.
func (m *Manager) execDeadline(timeoutSeconds int) time.Time {
	seconds := m.cfg.ExecDefaultTimeoutSeconds
	if timeoutSeconds > 0 {
		seconds = timeoutSeconds
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}
