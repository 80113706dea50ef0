// Package memory is the in-process Registry Store backend — the
// "development" backend from spec §4.1. All state is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// Store is a mutex-guarded map keyed by sandbox_id, following the
// antwort-dev-antwort memory.Store's entry/lock/eviction shape, adapted
// from LRU eviction to time-based retention of terminal records (spec §3's
// Lifecycle requires records survive for audit; only a retention window,
// not capacity, prunes them here).
type Store struct {
	mu        sync.RWMutex
	records   map[string]*registry.Record
	retention time.Duration // 0 disables pruning
}

var _ registry.Store = (*Store)(nil)

// New creates an empty in-memory store. retention bounds how long terminal
// records are kept after StoppedAt before a later Save or Update prunes
// them; 0 keeps every record forever (matching spec §3's audit-trail
// requirement).
func New(retention time.Duration) *Store {
	return &Store{
		records:   make(map[string]*registry.Record),
		retention: retention,
	}
}

func (s *Store) Save(ctx context.Context, rec *registry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.SandboxID]; exists {
		return registry.ErrConflict
	}
	s.records[rec.SandboxID] = rec.Clone()
	s.pruneLocked()
	return nil
}

func (s *Store) Get(ctx context.Context, sandboxID string) (*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[sandboxID]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) List(ctx context.Context, userID string) ([]*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*registry.Record, 0, len(s.records))
	for _, rec := range s.records {
		if userID != "" && rec.UserID != userID {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Update(ctx context.Context, sandboxID string, patch registry.Patch) (*registry.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sandboxID]
	if !ok {
		return nil, registry.ErrNotFound
	}
	patch.Apply(rec, time.Now().UTC())
	s.pruneLocked()
	return rec.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, sandboxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[sandboxID]; !ok {
		return registry.ErrNotFound
	}
	delete(s.records, sandboxID)
	return nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*registry.Record
	for _, rec := range s.records {
		if !isActive(rec.Status) {
			continue
		}
		if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

func isActive(status registry.Status) bool {
	for _, st := range registry.ActiveStatuses {
		if st == status {
			return true
		}
	}
	return false
}

// pruneLocked removes terminal records whose StoppedAt is older than the
// retention window. Caller must hold s.mu for writing.
func (s *Store) pruneLocked() {
	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.retention)
	for id, rec := range s.records {
		if rec.StoppedAt != nil && rec.StoppedAt.Before(cutoff) {
			delete(s.records, id)
		}
	}
}
