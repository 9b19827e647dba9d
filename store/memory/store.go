// Package memory is a fully in-memory implementation of the pulse store
// contracts. Safe for concurrent access. Intended for unit testing and
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/backfill"
	"github.com/arcwatch/pulse/cluster"
	"github.com/arcwatch/pulse/id"
)

// Compile-time interface checks.
var (
	_ pulse.Store          = (*Store)(nil)
	_ backfill.ConfigStore = (*Store)(nil)
	_ cluster.NodeCache    = (*Store)(nil)
)

// Store is an in-memory trigger store, backfill config store, and node
// cache.
type Store struct {
	mu sync.RWMutex

	triggers map[string]*pulse.Trigger
	configs  map[string]*backfill.JobConfig

	nodes    []cluster.Node
	nodesErr error
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		triggers: make(map[string]*pulse.Trigger),
		configs:  make(map[string]*backfill.JobConfig),
	}
}

// triggerKey builds the map key of a trigger row.
func triggerKey(org string, module pulse.Module, key string) string {
	return fmt.Sprintf("%s:%s:%s", org, module, key)
}

// configKey builds the map key of a backfill config row.
func configKey(org string, jobID id.BackfillJobID) string {
	return org + ":" + jobID.String()
}

// cloneTrigger copies a trigger including its payload so callers can
// mutate the result without racing with the store.
func cloneTrigger(t *pulse.Trigger) *pulse.Trigger {
	cp := *t
	if t.Data != nil {
		d := *t.Data
		if d.Alert != nil {
			v := *d.Alert
			d.Alert = &v
		}
		if d.Report != nil {
			v := *d.Report
			d.Report = &v
		}
		if d.DerivedStream != nil {
			v := *d.DerivedStream
			d.DerivedStream = &v
		}
		if d.Backfill != nil {
			v := *d.Backfill
			d.Backfill = &v
		}
		if d.QueryRecommendations != nil {
			v := *d.QueryRecommendations
			d.QueryRecommendations = &v
		}
		cp.Data = &d
	}
	return &cp
}

// ──────────────────────────────────────────────────
// Trigger store
// ──────────────────────────────────────────────────

// Push persists a new trigger.
func (m *Store) Push(_ context.Context, t *pulse.Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := triggerKey(t.Org, t.Module, t.ModuleKey)
	if _, exists := m.triggers[key]; exists {
		return pulse.ErrTriggerExists
	}

	cp := cloneTrigger(t)
	if cp.CreatedAt == 0 {
		cp.CreatedAt = pulse.NowMicro()
	}
	m.triggers[key] = cp
	return nil
}

// Pull atomically leases up to limit due triggers: waiting rows whose
// next_run_at has passed — excluding un-silenced realtime triggers — plus
// running rows whose lease expired.
func (m *Store) Pull(_ context.Context, limit int, alertTimeout, reportTimeout time.Duration) ([]*pulse.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := pulse.NowMicro()

	candidates := make([]*pulse.Trigger, 0, len(m.triggers))
	for _, t := range m.triggers {
		switch {
		case t.Status == pulse.StatusWaiting && t.NextRunAt <= now && (!t.IsRealtime || t.IsSilenced):
		case t.Status == pulse.StatusRunning && t.LeaseDeadline > 0 && t.LeaseDeadline < now:
		default:
			continue
		}
		candidates = append(candidates, t)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextRunAt < candidates[j].NextRunAt
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*pulse.Trigger, len(candidates))
	for i, t := range candidates {
		lease := alertTimeout
		if t.Module == pulse.ModuleReport || t.Module == pulse.ModuleBackfill {
			lease = reportTimeout
		}
		t.Status = pulse.StatusRunning
		t.StartTime = now
		t.LeaseDeadline = now + lease.Microseconds()
		result[i] = cloneTrigger(t)
	}
	return result, nil
}

// Get retrieves a trigger.
func (m *Store) Get(_ context.Context, org string, module pulse.Module, key string) (*pulse.Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.triggers[triggerKey(org, module, key)]
	if !ok {
		return nil, pulse.ErrTriggerNotFound
	}
	return cloneTrigger(t), nil
}

// Update persists the full trigger row.
func (m *Store) Update(_ context.Context, t *pulse.Trigger, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := triggerKey(t.Org, t.Module, t.ModuleKey)
	existing, ok := m.triggers[key]
	if !ok {
		return pulse.ErrTriggerNotFound
	}

	cp := cloneTrigger(t)
	cp.CreatedAt = existing.CreatedAt
	m.triggers[key] = cp
	return nil
}

// UpdateStatus updates status and retries, and the payload when data is
// non-nil.
func (m *Store) UpdateStatus(_ context.Context, org string, module pulse.Module, key string, status pulse.Status, retries int, data *pulse.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.triggers[triggerKey(org, module, key)]
	if !ok {
		return pulse.ErrTriggerNotFound
	}

	t.Status = status
	t.Retries = retries
	if data != nil {
		cp := cloneTrigger(&pulse.Trigger{Data: data})
		t.Data = cp.Data
	}
	return nil
}

// Delete removes a trigger.
func (m *Store) Delete(_ context.Context, org string, module pulse.Module, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := triggerKey(org, module, key)
	if _, ok := m.triggers[k]; !ok {
		return pulse.ErrTriggerNotFound
	}
	delete(m.triggers, k)
	return nil
}

// ListByOrg returns the org's triggers, filtered by module when module is
// non-empty, ordered by creation time.
func (m *Store) ListByOrg(_ context.Context, org string, module pulse.Module) ([]*pulse.Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*pulse.Trigger, 0)
	for _, t := range m.triggers {
		if t.Org != org {
			continue
		}
		if module != "" && t.Module != module {
			continue
		}
		result = append(result, cloneTrigger(t))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

// PurgeCompletedBefore deletes completed trigger rows created before
// cutoff and returns the number removed.
func (m *Store) PurgeCompletedBefore(_ context.Context, cutoff int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for k, t := range m.triggers {
		if t.Status == pulse.StatusCompleted && t.CreatedAt < cutoff {
			delete(m.triggers, k)
			deleted++
		}
	}
	return deleted, nil
}

// ──────────────────────────────────────────────────
// Backfill config store
// ──────────────────────────────────────────────────

// PutJobConfig inserts or replaces a config row.
func (m *Store) PutJobConfig(_ context.Context, cfg *backfill.JobConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *cfg
	m.configs[configKey(cfg.Org, cfg.ID)] = &cp
	return nil
}

// GetJobConfig retrieves a config row.
func (m *Store) GetJobConfig(_ context.Context, org string, jobID id.BackfillJobID) (*backfill.JobConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[configKey(org, jobID)]
	if !ok {
		return nil, pulse.ErrJobNotFound
	}
	cp := *cfg
	return &cp, nil
}

// DeleteJobConfig removes a config row.
func (m *Store) DeleteJobConfig(_ context.Context, org string, jobID id.BackfillJobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := configKey(org, jobID)
	if _, ok := m.configs[k]; !ok {
		return pulse.ErrJobNotFound
	}
	delete(m.configs, k)
	return nil
}

// ──────────────────────────────────────────────────
// Node cache
// ──────────────────────────────────────────────────

// SetNodes replaces the cached node set.
func (m *Store) SetNodes(nodes []cluster.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append([]cluster.Node(nil), nodes...)
}

// FailNodeCache makes OnlineNodes return err until reset with nil.
func (m *Store) FailNodeCache(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodesErr = err
}

// OnlineNodes returns the cached nodes holding the given role.
func (m *Store) OnlineNodes(_ context.Context, role cluster.Role) ([]cluster.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.nodesErr != nil {
		return nil, m.nodesErr
	}

	result := make([]cluster.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		if n.Role == role {
			result = append(result, n)
		}
	}
	return result, nil
}
