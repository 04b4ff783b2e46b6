// Package lockmgr implements the fleet-wide Lock Manager from spec §4.2:
// leased named locks with heartbeat-driven extension and lazy expiry.
// Grounded on the teacher's single-mutex shared-state pattern (the same
// shape as ratelimit.Limiter and admission.SkillLimiter); lock leases
// themselves have no teacher analog since the teacher's world has no
// cross-agent resource contention, so this is built directly from the
// spec's ACQUIRE/HEARTBEAT/RELEASE/EXPIRE transitions.
package lockmgr

import (
	"sync"
	"time"

	"fleetcore.ai/internal/model"
)

// EventSink receives one LockEvent per acquire, release and expiry
// (heartbeats are not recorded), matching the
// `locks(action, details_json)` persistence table in spec §6.
type EventSink interface {
	RecordLockEvent(model.LockEvent)
}

type noopSink struct{}

func (noopSink) RecordLockEvent(model.LockEvent) {}

type Manager struct {
	mu sync.Mutex

	leaseMs int64
	leases  map[string]model.LockLease

	sink EventSink
	now  func() time.Time
}

func New(leaseMs int64, sink EventSink) *Manager {
	if sink == nil {
		sink = noopSink{}
	}
	return &Manager{
		leaseMs: leaseMs,
		leases:  make(map[string]model.LockLease),
		sink:    sink,
		now:     time.Now,
	}
}

func (m *Manager) nowMs() int64 { return m.now().UnixMilli() }

// expireLocked removes key's lease if it has expired, logging an EXPIRE
// event. Must be called with mu held. Every non-mutating path runs this
// first (spec §4.2: "lazy expiration first").
func (m *Manager) expireLocked(key string) {
	lease, ok := m.leases[key]
	if !ok {
		return
	}
	if m.nowMs() < lease.ExpiresAtMs {
		return
	}
	delete(m.leases, key)
	m.sink.RecordLockEvent(model.LockEvent{
		Action:       model.LockActionExpire,
		ResourceKey:  key,
		OwnerAgentID: lease.OwnerAgentID,
		AtMs:         m.nowMs(),
	})
}

// Acquire succeeds if the key is unowned or already owned by owner
// (idempotent extension); otherwise it fails.
func (m *Manager) Acquire(key, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(key)

	lease, ok := m.leases[key]
	if ok && lease.OwnerAgentID != owner {
		return false
	}

	now := m.nowMs()
	m.leases[key] = model.LockLease{
		ResourceKey:  key,
		OwnerAgentID: owner,
		ExpiresAtMs:  now + m.leaseMs,
	}
	m.sink.RecordLockEvent(model.LockEvent{
		Action:       model.LockActionAcquire,
		ResourceKey:  key,
		OwnerAgentID: owner,
		AtMs:         now,
	})
	return true
}

// Heartbeat succeeds only for the current owner and extends expires_at.
func (m *Manager) Heartbeat(key, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(key)

	lease, ok := m.leases[key]
	if !ok || lease.OwnerAgentID != owner {
		return false
	}

	now := m.nowMs()
	lease.ExpiresAtMs = now + m.leaseMs
	m.leases[key] = lease
	return true
}

// Release is a no-op unless the caller is the current owner.
func (m *Manager) Release(key, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(key)

	lease, ok := m.leases[key]
	if !ok || lease.OwnerAgentID != owner {
		return false
	}

	delete(m.leases, key)
	m.sink.RecordLockEvent(model.LockEvent{
		Action:       model.LockActionRelease,
		ResourceKey:  key,
		OwnerAgentID: owner,
		AtMs:         m.nowMs(),
	})
	return true
}

// OwnerOf returns the current owner of key, or "" if unowned/expired.
func (m *Manager) OwnerOf(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(key)
	return m.leases[key].OwnerAgentID
}

func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
