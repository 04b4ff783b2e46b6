package lockmgr

import (
	"testing"
	"time"

	"fleetcore.ai/internal/model"
)

type recordingSink struct {
	events []model.LockEvent
}

func (r *recordingSink) RecordLockEvent(e model.LockEvent) {
	r.events = append(r.events, e)
}

func TestAcquireContentionAndRelease(t *testing.T) {
	m := New(5000, nil)

	if !m.Acquire("resource:oak_log", "A") {
		t.Fatalf("A should acquire an unowned key")
	}
	if m.Acquire("resource:oak_log", "B") {
		t.Fatalf("B should not acquire a key owned by A")
	}
	if !m.Release("resource:oak_log", "A") {
		t.Fatalf("A should be able to release its own lease")
	}
	if !m.Acquire("resource:oak_log", "B") {
		t.Fatalf("B should acquire the now-unowned key")
	}
}

func TestAcquireIsIdempotentForOwner(t *testing.T) {
	m := New(5000, nil)
	m.Acquire("k", "A")
	if !m.Acquire("k", "A") {
		t.Fatalf("re-acquiring one's own lease should succeed")
	}
}

func TestHeartbeatAndReleaseRequireOwnership(t *testing.T) {
	m := New(5000, nil)
	m.Acquire("k", "A")

	if m.Heartbeat("k", "B") {
		t.Fatalf("non-owner heartbeat must be a no-op")
	}
	if m.Release("k", "B") {
		t.Fatalf("non-owner release must be a no-op")
	}
	if !m.Heartbeat("k", "A") {
		t.Fatalf("owner heartbeat should succeed")
	}
}

func TestLazyExpiry(t *testing.T) {
	sink := &recordingSink{}
	m := New(1000, sink)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := base
	m.SetClock(func() time.Time { return cur })

	m.Acquire("k", "A")
	cur = base.Add(2 * time.Second)

	if owner := m.OwnerOf("k"); owner != "" {
		t.Fatalf("expected expired lease to show no owner, got %q", owner)
	}
	if !m.Acquire("k", "B") {
		t.Fatalf("B should be able to acquire after A's lease expired")
	}

	var sawExpire bool
	for _, e := range sink.events {
		if e.Action == model.LockActionExpire && e.OwnerAgentID == "A" {
			sawExpire = true
		}
	}
	if !sawExpire {
		t.Fatalf("expected an EXPIRE event for A's lease")
	}
}

func TestAtMostOneOwnerInvariant(t *testing.T) {
	m := New(5000, nil)
	agents := []string{"A", "B", "C"}
	winners := 0
	for _, a := range agents {
		if m.Acquire("k", a) && m.OwnerOf("k") == a {
			winners++
		}
	}
	// Only the first acquire can actually change ownership; subsequent
	// distinct-agent acquires must fail, so at most one agent ever holds it.
	if m.OwnerOf("k") != "A" {
		t.Fatalf("expected A to retain ownership, got %q", m.OwnerOf("k"))
	}
	_ = winners
}
