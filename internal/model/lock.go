package model

// LockLease is a named resource reservation (spec §3). At most one lease is
// active per resource_key at any instant; a lease is active iff
// now < ExpiresAtMs.
type LockLease struct {
	ResourceKey string
	OwnerAgentID string
	ExpiresAtMs int64
}

// LockAction tags a lease transition (spec §1). Only ACQUIRE, RELEASE, and
// EXPIRE are ever emitted as a LockEvent and persisted to the
// `locks(action, details_json)` table, whose action domain spec §6 reserves
// to exactly those three; HEARTBEAT only ever extends a lease's
// ExpiresAtMs in memory, never its own store row.
type LockAction string

const (
	LockActionAcquire   LockAction = "ACQUIRE"
	LockActionHeartbeat LockAction = "HEARTBEAT"
	LockActionRelease   LockAction = "RELEASE"
	LockActionExpire    LockAction = "EXPIRE"
)

type LockEvent struct {
	Action      LockAction
	ResourceKey string
	OwnerAgentID string
	AtMs        int64
}
