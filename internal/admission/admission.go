// Package admission implements the fleet-wide admission limiters from spec
// §4.3: the SkillLimiter (fixed concurrency, head-of-line FIFO fairness)
// and the ExplorerLimiter (a simple bounded idempotent set). Both follow
// the single-mutex shared-service shape used throughout the core
// (ratelimit.Limiter, lockmgr.Manager) since the teacher has no admission
// concept of its own — the game server there accepts every connecting bot
// unconditionally.
package admission

import "sync"

// SkillLimiter grants entry to an agent if it is already inside, or if it
// is at the head of the waiting FIFO and the active set has spare capacity.
// Non-head callers are appended (idempotently) to the waiters list and
// refused, which gives head-of-line fairness: spec §8 requires that if A
// called try_enter before B and capacity is 1 while occupied, B cannot
// succeed before A does.
type SkillLimiter struct {
	mu sync.Mutex

	capacity int
	active   map[string]struct{}
	waiters  []string
}

func NewSkillLimiter(capacity int) *SkillLimiter {
	return &SkillLimiter{
		capacity: capacity,
		active:   make(map[string]struct{}),
	}
}

func (l *SkillLimiter) TryEnter(agentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.active[agentID]; ok {
		return true
	}

	isHead := len(l.waiters) == 0 || l.waiters[0] == agentID
	hasCapacity := len(l.active) < l.capacity

	if isHead && hasCapacity {
		if len(l.waiters) > 0 {
			l.waiters = l.waiters[1:]
		}
		l.active[agentID] = struct{}{}
		return true
	}

	l.enqueueWaiterLocked(agentID)
	return false
}

func (l *SkillLimiter) enqueueWaiterLocked(agentID string) {
	for _, w := range l.waiters {
		if w == agentID {
			return
		}
	}
	l.waiters = append(l.waiters, agentID)
}

func (l *SkillLimiter) Leave(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.active, agentID)
	for i, w := range l.waiters {
		if w == agentID {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			break
		}
	}
}

func (l *SkillLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// ExplorerLimiter is a simple bounded set; TryEnter is idempotent for an
// already-admitted agent.
type ExplorerLimiter struct {
	mu       sync.Mutex
	capacity int
	active   map[string]struct{}
}

func NewExplorerLimiter(capacity int) *ExplorerLimiter {
	return &ExplorerLimiter{
		capacity: capacity,
		active:   make(map[string]struct{}),
	}
}

func (l *ExplorerLimiter) TryEnter(agentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.active[agentID]; ok {
		return true
	}
	if len(l.active) >= l.capacity {
		return false
	}
	l.active[agentID] = struct{}{}
	return true
}

func (l *ExplorerLimiter) Leave(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, agentID)
}

func (l *ExplorerLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}
