// Package streak derives the per-conversation streak display state from
// the last interaction timestamp. Derivation is a pure function of
// elapsed time; the server stays authoritative for the counters.
package streak

import (
	"sync"
	"time"
)

// Time windows measured from the last interaction.
const (
	// RiskThreshold is when an active streak starts showing the danger flag.
	RiskThreshold = 18 * time.Hour
	// Expiry is when the streak stops being active.
	Expiry = 24 * time.Hour
	// RecoveryDeadline is the last moment an expired streak can still be
	// recovered (48h window after expiry).
	RecoveryDeadline = 72 * time.Hour
)

// State is the derived streak display state.
type State struct {
	CurrentCount    int
	LastStreakCount int
	IsActive        bool
	IsDanger        bool
	CanRecover      bool
}

// Derive computes the streak state for a conversation whose last
// interaction happened at last, evaluated at now. count is the running
// streak counter and lastCount the counter recorded at expiry, both as
// reported by the server.
//
//	[0, 18h)   active
//	[18h, 24h) active, in danger
//	[24h, 72h) expired, recoverable; lastCount shown
//	[72h, ∞)   lapsed
func Derive(last, now time.Time, count, lastCount int) State {
	if last.IsZero() {
		return State{}
	}

	elapsed := now.Sub(last)
	switch {
	case elapsed < RiskThreshold:
		return State{CurrentCount: count, IsActive: true}

	case elapsed < Expiry:
		return State{CurrentCount: count, IsActive: true, IsDanger: true}

	case elapsed < RecoveryDeadline:
		preserved := lastCount
		if preserved == 0 {
			preserved = count
		}
		return State{LastStreakCount: preserved, CanRecover: true}

	default:
		return State{}
	}
}

type memoKey struct {
	last      int64
	nowBucket int64
	count     int
	lastCount int
}

// Memo caches Derive results bucketed to the minute, so high-frequency
// re-renders of the same conversation list do not recompute.
type Memo struct {
	mu      sync.Mutex
	entries map[memoKey]State
}

const memoLimit = 4096

// NewMemo creates an empty memo cache.
func NewMemo() *Memo {
	return &Memo{entries: make(map[memoKey]State)}
}

// Derive is the memoized variant of the package-level Derive.
func (m *Memo) Derive(last, now time.Time, count, lastCount int) State {
	key := memoKey{
		last:      last.Unix(),
		nowBucket: now.Truncate(time.Minute).Unix(),
		count:     count,
		lastCount: lastCount,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.entries[key]; ok {
		return state
	}
	if len(m.entries) >= memoLimit {
		m.entries = make(map[memoKey]State)
	}
	state := Derive(last, now, count, lastCount)
	m.entries[key] = state
	return state
}
