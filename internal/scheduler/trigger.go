package scheduler

import (
	"sync"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

// pairKey identifies one (user, report kind) trigger.
type pairKey struct {
	UserID string
	Kind   domain.ReportKind
}

// pairState is the firing history for one trigger. Attempt counts belong to
// a single recurrence period and reset when the period rolls over.
type pairState struct {
	inflight      bool
	firedPeriod   string
	attemptPeriod string
	attempts      int
}

// SkipReason explains why Begin refused to start a fire attempt.
type SkipReason int

const (
	skipNone SkipReason = iota
	// SkipNotDue: the trigger is not satisfied and has no pending retry.
	SkipNotDue
	// SkipFired: the period already recorded a successful fire.
	SkipFired
	// SkipInflight: another attempt for the pair is still running.
	SkipInflight
	// SkipExhausted: the per-period attempt budget is spent.
	SkipExhausted
)

// TriggerTable is the scheduler's only shared mutable state: per-pair fire
// history guarded by one mutex, so every read-check-write below is a single
// atomic step (a compare-and-set on the period key).
type TriggerTable struct {
	mu          sync.Mutex
	pairs       map[pairKey]*pairState
	maxAttempts int
}

// NewTriggerTable creates a table with the given per-period attempt budget.
func NewTriggerTable(maxAttempts int) *TriggerTable {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TriggerTable{
		pairs:       make(map[pairKey]*pairState),
		maxAttempts: maxAttempts,
	}
}

// Begin claims a fire attempt for (pair, period). due is the schedule's
// verdict for the current instant; a pair with a failed attempt earlier in
// the same period stays eligible for retry even after the due window closes.
// On success the pair is marked in flight and the caller must call Finish.
func (t *TriggerTable) Begin(pair pairKey, period string, due bool) (bool, SkipReason) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.pairs[pair]
	if !ok {
		st = &pairState{}
		t.pairs[pair] = st
	}

	if st.inflight {
		return false, SkipInflight
	}
	if st.firedPeriod == period {
		return false, SkipFired
	}
	if st.attemptPeriod != period {
		// New period: last period's failures are history.
		st.attemptPeriod = ""
		st.attempts = 0
	}

	retryPending := st.attemptPeriod == period && st.attempts > 0
	if !due && !retryPending {
		return false, SkipNotDue
	}
	if st.attempts >= t.maxAttempts {
		return false, SkipExhausted
	}

	st.attemptPeriod = period
	st.attempts++
	st.inflight = true
	return true, skipNone
}

// Finish releases the in-flight claim. A successful fire consumes the period;
// a failure leaves it open for retry. Returns the attempts used so far in the
// period and whether the budget is now exhausted.
func (t *TriggerTable) Finish(pair pairKey, period string, success bool) (attempts int, exhausted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.pairs[pair]
	if !ok {
		return 0, false
	}
	st.inflight = false
	if success {
		st.firedPeriod = period
	}
	return st.attempts, !success && st.attempts >= t.maxAttempts
}
