// Package mutationlog wraps the local store's pending-mutation
// operations with the retry-policy bookkeeping described in spec §4.3
// and §7: a mutation whose retryCount reaches the configured ceiling is
// moved to the terminal-failed sub-queue instead of being requeued
// forever.
package mutationlog

import (
	"encoding/json"

	"github.com/nimbuscorp/syncengine/internal/localstore"
	"github.com/nimbuscorp/syncengine/internal/model"
)

// Log is the append-ordered queue of local mutations awaiting push,
// per tenant (component C3).
type Log struct {
	store      *localstore.Store
	maxRetries int
}

// New constructs a Log bound to store with the given retry ceiling.
func New(store *localstore.Store, maxRetries int) *Log {
	return &Log{store: store, maxRetries: maxRetries}
}

// Append adds m to the tail of the queue.
func (l *Log) Append(m model.PendingMutation) (model.PendingMutation, error) {
	return l.store.AppendMutation(m)
}

// PeekBatch returns up to n mutations still pending, in append order.
func (l *Log) PeekBatch(n int) ([]model.PendingMutation, error) {
	return l.store.PeekBatch(n)
}

// AckUpTo removes the contiguous prefix ending at mutationID after the
// server has durably accepted it.
func (l *Log) AckUpTo(mutationID string) error {
	return l.store.AckUpTo(mutationID)
}

// Requeue increments retryCount and records err, keeping the mutation's
// position — unless the incremented count reaches the ceiling, in which
// case it is moved
// to the terminal-failed sub-queue instead (spec §7 "on exhaustion,
// escalated to a surfaced error and left in the queue for operator
// retry").
func (l *Log) Requeue(m model.PendingMutation, errMsg string) (quarantined bool, err error) {
	if m.RetryCount+1 >= l.maxRetries {
		if err := l.store.MarkFailed(m.MutationID, errMsg); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, l.store.Requeue(m.MutationID, errMsg)
}

// Quarantine moves m straight to the terminal-failed sub-queue without
// consuming a retry, used for non-retryable failures (authorization,
// validation, tenant mismatch; spec §4.5 push-phase step 4).
func (l *Log) Quarantine(mutationID, errMsg string) error {
	return l.store.MarkFailed(mutationID, errMsg)
}

// Remove deletes a mutation outright — used when pull-side conflict
// resolution subsumes it (spec §4.5).
func (l *Log) Remove(mutationID string) error {
	return l.store.RemoveMutation(mutationID)
}

// Rebuild re-appends a mutation under a new mutationId against
// reconciled local state, per the conflict-advisory error-handling rule
// (spec §7: "the mutation is rebuilt against the reconciled local state
// and re-appended (not the same mutationId)"). The caller supplies the
// already-reconciled payload and vector clock.
func (l *Log) Rebuild(original model.PendingMutation, newMutationID string, payload json.RawMessage, vc model.VectorClock) (model.PendingMutation, error) {
	rebuilt := original.Clone()
	rebuilt.MutationID = newMutationID
	rebuilt.Payload = payload
	rebuilt.VectorClock = vc
	rebuilt.RetryCount = 0
	rebuilt.LastError = ""
	rebuilt.Status = model.MutationPending
	rebuilt.AppendSeq = 0
	return l.store.AppendMutation(rebuilt)
}
