package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbuscorp/syncengine/internal/localstore"
	"github.com/nimbuscorp/syncengine/internal/model"
	"github.com/nimbuscorp/syncengine/internal/resolver"
)

// pullPhase requests changes since the collection's cursor and applies
// the conflict rule to each (spec §4.5 "Pull phase").
func (e *Engine) pullPhase(ctx context.Context, tenantID, collection string) error {
	cur, err := e.store.GetCursor(collection)
	if err != nil {
		return fmt.Errorf("syncengine: get cursor: %w", err)
	}

	cursorToken := fmt.Sprintf("%d", cur.LastPulledAt.UnixMilli())
	result, err := e.transport.Pull(ctx, tenantID, collection, cursorToken, e.cfg.PullMaxChanges)
	if err != nil {
		cur.LastStatus = model.SyncError
		cur.LastError = err.Error()
		_ = e.store.PutCursor(cur)
		return fmt.Errorf("syncengine: pull: %w", err)
	}

	if result.CursorLost {
		return e.snapshotFallback(ctx, tenantID, collection)
	}

	var firstUnresolvedErr error
	for _, incoming := range result.Changes {
		if incoming.TenantID != tenantID {
			// Never apply a change declared for a different tenant, even
			// if the server mistakenly sent one (testable property 1).
			continue
		}
		if err := e.applyIncoming(collection, incoming); err != nil {
			if firstUnresolvedErr == nil {
				firstUnresolvedErr = err
			}
			continue
		}
	}

	if firstUnresolvedErr != nil {
		// Cursor is not advanced past the earliest unresolved change
		// (spec §4.5 "Cursor advancement").
		cur.LastStatus = model.SyncError
		cur.LastError = firstUnresolvedErr.Error()
		return e.store.PutCursor(cur)
	}

	cur.LastPulledAt = time.UnixMilli(result.ServerTimestamp).UTC()
	cur.LastStatus = model.SyncSuccess
	cur.LastError = ""
	return e.store.PutCursor(cur)
}

// applyIncoming applies the conflict rule to a single incoming change
// (spec §4.5): fast-forward when versions are adjacent, write-through
// when no local record exists, or invoke the resolver on a genuine
// conflict.
func (e *Engine) applyIncoming(collection string, incoming model.Record) error {
	local, err := e.store.GetRecord(collection, incoming.ID)
	if err == localstore.ErrNotFound {
		// No local record: write the incoming record as sent, appending
		// no mutation (spec §4.5).
		return e.store.PutRecord(collection, incoming)
	}
	if err != nil {
		return err
	}

	// At-most-once application: if the local version already equals or
	// exceeds the incoming one after a prior resolution, this is a
	// no-op (spec §4.5 "At-most-once resolution"; testable property 3).
	if local.Meta.Version >= incoming.Meta.Version {
		return nil
	}

	if local.Meta.Version == incoming.Meta.Version-1 && !isConcurrent(local, incoming) {
		// Fast-forward: adjacent versions and no concurrent edit on
		// this side.
		return e.store.PutRecord(collection, incoming)
	}

	return e.resolveConflict(collection, local, incoming)
}

// isConcurrent decides whether local and incoming are true conflict
// candidates. Per spec §9, vector clock is authoritative when present;
// version delta is the fallback only when both sides' clocks are empty
// — the two criteria are never silently collapsed into one.
func isConcurrent(local, incoming model.Record) bool {
	if !local.VectorClock.IsEmpty() || !incoming.VectorClock.IsEmpty() {
		return local.VectorClock.Compare(incoming.VectorClock) == model.OrderConcurrent
	}
	return local.Meta.Version != incoming.Meta.Version-1
}

func (e *Engine) resolveConflict(collection string, local, incoming model.Record) error {
	if !isConcurrent(local, incoming) {
		// Versions are in a parent-child relation after all (e.g. a
		// stale pull replaying an already-applied change); treat as
		// fast-forward rather than invoking the resolver needlessly
		// (testable property 5).
		if incoming.Meta.Version > local.Meta.Version {
			return e.store.PutRecord(collection, incoming)
		}
		return nil
	}

	strategy, err := e.resolvers.Get(e.cfg.ResolverStrategy)
	if err != nil {
		return err
	}
	resolved, err := strategy.Resolve(resolver.Input{Local: local, Incoming: incoming})
	if err == resolver.ErrDeferred {
		// Manual resolution: leave the cursor from advancing past this
		// change and leave the local mutation in place; the operator
		// resolves it out of band via the deferred registry.
		return fmt.Errorf("syncengine: conflict deferred for %s/%s", collection, incoming.ID)
	}
	if err != nil {
		return fmt.Errorf("syncengine: resolve conflict: %w", err)
	}

	resolved.Meta.Version = maxInt64(local.Meta.Version, incoming.Meta.Version) + 1

	electedLocal := resolved.Meta.UpdatedAt.Equal(local.Meta.UpdatedAt) && string(resolved.Payload) == string(local.Payload)

	if err := e.store.PutRecord(collection, resolved); err != nil {
		return err
	}

	if !electedLocal {
		// Resolver elected the remote side or produced a merge: remove
		// any local mutation the resolution subsumes (spec §4.5).
		if local.Meta.MutationID != nil {
			if err := e.log.Remove(*local.Meta.MutationID); err != nil {
				return err
			}
		}
	}
	// If the resolver elected the local side and the divergence has not
	// yet been pushed, the corresponding mutation in the log is left
	// untouched so it re-pushes with the new version (spec §4.5, §8 S3).
	return nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
