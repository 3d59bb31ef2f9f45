package syncengine

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// pushPhase drains the Mutation Log in batches and pushes each mutation
// durably to the server (spec §4.5 "Push phase").
func (e *Engine) pushPhase(ctx context.Context, tenantID, collection string) error {
	batch, err := e.log.PeekBatch(e.cfg.PushBatchSize)
	if err != nil {
		return fmt.Errorf("syncengine: peek batch: %w", err)
	}

	blockedRecordIDs := make(map[string]bool)
	var lastCursorMutationID string

	for _, m := range batch {
		if m.Collection != collection {
			continue
		}
		if blockedRecordIDs[m.RecordID] {
			// A dependent mutation for this (tenant, id) already failed
			// retryably this pass; stop pushing further mutations for the
			// same record so the server never observes them out of
			// order (spec §4.5 push-phase step 3).
			continue
		}

		result, pushErr := e.pushOneWithRetry(ctx, tenantID, m)
		if pushErr != nil {
			// Transport itself errored after exhausting retries: treat
			// as a retryable failure left in the queue.
			quarantined, rqErr := e.log.Requeue(m, pushErr.Error())
			if rqErr != nil {
				return rqErr
			}
			if !quarantined {
				blockedRecordIDs[m.RecordID] = true
			}
			continue
		}

		switch result.Outcome {
		case PushAccepted:
			if err := e.log.AckUpTo(m.MutationID); err != nil {
				return fmt.Errorf("syncengine: ack %s: %w", m.MutationID, err)
			}
			lastCursorMutationID = m.MutationID
		case PushPermanent:
			if err := e.log.Quarantine(m.MutationID, result.Err.Error()); err != nil {
				return err
			}
		case PushConflict:
			// Conflict advisory (spec §7): the pull phase that follows
			// this push phase in runSyncPass lets the resolver run. Here
			// the stale mutation is only quarantined so it is not retried
			// verbatim; it is not rebuilt or re-appended under a new id.
			if err := e.log.Quarantine(m.MutationID, "conflict advisory: superseded by pull+rebuild"); err != nil {
				return err
			}
			blockedRecordIDs[m.RecordID] = true
		case PushRetryable:
			quarantined, rqErr := e.log.Requeue(m, result.Err.Error())
			if rqErr != nil {
				return rqErr
			}
			if !quarantined {
				blockedRecordIDs[m.RecordID] = true
			}
		}
	}

	if lastCursorMutationID != "" {
		cur, err := e.store.GetCursor(collection)
		if err != nil {
			return err
		}
		cur.LastPushedMutationID = lastCursorMutationID
		return e.store.PutCursor(cur)
	}
	return nil
}

// pushOneWithRetry pushes m, retrying transient failures with
// exponential backoff up to cfg.MaxRetries (spec §7 "retried with
// exponential backoff up to maxRetries"). Permanent and conflict
// outcomes are not retried here; they are handled once by the caller.
func (e *Engine) pushOneWithRetry(ctx context.Context, tenantID string, m model.PendingMutation) (PushResult, error) {
	var result PushResult
	policy := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(e.cfg.InitialBackoff()),
			backoff.WithMaxInterval(e.cfg.MaxBackoff()),
			backoff.WithMultiplier(e.cfg.BackoffMultiplier),
		),
		uint64(e.cfg.MaxRetries),
	)
	operation := func() error {
		r, err := e.transport.Push(ctx, tenantID, m)
		if err != nil {
			return err
		}
		result = r
		if r.Outcome == PushRetryable {
			return r.Err
		}
		return nil
	}
	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return result, err
}
