// Package syncengine implements the Sync Engine (spec §4.5, component
// C5): the push/pull replication protocol, cursor management, conflict
// detection, and invocation of the Conflict Resolver.
package syncengine

import (
	"context"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// PushOutcome classifies how the server responded to a single pushed
// mutation (spec §6 "structured error with classification {retryable,
// permanent, conflict}").
type PushOutcome int

const (
	PushAccepted PushOutcome = iota
	PushRetryable
	PushPermanent
	PushConflict
)

// PushResult is the server's response to POST /sync/push.
type PushResult struct {
	Outcome         PushOutcome
	ServerVersion   int64
	ServerTimestamp int64
	Err             error
}

// PullResult is the server's response to GET /sync/pull.
type PullResult struct {
	Changes         []model.Record
	ServerTimestamp int64
	CursorLost      bool
}

// Transport is the replication HTTP surface consumed by the Sync Engine
// (spec §6). A fake implementation backs unit tests; HTTPTransport
// backs production use against internal/refserver or any compatible
// server.
type Transport interface {
	Push(ctx context.Context, tenantID string, m model.PendingMutation) (PushResult, error)
	Pull(ctx context.Context, tenantID, collection, cursorToken string, maxChanges int) (PullResult, error)
	Snapshot(ctx context.Context, tenantID, entityType string) (model.Snapshot, error)
	Ping(ctx context.Context) error
}
