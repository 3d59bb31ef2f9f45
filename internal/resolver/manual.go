package resolver

import (
	"errors"
	"sync"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// ErrDeferred is returned by Manual.Resolve to signal that the
// conflict has been parked in the deferred registry rather than
// resolved. The sync engine treats this as "conflict unresolved": it
// advances cursors only for unrelated entities (spec §7, §9 "modeled
// as a suspended task with an explicit resume handle rather than as an
// exception").
var ErrDeferred = errors.New("resolver: conflict deferred for manual resolution")

// DeferredConflict is a parked conflict awaiting an explicit resolve
// callback.
type DeferredConflict struct {
	TenantID   string
	Collection string
	RecordID   string
	Input      Input
}

// DeferredRegistry holds conflicts the manual strategy has suspended,
// keyed by (tenantId, collection, id). It is the first-class registry
// called for in spec §9 ("the source's manual resolver is sketched but
// not wired end-to-end; treat the deferred-conflict registry as a
// first-class part of the design").
type DeferredRegistry struct {
	mu      sync.Mutex
	pending map[string]DeferredConflict
}

// NewDeferredRegistry constructs an empty registry.
func NewDeferredRegistry() *DeferredRegistry {
	return &DeferredRegistry{pending: make(map[string]DeferredConflict)}
}

func deferredKey(tenantID, collection, id string) string {
	return tenantID + "\x00" + collection + "\x00" + id
}

// Defer parks a conflict for later manual resolution.
func (d *DeferredRegistry) Defer(c DeferredConflict) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[deferredKey(c.TenantID, c.Collection, c.RecordID)] = c
}

// Resolve removes and returns the parked conflict for (tenantId,
// collection, id), if any, so a caller can apply an explicit decision
// and feed the result back into the sync engine's apply path.
func (d *DeferredRegistry) Resolve(tenantID, collection, id string) (DeferredConflict, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := deferredKey(tenantID, collection, id)
	c, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	return c, ok
}

// List returns every conflict currently parked, for UI/operator
// inspection.
func (d *DeferredRegistry) List() []DeferredConflict {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeferredConflict, 0, len(d.pending))
	for _, c := range d.pending {
		out = append(out, c)
	}
	return out
}

// Manual suspends resolution and parks the conflict in a
// DeferredRegistry rather than returning a resolved record (spec §4.6
// "manual"). No conflict-detected event is emitted; parked conflicts
// are found through DeferredRegistry.List.
type Manual struct {
	registry *DeferredRegistry
}

// NewManual constructs the manual strategy backed by registry.
func NewManual(registry *DeferredRegistry) *Manual {
	return &Manual{registry: registry}
}

func (Manual) Name() string { return "manual" }

func (m *Manual) Resolve(in Input) (model.Record, error) {
	m.registry.Defer(DeferredConflict{
		TenantID:   in.Local.TenantID,
		Collection: in.Local.Type,
		RecordID:   in.Local.ID,
		Input:      in,
	})
	return model.Record{}, ErrDeferred
}
