package syncengine

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nimbuscorp/syncengine/internal/config"
	"github.com/nimbuscorp/syncengine/internal/localstore"
	"github.com/nimbuscorp/syncengine/internal/mutationlog"
	"github.com/nimbuscorp/syncengine/internal/resolver"
	"github.com/nimbuscorp/syncengine/internal/synerr"
)

// Engine is the Sync Engine (component C5): it drains the Mutation Log,
// pulls server changes, and invokes the Conflict Resolver on collision.
// At most one sync pass per tenant executes concurrently; reentrant
// triggers coalesce into that single pending run (spec §4.5, §5) via a
// singleflight.Group keyed by tenantID — the same coalescing primitive
// the teacher pack already depended on transitively but never actually
// exercised.
type Engine struct {
	store      *localstore.Store
	log        *mutationlog.Log
	transport  Transport
	resolvers  *resolver.Registry
	cfg        config.Config
	events     chan synerr.Event
	sf          singleflight.Group
	collections []string
}

// New constructs an Engine over store, draining collections in the
// order given.
func New(store *localstore.Store, log *mutationlog.Log, transport Transport, resolvers *resolver.Registry, cfg config.Config, collections []string) *Engine {
	return &Engine{
		store: store, log: log, transport: transport, resolvers: resolvers,
		cfg: cfg, events: make(chan synerr.Event, 64), collections: collections,
	}
}

// Events returns the channel of reported component failures (spec §7
// propagation policy).
func (e *Engine) Events() <-chan synerr.Event {
	return e.events
}

func (e *Engine) emit(ev synerr.Event) {
	ev.Time = time.Now()
	select {
	case e.events <- ev:
	default:
		// events channel saturated: drop rather than block a sync pass;
		// an operator reading events slower than they occur has already
		// lost real-time visibility regardless.
	}
}

// Trigger runs one sync pass for tenantID, or — if a pass for that
// tenant is already running — waits for it and returns its result
// (spec §5 "At most one sync pass executes per tenant at any time").
// It realizes trigger conditions (a)-(d) from spec §4.5; callers decide
// which condition fired.
func (e *Engine) Trigger(ctx context.Context, tenantID string) error {
	_, err, _ := e.sf.Do(tenantID, func() (interface{}, error) {
		return nil, e.runSyncPass(ctx, tenantID)
	})
	return err
}

func (e *Engine) runSyncPass(ctx context.Context, tenantID string) error {
	for _, collection := range e.collections {
		if err := e.pushPhase(ctx, tenantID, collection); err != nil {
			e.emit(synerr.New(synerr.KindTransientTransport, tenantID, err))
		}
		if err := e.pullPhase(ctx, tenantID, collection); err != nil {
			e.emit(synerr.New(synerr.KindTransientTransport, tenantID, err))
		}
	}
	return nil
}
