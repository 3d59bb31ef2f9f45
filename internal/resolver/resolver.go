// Package resolver implements the Conflict Resolver (spec §4.6,
// component C6): a closed set of named strategies, selected by name
// rather than by subclass hierarchy (spec §9 design note), each
// producing a single complete record ready to be written.
package resolver

import (
	"fmt"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// Input is the pair of conflicting versions handed to a strategy.
type Input struct {
	Local    model.Record
	Incoming model.Record
}

// Strategy resolves a conflicting pair into a single output record.
// Implementations must be pure with respect to Input plus clock-derived
// fields, and must never return partial state (spec §4.6 contract).
type Strategy interface {
	Name() string
	Resolve(in Input) (model.Record, error)
}

// Registry is the closed set of named strategies the sync engine
// selects from (spec §9 "engine selects by name, not by subclass
// hierarchy").
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry constructs a Registry pre-populated with four strategies:
// last-write-wins, first-write-wins, field-merge and manual.
// Operational-merge is not pre-populated; it is added through Register.
func NewRegistry(deferred *DeferredRegistry) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(NewLastWriteWins())
	r.Register(NewFirstWriteWins())
	r.Register(NewFieldMerge())
	r.Register(NewManual(deferred))
	return r
}

// Register adds or replaces a named strategy, used to install
// operational-merge variants supplied by the embedding application
// (spec §4.6 "an opaque merge function over selected fields").
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("resolver: unknown strategy %q", name)
	}
	return s, nil
}

// dominantClient returns the vector-clock key with the highest counter,
// used as the deterministic tie-breaker for last/first-write-wins when
// updatedAt timestamps are equal (spec §4.6 "ties broken deterministically
// by clientId"). Ties among equal counters are broken by key name so the
// result is itself deterministic.
func dominantClient(vc model.VectorClock) string {
	var best string
	var bestCount uint64
	for k, v := range vc {
		if v > bestCount || (v == bestCount && k > best) {
			best, bestCount = k, v
		}
	}
	return best
}
