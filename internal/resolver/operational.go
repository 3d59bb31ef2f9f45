package resolver

import "github.com/nimbuscorp/syncengine/internal/model"

// MergeFunc is the opaque merge function an embedding application
// supplies for operational-merge: it must be pure, commutative on
// concurrent inputs, and an identity when the inputs are equal (spec
// §4.6 contract).
type MergeFunc func(local, incoming model.Record) (model.Record, error)

// OperationalMerge wraps an application-supplied MergeFunc as a named
// strategy so the engine can still select it by name (spec §9 "engine
// selects by name, not by subclass hierarchy").
type OperationalMerge struct {
	merge MergeFunc
}

// NewOperationalMerge registers fn as the operational-merge strategy.
func NewOperationalMerge(fn MergeFunc) *OperationalMerge {
	return &OperationalMerge{merge: fn}
}

func (OperationalMerge) Name() string { return "operationalmerge" }

func (o *OperationalMerge) Resolve(in Input) (model.Record, error) {
	return o.merge(in.Local, in.Incoming)
}
