// Package repository implements the typed read/write surface over the
// local store (spec §4.2, component C2). It centralizes metadata
// stamping so callers can never forge version, updatedAt, or deleted,
// and it appends exactly one pending mutation per successful write in
// the same local-store transaction.
package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuscorp/syncengine/internal/localstore"
	"github.com/nimbuscorp/syncengine/internal/model"
)

// Item is the constraint a typed collection's body must satisfy: a
// stable identifier and a serializable body (spec §4.2).
type Item interface {
	ItemID() string
}

// Repository is the public contract per typed collection T.
type Repository[T Item] struct {
	store      *localstore.Store
	collection string
	tenantID   string
	clientID   string
}

// New constructs a Repository bound to one tenant's store and one
// collection name. clientID identifies this device in vector clocks.
func New[T Item](store *localstore.Store, collection, tenantID, clientID string) *Repository[T] {
	return &Repository[T]{store: store, collection: collection, tenantID: tenantID, clientID: clientID}
}

// Get returns the current local view of id, including tombstoned
// records, for the caller to filter (spec §4.2 "get(id)").
func (r *Repository[T]) Get(id string) (T, bool, error) {
	var zero T
	rec, err := r.store.GetRecord(r.collection, id)
	if err == localstore.ErrNotFound {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var item T
	if err := json.Unmarshal(rec.Payload, &item); err != nil {
		return zero, false, fmt.Errorf("repository: decode %s/%s: %w", r.collection, id, err)
	}
	return item, true, nil
}

// QueryPredicate filters GetAll results by decoded item plus its
// system metadata.
type QueryPredicate[T Item] func(item T, meta model.RecordMeta) bool

// GetAll returns a finite, non-lazy sequence of every item matching
// pred (spec §4.2 "getAll(queryPredicate?)").
func (r *Repository[T]) GetAll(pred QueryPredicate[T]) ([]T, error) {
	recs, err := r.store.GetAllRecords(r.collection, nil)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var item T
		if err := json.Unmarshal(rec.Payload, &item); err != nil {
			return nil, fmt.Errorf("repository: decode %s/%s: %w", r.collection, rec.ID, err)
		}
		if pred == nil || pred(item, rec.Meta) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Put writes item with centrally stamped metadata and appends a create
// or update mutation in the same effective transaction (spec §4.2
// "put(item)"). Returns the record written, including its new version.
func (r *Repository[T]) Put(item T) (model.Record, error) {
	id := item.ItemID()
	payload, err := json.Marshal(item)
	if err != nil {
		return model.Record{}, fmt.Errorf("repository: encode %s/%s: %w", r.collection, id, err)
	}

	existing, err := r.store.GetRecord(r.collection, id)
	var prevVersion int64
	var createdAt time.Time
	kind := model.MutationCreate
	var vc model.VectorClock
	switch err {
	case nil:
		prevVersion = existing.Meta.Version
		createdAt = existing.Meta.CreatedAt
		kind = model.MutationUpdate
		vc = existing.VectorClock
	case localstore.ErrNotFound:
		createdAt = time.Now().UTC()
	default:
		return model.Record{}, err
	}

	now := time.Now().UTC()
	mutationID := uuid.NewString()
	rec := model.Record{
		ID: id, TenantID: r.tenantID, Type: r.collection, Payload: payload,
		Meta: model.RecordMeta{
			CreatedAt:  createdAt,
			UpdatedAt:  now,
			Version:    prevVersion + 1,
			Deleted:    false,
			MutationID: &mutationID,
		},
		VectorClock: vc.Increment(r.clientID),
	}
	if rec.TenantID != r.store.TenantID() {
		return model.Record{}, localstore.ErrTenantMismatch
	}
	if err := r.store.PutRecord(r.collection, rec); err != nil {
		return model.Record{}, err
	}
	mutation := model.PendingMutation{
		MutationID: mutationID, TenantID: r.tenantID, Kind: kind,
		Collection: r.collection, RecordID: id, Payload: payload,
		Timestamp: now, VectorClock: rec.VectorClock, Status: model.MutationPending,
	}
	if _, err := r.store.AppendMutation(mutation); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// Delete soft-deletes id: rewrites the record with deleted=true and
// appends a delete mutation (spec §4.2 "delete(id)").
func (r *Repository[T]) Delete(id string) error {
	existing, err := r.store.GetRecord(r.collection, id)
	if err == localstore.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	mutationID := uuid.NewString()
	existing.Meta.UpdatedAt = now
	existing.Meta.Version++
	existing.Meta.Deleted = true
	existing.Meta.MutationID = &mutationID
	existing.VectorClock = existing.VectorClock.Increment(r.clientID)
	if err := r.store.PutRecord(r.collection, existing); err != nil {
		return err
	}
	mutation := model.PendingMutation{
		MutationID: mutationID, TenantID: r.tenantID, Kind: model.MutationDelete,
		Collection: r.collection, RecordID: id, Payload: existing.Payload,
		Timestamp: now, VectorClock: existing.VectorClock, Status: model.MutationPending,
	}
	_, err = r.store.AppendMutation(mutation)
	return err
}

// Clear destroys all records for this collection in the caller's
// tenant; never cross-tenant since the store itself is tenant-bound
// (spec §4.2 "clear()"). Pending mutations for the collection are not
// removed.
func (r *Repository[T]) Clear() error {
	return r.store.ClearCollection(r.collection)
}

// ApplyServerChange writes an incoming server record through the
// server-change path: it writes rec with the metadata it carries,
// stamping nothing, and does not append a mutation, per spec §4.5
// pull-phase rule "write through C2's server-change path ... does not
// append a mutation".
func (r *Repository[T]) ApplyServerChange(rec model.Record) error {
	if rec.TenantID != r.tenantID {
		return localstore.ErrTenantMismatch
	}
	return r.store.PutRecord(r.collection, rec)
}
