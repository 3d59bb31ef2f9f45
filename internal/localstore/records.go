package localstore

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// GetRecord returns the record for (collection, id), or ErrNotFound.
func (s *Store) GetRecord(collection, id string) (model.Record, error) {
	var rec model.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := recordsBucket(tx, collection)
		if err != nil {
			return err
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	return rec, err
}

// RecordPredicate filters records during GetAllRecords; nil matches
// everything.
type RecordPredicate func(model.Record) bool

// GetAllRecords returns every record in collection matching pred. The
// result is finite and materialized, never a lazy iterator (spec
// §4.2 "Finite, non-lazy").
func (s *Store) GetAllRecords(collection string, pred RecordPredicate) ([]model.Record, error) {
	var out []model.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := recordsBucket(tx, collection)
		if err != nil {
			return err
		}
		return b.ForEach(func(_, raw []byte) error {
			var rec model.Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("localstore: decode record: %w", err)
			}
			if pred == nil || pred(rec) {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutRecord writes rec into collection, keyed by rec.ID. Tenant
// isolation is enforced here: a record whose TenantID does not match the
// store's bound tenant is refused.
func (s *Store) PutRecord(collection string, rec model.Record) error {
	if rec.TenantID != s.tenantID {
		return ErrTenantMismatch
	}
	if err := s.checkSize(); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("localstore: encode record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := recordsBucket(tx, collection)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), raw)
	})
}

// DeleteRecordPhysically permanently removes a record's bbolt entry,
// used only after a tombstone's deletion has been confirmed propagated
// (spec §3 lifecycle, "physically garbage-collected only after a
// successful sync round removes the tombstone"). Soft deletes go
// through PutRecord with Meta.Deleted=true instead.
func (s *Store) DeleteRecordPhysically(collection, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := recordsBucket(tx, collection)
		if err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
}

// ClearCollection destroys every record in collection for this tenant.
func (s *Store) ClearCollection(collection string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketRecords)
		if err := root.DeleteBucket([]byte(collection)); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("localstore: clear collection %s: %w", collection, err)
		}
		_, err := root.CreateBucketIfNotExists([]byte(collection))
		return err
	})
}

// BatchOp is one step of a transactional batch, operating on an
// already-open record bucket.
type BatchOp struct {
	ID     string
	Record *model.Record // nil means delete
}

// BatchRecords applies ops to collection atomically: all writes commit
// together or none do (spec §4.1 "batch(ops)").
func (s *Store) BatchRecords(collection string, ops []BatchOp) error {
	if err := s.checkSize(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := recordsBucket(tx, collection)
		if err != nil {
			return err
		}
		for _, op := range ops {
			if op.Record == nil {
				if err := b.Delete([]byte(op.ID)); err != nil {
					return err
				}
				continue
			}
			raw, err := json.Marshal(*op.Record)
			if err != nil {
				return fmt.Errorf("localstore: encode record: %w", err)
			}
			if err := b.Put([]byte(op.ID), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceCollectionAtomically wipes collection and writes records in a
// single transaction, used by the snapshot-fallback path (spec §4.5
// "replaced atomically within a single C1 transaction").
func (s *Store) ReplaceCollectionAtomically(collection string, records []model.Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketRecords)
		if err := root.DeleteBucket([]byte(collection)); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("localstore: wipe collection %s: %w", collection, err)
		}
		b, err := root.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		for _, rec := range records {
			raw, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("localstore: encode record: %w", err)
			}
			if err := b.Put([]byte(rec.ID), raw); err != nil {
				return err
			}
		}
		return nil
	})
}
