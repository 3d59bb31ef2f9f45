package localstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// mutationIndexBucket is nested under bucketPendingMutations and maps
// mutationId -> its 8-byte big-endian append-sequence key, so ackUpTo
// and requeue can locate an entry without a full scan.
var mutationIndexBucket = []byte("byMutationId")

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// AppendMutation assigns the next append-sequence number for this
// store's mutation queue and writes m, preserving the strict
// append-order contract (spec §4.3).
func (s *Store) AppendMutation(m model.PendingMutation) (model.PendingMutation, error) {
	if m.TenantID != s.tenantID {
		return m, ErrTenantMismatch
	}
	if err := s.checkSize(); err != nil {
		return m, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketPendingMutations)
		seq, err := root.NextSequence()
		if err != nil {
			return err
		}
		m.AppendSeq = seq
		if m.Status == "" {
			m.Status = model.MutationPending
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("localstore: encode mutation: %w", err)
		}
		if err := root.Put(seqKey(seq), raw); err != nil {
			return err
		}
		idx, err := root.CreateBucketIfNotExists(mutationIndexBucket)
		if err != nil {
			return err
		}
		return idx.Put([]byte(m.MutationID), seqKey(seq))
	})
	return m, err
}

// PeekBatch returns up to n pending mutations in append order, without
// removing them (spec §4.3 "peekBatch(n)").
func (s *Store) PeekBatch(n int) ([]model.PendingMutation, error) {
	var out []model.PendingMutation
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketPendingMutations)
		c := root.Cursor()
		for k, v := c.First(); k != nil && len(out) < n; k, v = c.Next() {
			if len(k) != 8 { // skip the nested index bucket's key
				continue
			}
			var m model.PendingMutation
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("localstore: decode mutation: %w", err)
			}
			if m.Status == model.MutationPending {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

// AckUpTo removes the contiguous prefix of the queue ending at and
// including mutationId, once the server has durably accepted it (spec
// §4.3 "ackUpTo(mutationId) (removes contiguous prefix)").
func (s *Store) AckUpTo(mutationID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketPendingMutations)
		idx := root.Bucket(mutationIndexBucket)
		if idx == nil {
			return nil
		}
		targetKey := idx.Get([]byte(mutationID))
		if targetKey == nil {
			return nil // already acked or unknown; ackUpTo is idempotent
		}
		targetSeq := binary.BigEndian.Uint64(targetKey)
		c := root.Cursor()
		var toDeleteIdx [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) != 8 {
				continue
			}
			seq := binary.BigEndian.Uint64(k)
			if seq > targetSeq {
				break
			}
			var m model.PendingMutation
			if err := json.Unmarshal(v, &m); err == nil {
				toDeleteIdx = append(toDeleteIdx, []byte(m.MutationID))
			}
			if err := root.Delete(k); err != nil {
				return err
			}
		}
		for _, id := range toDeleteIdx {
			if err := idx.Delete(id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Requeue increments retryCount and records lastError on the mutation,
// keeping its position in the queue (spec §4.3 "requeue(mutationId,
// error)").
func (s *Store) Requeue(mutationID, lastError string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketPendingMutations)
		idx := root.Bucket(mutationIndexBucket)
		if idx == nil {
			return fmt.Errorf("localstore: requeue unknown mutation %s", mutationID)
		}
		key := idx.Get([]byte(mutationID))
		if key == nil {
			return fmt.Errorf("localstore: requeue unknown mutation %s", mutationID)
		}
		raw := root.Get(key)
		if raw == nil {
			return fmt.Errorf("localstore: requeue missing entry %s", mutationID)
		}
		var m model.PendingMutation
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("localstore: decode mutation: %w", err)
		}
		m.RetryCount++
		m.LastError = lastError
		updated, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("localstore: encode mutation: %w", err)
		}
		return root.Put(key, updated)
	})
}

// MarkFailed moves a mutation to the terminal-failed status in place,
// so it is excluded from PeekBatch but retained for operator inspection
// (spec §4.5 push-phase step 4, "move the mutation to a terminal-failed
// sub-queue").
func (s *Store) MarkFailed(mutationID, lastError string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketPendingMutations)
		idx := root.Bucket(mutationIndexBucket)
		if idx == nil {
			return fmt.Errorf("localstore: mark-failed unknown mutation %s", mutationID)
		}
		key := idx.Get([]byte(mutationID))
		if key == nil {
			return fmt.Errorf("localstore: mark-failed unknown mutation %s", mutationID)
		}
		raw := root.Get(key)
		var m model.PendingMutation
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("localstore: decode mutation: %w", err)
		}
		m.Status = model.MutationFailed
		m.LastError = lastError
		updated, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return root.Put(key, updated)
	})
}

// RemoveMutation deletes a single mutation outright, used when pull-side
// conflict resolution subsumes a local mutation (spec §4.5).
func (s *Store) RemoveMutation(mutationID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketPendingMutations)
		idx := root.Bucket(mutationIndexBucket)
		if idx == nil {
			return nil
		}
		key := idx.Get([]byte(mutationID))
		if key == nil {
			return nil
		}
		if err := root.Delete(key); err != nil {
			return err
		}
		return idx.Delete([]byte(mutationID))
	})
}
