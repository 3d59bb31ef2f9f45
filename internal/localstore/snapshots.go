package localstore

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// PutSnapshot persists snap keyed by its entityType; a new snapshot for
// the same type replaces the previous one since only the latest is ever
// consumed (spec §3, §4.5 snapshot fallback).
func (s *Store) PutSnapshot(snap model.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("localstore: encode snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(snap.EntityType), raw)
	})
}

// GetSnapshot returns the most recently stored snapshot for entityType.
func (s *Store) GetSnapshot(entityType string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSnapshots).Get([]byte(entityType))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &snap)
	})
	return snap, err
}
