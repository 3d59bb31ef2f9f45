package localstore

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// GetCursor returns the sync cursor for collection, or a freshly
// initialized idle cursor if none exists yet — cursors are created
// lazily per collection (spec §3 lifecycle).
func (s *Store) GetCursor(collection string) (model.SyncCursor, error) {
	cur := model.SyncCursor{TenantID: s.tenantID, Collection: collection, LastStatus: model.SyncIdle}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncCursors)
		raw := b.Get([]byte(collection))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &cur)
	})
	return cur, err
}

// PutCursor persists cur, keyed by collection.
func (s *Store) PutCursor(cur model.SyncCursor) error {
	raw, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("localstore: encode cursor: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncCursors).Put([]byte(cur.Collection), raw)
	})
}
