// Package localstore is the durable, per-tenant, per-origin structured
// store (spec §4.1, component C1). Each tenant owns its own bbolt file
// so that tenant isolation (testable property 1) holds at the storage
// layer itself rather than relying on query discipline alone.
//
// Adapted from the bucket-per-concern bbolt idiom in the teacher pack's
// storage layer (cuemby-warren/pkg/storage/boltdb.go): top-level
// buckets hold one concern each, records are JSON-encoded, and every
// multi-step operation runs inside a single bbolt transaction so it is
// all-or-nothing.
package localstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketRecords          = []byte("records")
	bucketPendingMutations = []byte("pendingMutations")
	bucketSyncCursors      = []byte("syncCursors")
	bucketSnapshots        = []byte("snapshots")
)

// defaultMaxDBSizeBytes bounds a tenant's local store; platform storage
// quotas in the browser/mobile sense are not visible to a Go process, so
// a fixed ceiling stands in for "platform-defined" (spec §4.1).
const defaultMaxDBSizeBytes int64 = 512 * 1024 * 1024

// Store is the durable per-tenant local store. It owns one bbolt
// database file and exposes collection-scoped operations to
// internal/repository.
type Store struct {
	db          *bolt.DB
	tenantID    string
	path        string
	maxSizeByte int64
}

// Open creates or opens the bbolt file for tenantID under baseDir. The
// four top-level buckets are created eagerly so every subsequent
// transaction can assume their existence.
func Open(baseDir, tenantID string) (*Store, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("localstore: empty tenantID")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("localstore: mkdir %s: %w", baseDir, err)
	}
	path := filepath.Join(baseDir, tenantID+".db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("localstore: open %s: %w", path, err)
	}
	s := &Store{db: db, tenantID: tenantID, path: path, maxSizeByte: defaultMaxDBSizeBytes}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketPendingMutations, bucketSyncCursors, bucketSnapshots} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying bbolt file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// TenantID returns the tenant this store instance is bound to.
func (s *Store) TenantID() string {
	return s.tenantID
}

// checkSize refuses further writes once the on-disk file would exceed
// maxSizeByte, surfacing ErrStorageExhausted rather than silently
// dropping the write (spec §4.1).
func (s *Store) checkSize() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil // can't stat yet, let bbolt itself surface real errors
	}
	if info.Size() >= s.maxSizeByte {
		return ErrStorageExhausted
	}
	return nil
}

// recordsBucket returns the nested per-collection bucket under
// "records", creating it if absent. Must run inside an *bolt.Tx.
func recordsBucket(tx *bolt.Tx, collection string) (*bolt.Bucket, error) {
	root := tx.Bucket(bucketRecords)
	b, err := root.CreateBucketIfNotExists([]byte(collection))
	if err != nil {
		return nil, fmt.Errorf("localstore: records bucket %s: %w", collection, err)
	}
	return b, nil
}
