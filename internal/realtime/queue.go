package realtime

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// OfflineQueue is the per-recipient durable queue backing the Class-B
// degraded path (spec §4.7 "message is written to a per-recipient
// offline queue with bounded TTL for later retrieval"). Adapted from
// the teacher pack's badger usage (MaxIOFS-MaxIOFS/internal/metadata/
// badger.go), whose badger.NewEntry(...).WithTTL(...) idiom is exactly
// the native per-key expiry this component needs — a hand-rolled TTL
// sweep over bbolt would just reimplement what badger already does.
type OfflineQueue struct {
	db *badger.DB
}

// OpenOfflineQueue opens (or creates) the badger database at dir.
func OpenOfflineQueue(dir string) (*OfflineQueue, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("realtime: open offline queue: %w", err)
	}
	return &OfflineQueue{db: db}, nil
}

// Close releases the badger database handle.
func (q *OfflineQueue) Close() error {
	return q.db.Close()
}

func queueKey(tenantID, recipientID string, seq uint64) []byte {
	key := make([]byte, 0, len(tenantID)+1+len(recipientID)+1+8)
	key = append(key, tenantID...)
	key = append(key, 0)
	key = append(key, recipientID...)
	key = append(key, 0)
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)
	return append(key, seqBytes...)
}

func queuePrefix(tenantID, recipientID string) []byte {
	key := make([]byte, 0, len(tenantID)+1+len(recipientID)+1)
	key = append(key, tenantID...)
	key = append(key, 0)
	key = append(key, recipientID...)
	key = append(key, 0)
	return key
}

// Enqueue durably queues env for (tenantID, recipientID), expiring
// after ttl if never drained (spec §4.7; testable property 9 "queued
// or expires within mutationTTLms, never silently lost"). sizeLimit
// bounds the number of queued messages per recipient, per the
// configuration surface's queueSizeLimit.
func (q *OfflineQueue) Enqueue(tenantID, recipientID string, env Envelope, ttl time.Duration, sizeLimit int) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: encode envelope: %w", err)
	}
	return q.db.Update(func(txn *badger.Txn) error {
		count, err := q.countLocked(txn, tenantID, recipientID)
		if err != nil {
			return err
		}
		if count >= sizeLimit {
			return fmt.Errorf("realtime: offline queue for %s/%s at capacity (%d)", tenantID, recipientID, sizeLimit)
		}
		seq := uint64(time.Now().UnixNano())
		entry := badger.NewEntry(queueKey(tenantID, recipientID, seq), raw).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

func (q *OfflineQueue) countLocked(txn *badger.Txn, tenantID, recipientID string) (int, error) {
	prefix := queuePrefix(tenantID, recipientID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n, nil
}

// Drain returns every queued, unexpired message for (tenantID,
// recipientID) in send order and removes them — delivered exactly once
// on recovery (spec §4.7, §8 S5).
func (q *OfflineQueue) Drain(tenantID, recipientID string) ([]Envelope, error) {
	prefix := queuePrefix(tenantID, recipientID)
	var out []Envelope
	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var env Envelope
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			})
			if err != nil {
				return fmt.Errorf("realtime: decode queued envelope: %w", err)
			}
			out = append(out, env)
			keys = append(keys, append([]byte(nil), item.Key()...))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}
