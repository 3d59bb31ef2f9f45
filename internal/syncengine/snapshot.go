package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// snapshotFallback replaces pull with a snapshot request when the
// server signals cursor-lost, verifies the checksum, and atomically
// replaces the affected collection (spec §4.5 "Snapshot fallback";
// testable scenario S8).
func (e *Engine) snapshotFallback(ctx context.Context, tenantID, collection string) error {
	snap, err := e.transport.Snapshot(ctx, tenantID, collection)
	if err != nil {
		return fmt.Errorf("syncengine: fetch snapshot: %w", err)
	}
	if err := verifyChecksum(snap); err != nil {
		return fmt.Errorf("syncengine: snapshot checksum: %w", err)
	}

	var records []model.Record
	if err := json.Unmarshal(snap.Payload, &records); err != nil {
		return fmt.Errorf("syncengine: decode snapshot: %w", err)
	}
	for i := range records {
		records[i].TenantID = tenantID
	}

	if err := e.store.ReplaceCollectionAtomically(collection, records); err != nil {
		return err
	}
	if err := e.store.PutSnapshot(snap); err != nil {
		return err
	}

	cur, err := e.store.GetCursor(collection)
	if err != nil {
		return err
	}
	cur.LastPulledAt = snap.CreatedAt
	cur.LastStatus = model.SyncSuccess
	cur.LastError = ""
	return e.store.PutCursor(cur)
}

// verifyChecksum recomputes the xxhash digest of the snapshot payload
// and compares it against the advertised checksum before the caller is
// allowed to replace any local state (spec §3 "Checksum is verified
// before atomic replacement").
func verifyChecksum(snap model.Snapshot) error {
	got := strconv.FormatUint(xxhash.Sum64(snap.Payload), 16)
	if got != snap.Checksum {
		return fmt.Errorf("mismatch: computed %s, advertised %s", got, snap.Checksum)
	}
	return nil
}
