package localstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nimbuscorp/syncengine/internal/model"
)

func newTestStore(t *testing.T, tenantID string) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, tenantID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndGetRecord(t *testing.T) {
	s := newTestStore(t, "t1")
	rec := model.Record{
		ID: "d1", TenantID: "t1", Type: "document",
		Payload: json.RawMessage(`{"title":"A"}`),
		Meta:    model.RecordMeta{UpdatedAt: time.Now(), Version: 1},
	}
	if err := s.PutRecord("documents", rec); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}
	got, err := s.GetRecord("documents", "d1")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if got.ID != "d1" || string(got.Payload) != string(rec.Payload) {
		t.Errorf("GetRecord() = %+v, want matching payload", got)
	}
}

func TestPutRecordRejectsTenantMismatch(t *testing.T) {
	s := newTestStore(t, "t1")
	rec := model.Record{ID: "d1", TenantID: "t2"}
	if err := s.PutRecord("documents", rec); err != ErrTenantMismatch {
		t.Errorf("PutRecord() error = %v, want ErrTenantMismatch", err)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	s := newTestStore(t, "t1")
	if _, err := s.GetRecord("documents", "missing"); err != ErrNotFound {
		t.Errorf("GetRecord() error = %v, want ErrNotFound", err)
	}
}

func TestMutationAppendPeekAck(t *testing.T) {
	s := newTestStore(t, "t1")
	for i := 0; i < 3; i++ {
		m := model.PendingMutation{
			MutationID: "m" + string(rune('1'+i)),
			TenantID:   "t1", Kind: model.MutationCreate,
			Collection: "documents", RecordID: "d1",
		}
		if _, err := s.AppendMutation(m); err != nil {
			t.Fatalf("AppendMutation() error = %v", err)
		}
	}
	batch, err := s.PeekBatch(10)
	if err != nil {
		t.Fatalf("PeekBatch() error = %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("PeekBatch() len = %d, want 3", len(batch))
	}
	if batch[0].MutationID != "m1" || batch[2].MutationID != "m3" {
		t.Errorf("PeekBatch() order = %v, want append order", batch)
	}

	if err := s.AckUpTo("m2"); err != nil {
		t.Fatalf("AckUpTo() error = %v", err)
	}
	remaining, err := s.PeekBatch(10)
	if err != nil {
		t.Fatalf("PeekBatch() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].MutationID != "m3" {
		t.Errorf("PeekBatch() after ack = %v, want only m3", remaining)
	}
}

func TestMutationRequeue(t *testing.T) {
	s := newTestStore(t, "t1")
	m := model.PendingMutation{MutationID: "m1", TenantID: "t1", Kind: model.MutationUpdate, Collection: "documents", RecordID: "d1"}
	if _, err := s.AppendMutation(m); err != nil {
		t.Fatalf("AppendMutation() error = %v", err)
	}
	if err := s.Requeue("m1", "timeout"); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	batch, err := s.PeekBatch(1)
	if err != nil {
		t.Fatalf("PeekBatch() error = %v", err)
	}
	if len(batch) != 1 || batch[0].RetryCount != 1 || batch[0].LastError != "timeout" {
		t.Errorf("PeekBatch() after requeue = %+v", batch)
	}
}

func TestCursorLazyInit(t *testing.T) {
	s := newTestStore(t, "t1")
	cur, err := s.GetCursor("documents")
	if err != nil {
		t.Fatalf("GetCursor() error = %v", err)
	}
	if cur.LastStatus != model.SyncIdle {
		t.Errorf("GetCursor() fresh status = %v, want idle", cur.LastStatus)
	}
}

func TestReplaceCollectionAtomically(t *testing.T) {
	s := newTestStore(t, "t1")
	if err := s.PutRecord("documents", model.Record{ID: "old", TenantID: "t1"}); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}
	newRecords := []model.Record{{ID: "new1", TenantID: "t1"}, {ID: "new2", TenantID: "t1"}}
	if err := s.ReplaceCollectionAtomically("documents", newRecords); err != nil {
		t.Fatalf("ReplaceCollectionAtomically() error = %v", err)
	}
	if _, err := s.GetRecord("documents", "old"); err != ErrNotFound {
		t.Errorf("old record survived replace: err = %v", err)
	}
	all, err := s.GetAllRecords("documents", nil)
	if err != nil {
		t.Fatalf("GetAllRecords() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("GetAllRecords() len = %d, want 2", len(all))
	}
}
