package repository

import (
	"testing"

	"github.com/nimbuscorp/syncengine/internal/localstore"
)

type testDoc struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (d testDoc) ItemID() string { return d.ID }

func newTestRepo(t *testing.T) *Repository[testDoc] {
	t.Helper()
	dir := t.TempDir()
	store, err := localstore.Open(dir, "t1")
	if err != nil {
		t.Fatalf("localstore.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New[testDoc](store, "documents", "t1", "client-a")
}

func TestRepositoryPutStampsVersionAndAppendsMutation(t *testing.T) {
	repo := newTestRepo(t)
	rec, err := repo.Put(testDoc{ID: "d1", Title: "A"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if rec.Meta.Version != 1 {
		t.Errorf("Meta.Version = %d, want 1", rec.Meta.Version)
	}
	batch, err := repo.store.PeekBatch(10)
	if err != nil {
		t.Fatalf("PeekBatch() error = %v", err)
	}
	if len(batch) != 1 || batch[0].Kind != "create" {
		t.Errorf("PeekBatch() = %+v, want one create mutation", batch)
	}
}

func TestRepositoryPutIncrementsVersionOnUpdate(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.Put(testDoc{ID: "d1", Title: "A"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rec, err := repo.Put(testDoc{ID: "d1", Title: "B"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if rec.Meta.Version != 2 {
		t.Errorf("Meta.Version = %d, want 2", rec.Meta.Version)
	}
	batch, err := repo.store.PeekBatch(10)
	if err != nil {
		t.Fatalf("PeekBatch() error = %v", err)
	}
	if len(batch) != 2 || batch[1].Kind != "update" {
		t.Errorf("PeekBatch() = %+v, want create then update", batch)
	}
}

func TestRepositoryGetReturnsTombstones(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.Put(testDoc{ID: "d1", Title: "A"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := repo.Delete("d1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, found, err := repo.Get("d1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Error("Get() found = false, want true for tombstoned record")
	}
	recs, err := repo.store.GetAllRecords("documents", nil)
	if err != nil {
		t.Fatalf("GetAllRecords() error = %v", err)
	}
	if len(recs) != 1 || !recs[0].Meta.Deleted {
		t.Errorf("expected one tombstoned record, got %+v", recs)
	}
}

func TestRepositoryVectorClockIncrementsPerWrite(t *testing.T) {
	repo := newTestRepo(t)
	rec1, err := repo.Put(testDoc{ID: "d1", Title: "A"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rec2, err := repo.Put(testDoc{ID: "d1", Title: "B"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if rec1.VectorClock["client-a"] != 1 || rec2.VectorClock["client-a"] != 2 {
		t.Errorf("vector clocks = %v, %v, want 1 then 2", rec1.VectorClock, rec2.VectorClock)
	}
}
