package resolver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nimbuscorp/syncengine/internal/model"
)

func rec(id string, version int64, updatedAtMs int64, payload string) model.Record {
	return model.Record{
		ID: id, TenantID: "t1", Type: "documents",
		Payload: json.RawMessage(payload),
		Meta:    model.RecordMeta{Version: version, UpdatedAt: time.UnixMilli(updatedAtMs).UTC()},
	}
}

// TestLastWriteWinsScenarioS2 mirrors spec §8 S2.
func TestLastWriteWinsScenarioS2(t *testing.T) {
	local := rec("d2", 3, 1000, `{"title":"L"}`)
	incoming := rec("d2", 4, 2000, `{"title":"R"}`)
	lww := NewLastWriteWins()
	out, err := lww.Resolve(Input{Local: local, Incoming: incoming})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	var body struct{ Title string }
	if err := json.Unmarshal(out.Payload, &body); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if body.Title != "R" {
		t.Errorf("Resolve().Payload.title = %q, want R", body.Title)
	}
}

// TestLastWriteWinsScenarioS3 mirrors spec §8 S3 (reverse timestamps).
func TestLastWriteWinsScenarioS3(t *testing.T) {
	local := rec("d2", 3, 1000, `{"title":"L"}`)
	incoming := rec("d2", 4, 500, `{"title":"R"}`)
	lww := NewLastWriteWins()
	out, err := lww.Resolve(Input{Local: local, Incoming: incoming})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	var body struct{ Title string }
	if err := json.Unmarshal(out.Payload, &body); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if body.Title != "L" {
		t.Errorf("Resolve().Payload.title = %q, want L", body.Title)
	}
}

// TestFieldMergeScenarioS4 mirrors spec §8 S4.
func TestFieldMergeScenarioS4(t *testing.T) {
	local := rec("d3", 1, 0, `{"a":1,"b":2,"versionedPerField":{"a":3000,"b":1000}}`)
	incoming := rec("d3", 2, 0, `{"a":9,"b":7,"versionedPerField":{"a":1500,"b":2500}}`)
	fm := NewFieldMerge()
	out, err := fm.Resolve(Input{Local: local, Incoming: incoming})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	var body struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	if err := json.Unmarshal(out.Payload, &body); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if body.A != 1 || body.B != 7 {
		t.Errorf("Resolve() = {a:%d, b:%d}, want {a:1, b:7}", body.A, body.B)
	}
}

func TestManualDefersAndRegisters(t *testing.T) {
	registry := NewDeferredRegistry()
	manual := NewManual(registry)
	local := rec("d4", 1, 0, `{}`)
	incoming := rec("d4", 2, 0, `{}`)
	_, err := manual.Resolve(Input{Local: local, Incoming: incoming})
	if err != ErrDeferred {
		t.Fatalf("Resolve() error = %v, want ErrDeferred", err)
	}
	parked := registry.List()
	if len(parked) != 1 || parked[0].RecordID != "d4" {
		t.Errorf("registry.List() = %+v, want one entry for d4", parked)
	}
	if _, ok := registry.Resolve("t1", "documents", "d4"); !ok {
		t.Error("Resolve() did not find the parked conflict")
	}
	if _, ok := registry.Resolve("t1", "documents", "d4"); ok {
		t.Error("Resolve() returned the same conflict twice")
	}
}

func TestRegistryUnknownStrategy(t *testing.T) {
	r := NewRegistry(NewDeferredRegistry())
	if _, err := r.Get("nonexistent"); err == nil {
		t.Error("Get() error = nil, want error for unknown strategy")
	}
	if _, err := r.Get("lastwritewins"); err != nil {
		t.Errorf("Get() error = %v, want nil", err)
	}
}
