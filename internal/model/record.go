// Package model defines the data types shared by every component of the
// sync engine: records, pending mutations, cursors, snapshots, vector
// clocks and interaction classes.
package model

import (
	"encoding/json"
	"time"
)

// RecordMeta is the system-managed metadata block every Record carries.
// Callers never set these fields directly; Repository.Put/Delete stamp
// them centrally (spec §4.2 invariant).
type RecordMeta struct {
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Version      int64      `json:"version"`
	Deleted      bool       `json:"deleted"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	// MutationID, when set, is the pending mutation that produced this
	// local version. The pull phase's conflict resolution uses it to
	// locate and drop a subsumed local mutation without a reverse scan
	// (spec §4.5, "resolution subsumes local mutation").
	MutationID *string `json:"mutationId,omitempty"`
}

// Record is the generic domain object every collection stores. Payload is
// kept opaque (raw JSON) so the engine never needs to know the shape of
// application data.
type Record struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Meta       RecordMeta      `json:"meta"`
	VectorClock VectorClock    `json:"vectorClock,omitempty"`
}

// Clone returns a deep-enough copy for safe mutation by callers; Payload
// and VectorClock are copied rather than aliased.
func (r Record) Clone() Record {
	out := r
	if r.Payload != nil {
		out.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	if r.VectorClock != nil {
		out.VectorClock = r.VectorClock.Clone()
	}
	return out
}
