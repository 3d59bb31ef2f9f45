package model

import (
	"encoding/json"
	"time"
)

// MutationKind enumerates the three operations a Pending Mutation can
// represent (spec §3).
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// MutationStatus tracks where in its retry lifecycle a mutation sits.
type MutationStatus string

const (
	MutationPending  MutationStatus = "pending"
	MutationFailed   MutationStatus = "failed"   // terminal, quarantined sub-queue
	MutationDeferred MutationStatus = "deferred" // manual resolver suspended it
)

// PendingMutation is a locally captured intent to change a record,
// durably queued in the Mutation Log until the server acknowledges it
// (spec §3, §4.3).
type PendingMutation struct {
	MutationID  string          `json:"mutationId"`
	TenantID    string          `json:"tenantId"`
	Kind        MutationKind    `json:"kind"`
	Collection  string          `json:"collection"`
	RecordID    string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
	RetryCount  int             `json:"retryCount"`
	LastError   string          `json:"lastError,omitempty"`
	VectorClock VectorClock     `json:"vectorClock,omitempty"`
	Status      MutationStatus  `json:"status"`
	// AppendSeq is the strictly increasing local append order within the
	// tenant, used to enforce causal push order (spec §4.3, §8 property
	// 4) independent of mutationId string sort order.
	AppendSeq uint64 `json:"appendSeq"`
}

// Clone returns an independent copy safe for concurrent mutation.
func (m PendingMutation) Clone() PendingMutation {
	out := m
	if m.Payload != nil {
		out.Payload = append(json.RawMessage(nil), m.Payload...)
	}
	if m.VectorClock != nil {
		out.VectorClock = m.VectorClock.Clone()
	}
	return out
}
