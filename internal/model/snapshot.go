package model

import (
	"encoding/json"
	"time"
)

// Snapshot is an authoritative full state for an entity type, consumed
// atomically when delta replication is infeasible (spec §3, §4.5
// "Snapshot fallback").
type Snapshot struct {
	SnapshotID string          `json:"snapshotId"`
	TenantID   string          `json:"tenantId"`
	EntityType string          `json:"entityType"`
	Version    int64           `json:"version"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
	Checksum   string          `json:"checksum"`
}
