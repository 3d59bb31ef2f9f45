package refserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nimbuscorp/syncengine/internal/authctx"
	"github.com/nimbuscorp/syncengine/internal/model"
)

type snapshotResponse struct {
	SnapshotID string          `json:"snapshotId"`
	TenantID   string          `json:"tenantId"`
	Version    int64           `json:"version"`
	Data       json.RawMessage `json:"data"`
	Checksum   string          `json:"checksum"`
	CreatedAt  int64           `json:"createdAt"`
}

// handleSnapshot serves the current full state of a collection as a
// single checksummed payload, used by the engine's snapshot fallback
// after a cursor-lost pull response (spec §4.5, §6 "GET
// /sync/snapshot/{entityType}/{id}"). The only id this reference
// server recognizes is "_latest": there is one live snapshot per
// (tenant, collection), not a history of named snapshots.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := authctx.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_identity", "missing authenticated identity")
		return
	}
	entityType := chi.URLParam(r, "entityType")
	if entityType == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation", "entityType is required")
		return
	}

	ctx := r.Context()
	rows, err := s.DB.Query(ctx, `
		SELECT id, payload, version, deleted, updated_at_ms, vector_clock
		FROM records
		WHERE tenant_id = $1 AND collection = $2
		ORDER BY id
	`, id.TenantID, entityType)
	if err != nil {
		log.Error().Err(err).Msg("refserver: snapshot query")
		writeError(w, http.StatusInternalServerError, "internal", "snapshot query failed")
		return
	}
	defer rows.Close()

	var maxVersion int64
	records := make([]model.Record, 0)
	for rows.Next() {
		var recID string
		var payload json.RawMessage
		var version int64
		var deleted bool
		var updatedMs int64
		var vcRaw json.RawMessage
		if err := rows.Scan(&recID, &payload, &version, &deleted, &updatedMs, &vcRaw); err != nil {
			log.Error().Err(err).Msg("refserver: scan snapshot row")
			writeError(w, http.StatusInternalServerError, "internal", "scan failed")
			return
		}
		var vc model.VectorClock
		if len(vcRaw) > 0 {
			_ = json.Unmarshal(vcRaw, &vc)
		}
		if version > maxVersion {
			maxVersion = version
		}
		updatedAt := time.UnixMilli(updatedMs).UTC()
		records = append(records, model.Record{
			ID: recID, TenantID: id.TenantID, Type: entityType, Payload: payload,
			Meta: model.RecordMeta{
				CreatedAt: updatedAt,
				UpdatedAt: updatedAt,
				Version:   version,
				Deleted:   deleted,
			},
			VectorClock: vc,
		})
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "row iteration failed")
		return
	}

	data, err := json.Marshal(records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "encode snapshot failed")
		return
	}
	checksum := strconv.FormatUint(xxhash.Sum64(data), 16)
	now := time.Now().UTC()

	writeJSON(w, http.StatusOK, snapshotResponse{
		SnapshotID: uuid.NewString(),
		TenantID:   id.TenantID,
		Version:    maxVersion,
		Data:       data,
		Checksum:   checksum,
		CreatedAt:  now.UnixMilli(),
	})
}
