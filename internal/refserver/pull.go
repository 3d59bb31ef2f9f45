package refserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nimbuscorp/syncengine/internal/authctx"
	"github.com/nimbuscorp/syncengine/internal/model"
	"github.com/rs/zerolog/log"
)

type pullResponse struct {
	Changes         []model.Record `json:"changes"`
	ServerTimestamp int64          `json:"serverTimestamp"`
	CursorLost      bool           `json:"cursorLost"`
}

// handlePull serves a page of changes for one collection ordered by
// (updated_at_ms, id), the same deterministic-pagination shape as the
// teacher's syncservice.PullNotes, generalized from a per-entity table
// and a (ms, uuid) cursor pair to the generic records table keyed on
// a bare millisecond "since" cursor (spec §6 "GET /sync/pull").
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	id, ok := authctx.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_identity", "missing authenticated identity")
		return
	}

	collection := r.URL.Query().Get("collection")
	if collection == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation", "collection is required")
		return
	}
	sinceStr := r.URL.Query().Get("since")
	var sinceMs int64
	cursorLost := false
	if sinceStr != "" {
		v, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			// An unparseable cursor is treated as lost rather than
			// rejected outright, so a client that somehow corrupted its
			// local cursor can recover via the snapshot fallback (spec
			// §4.5 "Cursor loss").
			cursorLost = true
		} else {
			sinceMs = v
		}
	}
	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	nowMs := time.Now().UnixMilli()
	if cursorLost {
		writeJSON(w, http.StatusOK, pullResponse{ServerTimestamp: nowMs, CursorLost: true})
		return
	}

	ctx := r.Context()
	rows, err := s.DB.Query(ctx, `
		SELECT id, payload, version, deleted, updated_at_ms, vector_clock
		FROM records
		WHERE tenant_id = $1 AND collection = $2 AND updated_at_ms > $3
		ORDER BY updated_at_ms, id
		LIMIT $4
	`, id.TenantID, collection, sinceMs, limit)
	if err != nil {
		log.Error().Err(err).Msg("refserver: pull query")
		writeError(w, http.StatusInternalServerError, "internal", "pull query failed")
		return
	}
	defer rows.Close()

	changes := make([]model.Record, 0, limit)
	for rows.Next() {
		var recID string
		var payload json.RawMessage
		var version int64
		var deleted bool
		var updatedMs int64
		var vcRaw json.RawMessage
		if err := rows.Scan(&recID, &payload, &version, &deleted, &updatedMs, &vcRaw); err != nil {
			log.Error().Err(err).Msg("refserver: scan pull row")
			writeError(w, http.StatusInternalServerError, "internal", "scan failed")
			return
		}
		var vc model.VectorClock
		if len(vcRaw) > 0 {
			_ = json.Unmarshal(vcRaw, &vc)
		}
		updatedAt := time.UnixMilli(updatedMs).UTC()
		changes = append(changes, model.Record{
			ID: recID, TenantID: id.TenantID, Type: collection, Payload: payload,
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

	writeJSON(w, http.StatusOK, pullResponse{Changes: changes, ServerTimestamp: nowMs})
}
