package refserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nimbuscorp/syncengine/internal/authctx"
	"github.com/nimbuscorp/syncengine/internal/model"
	"github.com/rs/zerolog/log"
)

type pushRequest struct {
	MutationID  string             `json:"mutationId"`
	Kind        string             `json:"kind"`
	Collection  string             `json:"collection"`
	RecordID    string             `json:"id"`
	Payload     json.RawMessage    `json:"payload"`
	VectorClock model.VectorClock  `json:"vectorClock,omitempty"`
}

type pushResponse struct {
	Accepted        bool   `json:"accepted"`
	ServerVersion   int64  `json:"serverVersion"`
	ServerTimestamp int64  `json:"serverTimestamp"`
	Classification  string `json:"classification,omitempty"`
	Message         string `json:"message,omitempty"`
}

// handlePush upserts a single pushed mutation into the generic records
// table. Grounded on the teacher's syncservice.PushNoteItem: an
// INSERT ... ON CONFLICT DO UPDATE whose WHERE clause only applies the
// update when the incoming updated_at_ms is strictly newer than the
// stored one, generalized from the per-entity note table to
// (tenant_id, collection, id). updated_at_ms is stamped from the server
// clock at request time, so a push normally wins and bumps the version,
// a second push of the same mutation included. The client's vector
// clock is stored but not compared.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	id, ok := authctx.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_identity", "missing authenticated identity")
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid push body: "+err.Error())
		return
	}
	if req.Collection == "" || req.RecordID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation", "collection and id are required")
		return
	}

	nowMs := time.Now().UnixMilli()
	vcJSON, err := json.Marshal(req.VectorClock)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid vectorClock: "+err.Error())
		return
	}
	deleted := req.Kind == string(model.MutationDelete)
	payload := req.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	ctx := r.Context()
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		log.Error().Err(err).Msg("refserver: begin push tx")
		writeError(w, http.StatusInternalServerError, "internal", "could not begin transaction")
		return
	}
	defer tx.Rollback(ctx)

	// An incoming write is accepted when its updated_at_ms is strictly
	// newer than what's stored, mirroring the teacher's "WHERE
	// EXCLUDED.updated_at_ms > note.updated_at_ms" idiom. That value is
	// this request's server time (nowMs), so the write is rejected only
	// when the stored row carries the same or a later millisecond; that
	// case falls through to the conflict classification below.
	tag, err := tx.Exec(ctx, `
		INSERT INTO records (tenant_id, collection, id, payload, version, deleted, updated_at_ms, vector_clock)
		VALUES ($1, $2, $3, $4, 1, $5, $6, $7)
		ON CONFLICT (tenant_id, collection, id) DO UPDATE SET
			payload       = EXCLUDED.payload,
			deleted       = EXCLUDED.deleted,
			updated_at_ms = EXCLUDED.updated_at_ms,
			vector_clock  = EXCLUDED.vector_clock,
			version       = records.version + 1
		WHERE EXCLUDED.updated_at_ms > records.updated_at_ms
	`, id.TenantID, req.Collection, req.RecordID, payload, deleted, nowMs, vcJSON)
	if err != nil {
		log.Error().Err(err).Str("mutationId", req.MutationID).Msg("refserver: push upsert")
		writeError(w, http.StatusInternalServerError, "internal", "upsert failed")
		return
	}

	var serverVersion int64
	var serverMs int64
	err = tx.QueryRow(ctx,
		`SELECT version, updated_at_ms FROM records WHERE tenant_id=$1 AND collection=$2 AND id=$3`,
		id.TenantID, req.Collection, req.RecordID).Scan(&serverVersion, &serverMs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to confirm write")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "commit failed")
		return
	}

	if tag.RowsAffected() == 0 {
		// The stored row's updated_at_ms is at or after this push's server
		// timestamp. Report it as a conflict advisory rather than silently
		// accepting or discarding (spec §4.5/§9).
		writeJSON(w, http.StatusOK, pushResponse{
			Accepted: false, ServerVersion: serverVersion, ServerTimestamp: serverMs,
			Classification: "conflict", Message: "server state is newer or concurrent",
		})
		return
	}

	writeJSON(w, http.StatusOK, pushResponse{
		Accepted: true, ServerVersion: serverVersion, ServerTimestamp: serverMs,
	})
}
