package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// HTTPTransport implements Transport against the replication HTTP
// surface described in spec §6, served in this repository by
// internal/refserver.
type HTTPTransport struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPTransport constructs a transport with a sane default client
// timeout; individual calls still honor the caller's context deadline.
func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{BaseURL: baseURL, Token: token, Client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *HTTPTransport) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httptransport: encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

type pushRequestBody struct {
	MutationID  string             `json:"mutationId"`
	Kind        string             `json:"kind"`
	Collection  string             `json:"collection"`
	RecordID    string             `json:"id"`
	Payload     json.RawMessage    `json:"payload"`
	VectorClock model.VectorClock  `json:"vectorClock,omitempty"`
}

type pushResponseBody struct {
	Accepted        bool   `json:"accepted"`
	ServerVersion   int64  `json:"serverVersion"`
	ServerTimestamp int64  `json:"serverTimestamp"`
	Classification  string `json:"classification"`
	Message         string `json:"message"`
}

// Push issues POST /sync/push for a single pending mutation (spec §6).
func (t *HTTPTransport) Push(ctx context.Context, tenantID string, m model.PendingMutation) (PushResult, error) {
	body := pushRequestBody{
		MutationID: m.MutationID, Kind: string(m.Kind), Collection: m.Collection,
		RecordID: m.RecordID, Payload: m.Payload, VectorClock: m.VectorClock,
	}
	req, err := t.newRequest(ctx, http.MethodPost, "/sync/push", body)
	if err != nil {
		return PushResult{}, err
	}
	req.Header.Set("X-Tenant-Id", tenantID)

	resp, err := t.Client.Do(req)
	if err != nil {
		return PushResult{Outcome: PushRetryable, Err: err}, nil
	}
	defer resp.Body.Close()

	var parsed pushResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return PushResult{Outcome: PushRetryable, Err: err}, nil
	}

	switch {
	case resp.StatusCode == http.StatusOK && parsed.Accepted:
		return PushResult{Outcome: PushAccepted, ServerVersion: parsed.ServerVersion, ServerTimestamp: parsed.ServerTimestamp}, nil
	case resp.StatusCode >= 500:
		return PushResult{Outcome: PushRetryable, Err: fmt.Errorf("httptransport: push %d: %s", resp.StatusCode, parsed.Message)}, nil
	case parsed.Classification == "conflict":
		return PushResult{Outcome: PushConflict, Err: fmt.Errorf("httptransport: push conflict: %s", parsed.Message)}, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnprocessableEntity:
		return PushResult{Outcome: PushPermanent, Err: fmt.Errorf("httptransport: push %d: %s", resp.StatusCode, parsed.Message)}, nil
	default:
		return PushResult{Outcome: PushRetryable, Err: fmt.Errorf("httptransport: push %d: %s", resp.StatusCode, parsed.Message)}, nil
	}
}

type pullResponseBody struct {
	Changes         []model.Record `json:"changes"`
	ServerTimestamp int64          `json:"serverTimestamp"`
	CursorLost      bool           `json:"cursorLost"`
}

// Pull issues GET /sync/pull?since=<cursor> (spec §6).
func (t *HTTPTransport) Pull(ctx context.Context, tenantID, collection, cursorToken string, maxChanges int) (PullResult, error) {
	q := url.Values{}
	q.Set("since", cursorToken)
	q.Set("collection", collection)
	q.Set("limit", fmt.Sprintf("%d", maxChanges))
	req, err := t.newRequest(ctx, http.MethodGet, "/sync/pull?"+q.Encode(), nil)
	if err != nil {
		return PullResult{}, err
	}
	req.Header.Set("X-Tenant-Id", tenantID)

	resp, err := t.Client.Do(req)
	if err != nil {
		return PullResult{}, fmt.Errorf("httptransport: pull: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return PullResult{}, fmt.Errorf("httptransport: pull status %d", resp.StatusCode)
	}
	var parsed pullResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return PullResult{}, fmt.Errorf("httptransport: decode pull response: %w", err)
	}
	return PullResult{Changes: parsed.Changes, ServerTimestamp: parsed.ServerTimestamp, CursorLost: parsed.CursorLost}, nil
}

type snapshotResponseBody struct {
	SnapshotID string          `json:"snapshotId"`
	TenantID   string          `json:"tenantId"`
	Version    int64           `json:"version"`
	Data       json.RawMessage `json:"data"`
	Checksum   string          `json:"checksum"`
	CreatedAt  int64           `json:"createdAt"`
}

// Snapshot issues GET /sync/snapshot/<entityType>/<id> (spec §6); the
// reference server serves the latest per-tenant snapshot for the whole
// entity type at the fixed id "_latest".
func (t *HTTPTransport) Snapshot(ctx context.Context, tenantID, entityType string) (model.Snapshot, error) {
	req, err := t.newRequest(ctx, http.MethodGet, "/sync/snapshot/"+entityType+"/_latest", nil)
	if err != nil {
		return model.Snapshot{}, err
	}
	req.Header.Set("X-Tenant-Id", tenantID)

	resp, err := t.Client.Do(req)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("httptransport: snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Snapshot{}, fmt.Errorf("httptransport: snapshot status %d", resp.StatusCode)
	}
	var parsed snapshotResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.Snapshot{}, fmt.Errorf("httptransport: decode snapshot response: %w", err)
	}
	return model.Snapshot{
		SnapshotID: parsed.SnapshotID, TenantID: parsed.TenantID, EntityType: entityType,
		Version: parsed.Version, Payload: parsed.Data, Checksum: parsed.Checksum,
		CreatedAt: time.UnixMilli(parsed.CreatedAt).UTC(),
	}, nil
}

// Ping issues HEAD /ping, used by the Connectivity Monitor (spec §6).
func (t *HTTPTransport) Ping(ctx context.Context) error {
	req, err := t.newRequest(ctx, http.MethodHead, "/ping", nil)
	if err != nil {
		return err
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("httptransport: ping status %d", resp.StatusCode)
	}
	return nil
}
