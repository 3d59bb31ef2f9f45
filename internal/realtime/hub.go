package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/nimbuscorp/syncengine/internal/classifier"
	"github.com/nimbuscorp/syncengine/internal/model"
	"github.com/nimbuscorp/syncengine/internal/synerr"
)

// Sender is the minimal surface a transport-specific connection (e.g. a
// nhooyr.io/websocket conn, wrapped by Client) must expose to the hub.
type Sender interface {
	Send(env Envelope) error
}

// connEntry is one registered connection, scoped to the tenant/user it
// authenticated as (spec §4.7 connection lifecycle).
type connEntry struct {
	connID   string
	tenantID string
	userID   string
	sender   Sender
}

// Hub is the server-side counterpart of the Realtime Channel: it
// tracks active connections, room memberships, and presence, and
// performs direct/room delivery with tenant segregation and Class-D
// refusal enforced centrally (spec §4.7).
type Hub struct {
	queue       *OfflineQueue
	limiter     *SlidingWindowLimiter
	mutationTTL time.Duration
	queueLimit  int
	events      chan synerr.Event

	mu            sync.Mutex
	conns         map[string]*connEntry            // connID -> entry
	byRecipient   map[string]map[string]*connEntry // tenantID\x00userID -> connID -> entry
	rooms         map[string]map[string]*connEntry // tenantID\x00roomID -> connID -> entry
	presence      map[string]Presence              // tenantID\x00userID -> Presence
	seenMessages  map[string]time.Time             // messageID -> first-seen time, for idempotent-delivery dedupe
}

// NewHub constructs a Hub. mutationTTL and queueLimit back the Class-B
// offline queue (configuration surface's mutationTTLms, queueSizeLimit).
// The hub only resets limiter when a connection unregisters; it never
// calls Allow, so no per-connection rate limit is applied to sends.
func NewHub(queue *OfflineQueue, limiter *SlidingWindowLimiter, mutationTTL time.Duration, queueLimit int) *Hub {
	return &Hub{
		queue: queue, limiter: limiter, mutationTTL: mutationTTL, queueLimit: queueLimit,
		events:       make(chan synerr.Event, 64),
		conns:        make(map[string]*connEntry),
		byRecipient:  make(map[string]map[string]*connEntry),
		rooms:        make(map[string]map[string]*connEntry),
		presence:     make(map[string]Presence),
		seenMessages: make(map[string]time.Time),
	}
}

// Events returns the channel of reported hub failures.
func (h *Hub) Events() <-chan synerr.Event { return h.events }

func recipientKey(tenantID, userID string) string { return tenantID + "\x00" + userID }
func roomKey(tenantID, roomID string) string      { return tenantID + "\x00" + roomID }

// Register adds a connection to the hub's live set.
func (h *Hub) Register(connID, tenantID, userID string, sender Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry := &connEntry{connID: connID, tenantID: tenantID, userID: userID, sender: sender}
	h.conns[connID] = entry
	rk := recipientKey(tenantID, userID)
	if h.byRecipient[rk] == nil {
		h.byRecipient[rk] = make(map[string]*connEntry)
	}
	h.byRecipient[rk][connID] = entry
}

// Unregister removes a connection and drops its room memberships.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(h.conns, connID)
	delete(h.byRecipient[recipientKey(entry.tenantID, entry.userID)], connID)
	for _, members := range h.rooms {
		delete(members, connID)
	}
	h.limiter.Reset(connID)
}

// checkEnvelope enforces tenant segregation and the Class-D hard
// refusal before any delivery attempt is made (spec §4.7 "any message
// whose declared tenant does not match the authenticated context is
// refused and logged"; §4.8 Class-D refusal; testable property 7).
func (h *Hub) checkEnvelope(authTenantID string, env Envelope) error {
	if env.TenantID != authTenantID {
		h.reportEvent(synerr.KindTenantMismatch, env, "tenant mismatch: authenticated as %s, message declared %s", authTenantID, env.TenantID)
		return fmt.Errorf("realtime: tenant mismatch")
	}
	if !classifier.AllowsRealtimeTransport(env.InteractionClass) {
		h.reportEvent(synerr.KindClassDRefused, env, "class %s refused on realtime channel", env.InteractionClass)
		return fmt.Errorf("realtime: class %s not allowed on realtime channel", env.InteractionClass)
	}
	return nil
}

func (h *Hub) reportEvent(kind synerr.Kind, env Envelope, format string, args ...any) {
	ev := synerr.New(kind, env.TenantID, fmt.Errorf(format, args...))
	select {
	case h.events <- ev:
	default:
	}
}

// markSeen reports whether messageID has been seen before, recording it
// if not. Used for idempotent delivery (spec §4.7 ordering note;
// testable property 8 "replaying a realtime message with the same
// messageId yields no additional side effect").
func (h *Hub) markSeen(messageID string) (alreadySeen bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.seenMessages[messageID]; ok {
		return true
	}
	h.seenMessages[messageID] = time.Now()
	if len(h.seenMessages) > 100_000 {
		h.evictOldestSeenLocked()
	}
	return false
}

func (h *Hub) evictOldestSeenLocked() {
	cutoff := time.Now().Add(-time.Hour)
	for id, t := range h.seenMessages {
		if t.Before(cutoff) {
			delete(h.seenMessages, id)
		}
	}
}

// DirectSend enqueues env for the recipient's active connections; if
// none are connected, it is written to the per-recipient offline queue
// (Class B behavior; spec §4.7 "Direct send").
func (h *Hub) DirectSend(authTenantID string, env Envelope) error {
	if err := h.checkEnvelope(authTenantID, env); err != nil {
		return err
	}
	if h.markSeen(env.MessageID) {
		return nil
	}

	h.mu.Lock()
	recipients := h.byRecipient[recipientKey(env.TenantID, env.RecipientID)]
	targets := make([]*connEntry, 0, len(recipients))
	for _, c := range recipients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		if env.InteractionClass != model.ClassB {
			// Class A has no durable spill (drop); Class C degrades to
			// the sync engine, handled by the caller via classifier.Route
			// before ever reaching DirectSend.
			return nil
		}
		return h.queue.Enqueue(env.TenantID, env.RecipientID, env, h.mutationTTL, h.queueLimit)
	}

	var firstErr error
	for _, t := range targets {
		if err := t.sender.Send(env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeliverQueued drains and sends every message queued for (tenantID,
// userID), used once that user's connection comes back online (spec
// §4.7, §8 S5 "on C7 recovery, delivered exactly once").
func (h *Hub) DeliverQueued(tenantID, userID string) error {
	messages, err := h.queue.Drain(tenantID, userID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	recipients := h.byRecipient[recipientKey(tenantID, userID)]
	targets := make([]*connEntry, 0, len(recipients))
	for _, c := range recipients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, env := range messages {
		for _, t := range targets {
			if err := t.sender.Send(env); err != nil {
				return err
			}
		}
	}
	return nil
}

// RoomBroadcast delivers env to every connection joined to
// {tenantId, roomId}; tenant segregation is enforced by the room key
// namespace (spec §4.7 "Room broadcast").
func (h *Hub) RoomBroadcast(authTenantID string, env Envelope) error {
	if err := h.checkEnvelope(authTenantID, env); err != nil {
		return err
	}
	if h.markSeen(env.MessageID) {
		return nil
	}

	h.mu.Lock()
	members := h.rooms[roomKey(env.TenantID, env.RoomID)]
	targets := make([]*connEntry, 0, len(members))
	for _, c := range members {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var firstErr error
	for _, t := range targets {
		if err := t.sender.Send(env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// JoinAuthorizer is the hook checked before a join is persisted (spec
// §4.7 "checked against an authorization hook"). It is passed to each
// JoinRoom call; a nil authorizer allows the join.
type JoinAuthorizer func(tenantID, userID, roomID string) bool

// JoinRoom adds connID to {tenantId, roomId}'s membership set after
// authorization succeeds.
func (h *Hub) JoinRoom(connID, tenantID, roomID string, authorize JoinAuthorizer) error {
	h.mu.Lock()
	entry, ok := h.conns[connID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("realtime: unknown connection %s", connID)
	}
	if entry.tenantID != tenantID {
		return fmt.Errorf("realtime: tenant mismatch joining room")
	}
	if authorize != nil && !authorize(tenantID, entry.userID, roomID) {
		return fmt.Errorf("realtime: join refused for %s/%s", tenantID, roomID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	key := roomKey(tenantID, roomID)
	if h.rooms[key] == nil {
		h.rooms[key] = make(map[string]*connEntry)
	}
	h.rooms[key][connID] = entry
	return nil
}

// LeaveRoom removes connID from {tenantId, roomId}'s membership set.
func (h *Hub) LeaveRoom(connID, tenantID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[roomKey(tenantID, roomID)], connID)
}

// UpdatePresence records a best-effort, never-queued presence update
// (Class A; spec §4.7 "Presence update").
func (h *Hub) UpdatePresence(tenantID string, p Presence) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presence[recipientKey(tenantID, p.UserID)] = p
}

// GetPresence returns the last known presence for (tenantID, userID).
func (h *Hub) GetPresence(tenantID, userID string) (Presence, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.presence[recipientKey(tenantID, userID)]
	return p, ok
}
