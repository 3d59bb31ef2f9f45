// Package realtime implements the Realtime Channel (spec §4.7,
// component C7): an optional bidirectional transport for Class A/B/C
// messages, with presence, rooms, direct/room delivery, and
// degradation fallbacks enforced in concert with internal/classifier.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// EventType enumerates the server<->client event names from spec §6.
type EventType string

const (
	EventConnected   EventType = "connected"
	EventMessage     EventType = "message"
	EventMessageAck  EventType = "message_ack"
	EventRoomJoined  EventType = "room_joined"
	EventRoomLeft    EventType = "room_left"
	EventPong        EventType = "pong"
	EventError       EventType = "error"
	EventJoinRoom    EventType = "join_room"
	EventLeaveRoom   EventType = "leave_room"
	EventPresence    EventType = "presence_update"
	EventPing        EventType = "ping"
)

// Envelope is the message shape carried over the channel (spec §4.7).
type Envelope struct {
	MessageID        string                   `json:"messageId"`
	Type             EventType                `json:"type"`
	InteractionClass model.InteractionClass   `json:"interactionClass"`
	TenantID         string                   `json:"tenantId"`
	SenderID         string                   `json:"senderId"`
	RecipientID      string                   `json:"recipientId,omitempty"`
	RoomID           string                   `json:"roomId,omitempty"`
	Payload          json.RawMessage          `json:"payload,omitempty"`
	Timestamp        time.Time                `json:"timestamp"`
}

// PresenceStatus enumerates the Class-A presence states (spec §4.7).
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// Presence is the payload of a presence_update message.
type Presence struct {
	UserID     string         `json:"userId"`
	Status     PresenceStatus `json:"status"`
	LastActive time.Time      `json:"lastActive"`
}
