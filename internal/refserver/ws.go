package refserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/nimbuscorp/syncengine/internal/authctx"
	"github.com/nimbuscorp/syncengine/internal/realtime"
)

// wsSender adapts a server-side *websocket.Conn to realtime.Sender.
type wsSender struct {
	conn *websocket.Conn
}

func (s wsSender) Send(env realtime.Envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, s.conn, env)
}

// handleRealtimeUpgrade accepts the websocket, registers the connection
// with the hub, and dispatches client->server events per spec §6's
// event vocabulary until the socket closes. It stands in for the
// teacher's own realtime surface, none of which this repository
// carries forward (spec §1 Out of scope): the hub and its delivery
// rules are the part under test here, not this handler's own framing.
func (s *Server) handleRealtimeUpgrade(w http.ResponseWriter, r *http.Request) {
	ident, ok := authctx.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_identity", "missing authenticated identity")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("refserver: websocket accept")
		return
	}
	defer conn.CloseNow()

	connID := uuid.NewString()
	sender := wsSender{conn: conn}
	s.Hub.Register(connID, ident.TenantID, ident.UserID, sender)
	defer s.Hub.Unregister(connID)

	if err := sender.Send(realtime.Envelope{
		MessageID: uuid.NewString(), Type: realtime.EventConnected,
		TenantID: ident.TenantID, SenderID: ident.UserID, Timestamp: time.Now().UTC(),
	}); err != nil {
		return
	}

	// Deliver anything queued for this user while it was offline before
	// processing new inbound traffic (spec §4.7, §8 S5).
	if err := s.Hub.DeliverQueued(ident.TenantID, ident.UserID); err != nil {
		log.Warn().Err(err).Str("userId", ident.UserID).Msg("refserver: deliver queued")
	}

	ctx := r.Context()
	for {
		var env realtime.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}
		env.SenderID = ident.UserID
		env.TenantID = ident.TenantID
		s.dispatchInbound(connID, ident, sender, env)
	}
}

func (s *Server) dispatchInbound(connID string, ident authctx.Identity, sender wsSender, env realtime.Envelope) {
	switch env.Type {
	case realtime.EventJoinRoom:
		if err := s.Hub.JoinRoom(connID, ident.TenantID, env.RoomID, nil); err != nil {
			_ = sender.Send(errorEnvelope(ident, err))
			return
		}
		_ = sender.Send(realtime.Envelope{
			MessageID: uuid.NewString(), Type: realtime.EventRoomJoined,
			TenantID: ident.TenantID, SenderID: ident.UserID, RoomID: env.RoomID, Timestamp: time.Now().UTC(),
		})
	case realtime.EventLeaveRoom:
		s.Hub.LeaveRoom(connID, ident.TenantID, env.RoomID)
		_ = sender.Send(realtime.Envelope{
			MessageID: uuid.NewString(), Type: realtime.EventRoomLeft,
			TenantID: ident.TenantID, SenderID: ident.UserID, RoomID: env.RoomID, Timestamp: time.Now().UTC(),
		})
	case realtime.EventPresence:
		var p realtime.Presence
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			_ = sender.Send(errorEnvelope(ident, err))
			return
		}
		p.UserID = ident.UserID
		s.Hub.UpdatePresence(ident.TenantID, p)
	case realtime.EventMessage:
		var err error
		if env.RoomID != "" {
			err = s.Hub.RoomBroadcast(ident.TenantID, env)
		} else {
			err = s.Hub.DirectSend(ident.TenantID, env)
		}
		if err != nil {
			_ = sender.Send(errorEnvelope(ident, err))
			return
		}
		_ = sender.Send(realtime.Envelope{
			MessageID: env.MessageID, Type: realtime.EventMessageAck,
			TenantID: ident.TenantID, SenderID: ident.UserID, RecipientID: env.RecipientID, Timestamp: time.Now().UTC(),
		})
	case realtime.EventPing:
		_ = sender.Send(realtime.Envelope{
			MessageID: uuid.NewString(), Type: realtime.EventPong,
			TenantID: ident.TenantID, SenderID: ident.UserID, Timestamp: time.Now().UTC(),
		})
	}
}

func errorEnvelope(ident authctx.Identity, err error) realtime.Envelope {
	payload, _ := json.Marshal(map[string]string{"message": err.Error()})
	return realtime.Envelope{
		MessageID: uuid.NewString(), Type: realtime.EventError,
		TenantID: ident.TenantID, SenderID: ident.UserID, Payload: payload, Timestamp: time.Now().UTC(),
	}
}
