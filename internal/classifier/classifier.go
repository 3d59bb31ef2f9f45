// Package classifier implements the stateless Interaction Classifier
// (spec §4.8, component C8): given an operation's declared class and the
// realtime channel's health, it decides which path carries the
// operation. It is pure with respect to its inputs — no component
// state is consulted beyond what callers pass in.
package classifier

import "github.com/nimbuscorp/syncengine/internal/model"

// Path names the route an operation is sent down.
type Path string

const (
	// PathRealtime sends the operation through the Realtime Channel's
	// direct fan-out.
	PathRealtime Path = "realtime"
	// PathDurableQueue sends the operation to C7's per-recipient
	// durable offline queue (Class B degraded path).
	PathDurableQueue Path = "durable_queue"
	// PathSyncEngine sends the operation through C2/C3/C5 (Class C
	// degraded path, and the only path for Class D).
	PathSyncEngine Path = "sync_engine"
	// PathDrop discards the operation with no durability (Class A
	// degraded path).
	PathDrop Path = "drop"
	// PathRefused means the operation must never be carried by C7 at
	// all; the caller must not even attempt delivery.
	PathRefused Path = "refused"
)

// Route decides the delivery path for class given whether the realtime
// channel is currently healthy (connected and not rate-limited out).
// This mirrors the degradation matrix in spec §4.7 and the routing
// rules in §4.8:
//
//	(i)   Class D exclusively through C2→C3→C5, never C7.
//	(ii)  Class A exclusively through C7, no durable spill; dropped if
//	      C7 is unhealthy.
//	(iii) Class B via C7 when connected, else a C3-backed durable queue.
//	(iv)  Class C via C7 when connected, else falls back to C5.
func Route(class model.InteractionClass, realtimeHealthy bool) Path {
	switch class {
	case model.ClassD:
		return PathSyncEngine
	case model.ClassA:
		if realtimeHealthy {
			return PathRealtime
		}
		return PathDrop
	case model.ClassB:
		if realtimeHealthy {
			return PathRealtime
		}
		return PathDurableQueue
	case model.ClassC:
		if realtimeHealthy {
			return PathRealtime
		}
		return PathSyncEngine
	default:
		return PathRefused
	}
}

// AllowsRealtimeTransport reports whether class may ever be carried by
// the Realtime Channel, independent of current health. Class D must be
// refused unconditionally (spec §4.7 "any message whose declared...";
// §4.8 "Enforces that Class D messages are refused by C7 regardless of
// caller"; testable property 7). The Realtime Channel itself also
// enforces this refusal directly (defense in depth), rather than relying
// solely on callers routing correctly through Route.
func AllowsRealtimeTransport(class model.InteractionClass) bool {
	return class.Valid() && class != model.ClassD
}
