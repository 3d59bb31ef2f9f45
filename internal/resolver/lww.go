package resolver

import "github.com/nimbuscorp/syncengine/internal/model"

// LastWriteWins selects the side with the higher updatedAt, breaking
// ties deterministically by dominant clientId (spec §4.6).
type LastWriteWins struct{}

func NewLastWriteWins() *LastWriteWins { return &LastWriteWins{} }

func (LastWriteWins) Name() string { return "lastwritewins" }

func (LastWriteWins) Resolve(in Input) (model.Record, error) {
	if winner := pickByTimestamp(in, true); winner != nil {
		return *winner, nil
	}
	return in.Incoming, nil
}

// FirstWriteWins mirrors LastWriteWins, selecting the earlier side.
type FirstWriteWins struct{}

func NewFirstWriteWins() *FirstWriteWins { return &FirstWriteWins{} }

func (FirstWriteWins) Name() string { return "firstwritewins" }

func (FirstWriteWins) Resolve(in Input) (model.Record, error) {
	if winner := pickByTimestamp(in, false); winner != nil {
		return *winner, nil
	}
	return in.Local, nil
}

// pickByTimestamp returns a pointer to the winning side (local or
// incoming) per later==true/false, or nil if the two sides are
// genuinely tied and the caller should apply its own default.
func pickByTimestamp(in Input, later bool) *model.Record {
	l, r := in.Local.Meta.UpdatedAt, in.Incoming.Meta.UpdatedAt
	switch {
	case l.After(r):
		if later {
			return &in.Local
		}
		return &in.Incoming
	case r.After(l):
		if later {
			return &in.Incoming
		}
		return &in.Local
	default:
		// Equal timestamps: break the tie deterministically by dominant
		// clientId rather than arbitrarily preferring one side.
		localClient := dominantClient(in.Local.VectorClock)
		incomingClient := dominantClient(in.Incoming.VectorClock)
		if localClient == incomingClient {
			return nil
		}
		if (localClient > incomingClient) == later {
			return &in.Local
		}
		return &in.Incoming
	}
}
