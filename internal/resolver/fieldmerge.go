package resolver

import (
	"encoding/json"
	"fmt"

	"github.com/nimbuscorp/syncengine/internal/model"
)

// fieldTimestampsKey is the reserved payload key carrying each
// scalar field's own last-write timestamp, e.g. the "versionedPerField"
// map in spec §8 scenario S4. A payload lacking this key is treated as
// having no per-field history, so every field defers to the side with
// the later whole-record updatedAt.
const fieldTimestampsKey = "versionedPerField"

// FieldMerge unions per-field, taking the later timestamp per field;
// undefined fields defer to the earlier side (spec §4.6).
type FieldMerge struct{}

func NewFieldMerge() *FieldMerge { return &FieldMerge{} }

func (FieldMerge) Name() string { return "fieldmerge" }

func (FieldMerge) Resolve(in Input) (model.Record, error) {
	localFields, localTS, err := decodeFields(in.Local.Payload)
	if err != nil {
		return model.Record{}, fmt.Errorf("resolver: fieldmerge decode local: %w", err)
	}
	incomingFields, incomingTS, err := decodeFields(in.Incoming.Payload)
	if err != nil {
		return model.Record{}, fmt.Errorf("resolver: fieldmerge decode incoming: %w", err)
	}

	merged := make(map[string]json.RawMessage, len(localFields)+len(incomingFields))
	mergedTS := make(map[string]int64, len(localTS)+len(incomingTS))
	seen := make(map[string]bool)
	for k := range localFields {
		seen[k] = true
	}
	for k := range incomingFields {
		seen[k] = true
	}
	for field := range seen {
		lv, lok := localFields[field]
		rv, rok := incomingFields[field]
		switch {
		case lok && rok:
			lt, lhas := localTS[field]
			rt, rhas := incomingTS[field]
			takeIncoming := rt > lt
			if !lhas && !rhas {
				takeIncoming = in.Incoming.Meta.UpdatedAt.After(in.Local.Meta.UpdatedAt)
			}
			if takeIncoming {
				merged[field], mergedTS[field] = rv, rt
			} else {
				merged[field], mergedTS[field] = lv, lt
			}
		case lok:
			merged[field], mergedTS[field] = lv, localTS[field]
		default:
			merged[field], mergedTS[field] = rv, incomingTS[field]
		}
	}
	merged[fieldTimestampsKey] = mustMarshalTimestamps(mergedTS)

	payload, err := json.Marshal(merged)
	if err != nil {
		return model.Record{}, fmt.Errorf("resolver: fieldmerge encode: %w", err)
	}

	out := in.Incoming
	out.Payload = payload
	out.VectorClock = in.Local.VectorClock.Merge(in.Incoming.VectorClock)
	return out, nil
}

func decodeFields(payload json.RawMessage) (map[string]json.RawMessage, map[string]int64, error) {
	fields := map[string]json.RawMessage{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, nil, err
		}
	}
	ts := map[string]int64{}
	if raw, ok := fields[fieldTimestampsKey]; ok {
		if err := json.Unmarshal(raw, &ts); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", fieldTimestampsKey, err)
		}
		delete(fields, fieldTimestampsKey)
	}
	return fields, ts, nil
}

func mustMarshalTimestamps(ts map[string]int64) json.RawMessage {
	raw, err := json.Marshal(ts)
	if err != nil {
		// ts is a map[string]int64; marshaling it cannot fail.
		panic(err)
	}
	return raw
}
