package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/google/uuid"
)

// wireMessage is the JSON form of a SyncEvent on the replication channel.
// Origin is always "local" on the wire: it describes the sender's view.
type wireMessage struct {
	ID         string          `json:"id"`
	Category   string          `json:"category"`
	EntityKind string          `json:"entityKind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Origin     string          `json:"origin"`
	Sequence   uint64          `json:"sequence"`
	Source     string          `json:"source"`
}

// Encode serializes an event for the replication channel
func Encode(e shared.SyncEvent) ([]byte, error) {
	data, err := json.Marshal(wireMessage{
		ID:         e.ID.String(),
		Category:   string(e.Category),
		EntityKind: string(e.Kind),
		Payload:    e.Payload,
		Timestamp:  e.Timestamp,
		Origin:     string(shared.OriginLocal),
		Sequence:   e.Sequence,
		Source:     e.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sync event: %w", err)
	}
	return data, nil
}

// Decode parses a replication message. The returned event keeps the wire
// origin; the router downgrades it on receipt.
func Decode(data []byte) (shared.SyncEvent, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return shared.SyncEvent{}, fmt.Errorf("failed to decode sync event: %w", err)
	}

	id, err := uuid.Parse(msg.ID)
	if err != nil {
		return shared.SyncEvent{}, fmt.Errorf("invalid event id %q: %w", msg.ID, err)
	}
	category := shared.Category(msg.Category)
	if !category.Valid() {
		return shared.SyncEvent{}, fmt.Errorf("unknown event category %q", msg.Category)
	}
	if msg.Source == "" {
		return shared.SyncEvent{}, fmt.Errorf("event %s has no source context", msg.ID)
	}

	return shared.SyncEvent{
		ID:        id,
		Category:  category,
		Kind:      shared.EntityKind(msg.EntityKind),
		Payload:   msg.Payload,
		Sequence:  msg.Sequence,
		Origin:    shared.Origin(msg.Origin),
		Source:    msg.Source,
		Timestamp: msg.Timestamp,
	}, nil
}
