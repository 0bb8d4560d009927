package shared

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Category is the lifecycle category of a SyncEvent
type Category string

const (
	CategoryCreated    Category = "entity.created"
	CategoryUpdated    Category = "entity.updated"
	CategoryDeleted    Category = "entity.deleted"
	CategoryFullResync Category = "full.resync"
)

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryCreated, CategoryUpdated, CategoryDeleted, CategoryFullResync:
		return true
	}
	return false
}

// EntityKind names the collection an event refers to
type EntityKind string

const (
	KindEmployees EntityKind = "employees"
	KindAccounts  EntityKind = "accounts"
)

// Origin tags where an event entered the local router
type Origin string

const (
	// OriginLocal events were produced inside this execution context and are
	// replicated to siblings.
	OriginLocal Origin = "local"
	// OriginRemote events arrived over the replication channel and are never
	// re-replicated.
	OriginRemote Origin = "remote-tab"
)

// SyncEvent is a transient lifecycle notification dispatched by the router.
// The ID is stable across replication; Sequence is re-stamped by each router.
type SyncEvent struct {
	ID        uuid.UUID       `json:"id"`
	Category  Category        `json:"category"`
	Kind      EntityKind      `json:"entityKind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Sequence  uint64          `json:"sequence"`
	Origin    Origin          `json:"origin"`
	Source    string          `json:"source,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSyncEvent creates a local-origin event. Payload marshalling errors are
// returned so callers never publish a half-built event.
func NewSyncEvent(category Category, kind EntityKind, payload any) (SyncEvent, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = p
	case []byte:
		raw = json.RawMessage(p)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return SyncEvent{}, err
		}
		raw = data
	}

	return SyncEvent{
		ID:        uuid.New(),
		Category:  category,
		Kind:      kind,
		Payload:   raw,
		Origin:    OriginLocal,
		Timestamp: time.Now().UTC(),
	}, nil
}

// IsRemote reports whether the event arrived from a sibling context
func (e SyncEvent) IsRemote() bool {
	return e.Origin == OriginRemote
}

// DecodePayload unmarshals the event payload into v
func (e SyncEvent) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return ErrInvalidInput
	}
	return json.Unmarshal(e.Payload, v)
}
