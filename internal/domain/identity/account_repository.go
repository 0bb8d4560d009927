package identity

import (
	"context"
	"time"

	"github.com/erp/rostersync/internal/domain/shared"
)

// DefaultRecordName is the name of the persisted account record
const DefaultRecordName = "accounts"

// SnapshotVersion is the schema version written with every snapshot
const SnapshotVersion = 1

// AccountSnapshot is the persisted form of the derived account store.
// Revision counts successful saves of the record; it is 0 before the first.
type AccountSnapshot struct {
	Accounts    []Account `json:"accounts"`
	LastUpdated time.Time `json:"lastUpdated"`
	Version     int       `json:"version"`
	Revision    int64     `json:"revision"`
}

// ErrStaleSnapshot is returned by Save when the record was saved by someone
// else after the snapshot's revision was loaded
var ErrStaleSnapshot = shared.NewDomainError("STALE_SNAPSHOT", "Account store was modified concurrently")

// AccountStore persists the derived account store as a single named record
// shared by every execution context.
//
// Load returns an empty snapshot, not an error, when the record is missing
// or cannot be decoded. Save succeeds only while the stored revision still
// equals snapshot.Revision; it then advances snapshot.Revision by one.
// Otherwise it returns ErrStaleSnapshot and stores nothing.
type AccountStore interface {
	Load(ctx context.Context) (*AccountSnapshot, error)
	Save(ctx context.Context, snapshot *AccountSnapshot) error
}
