package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/rostersync/internal/domain/identity"
	"github.com/erp/rostersync/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAccountStore implements identity.AccountStore as a single row in
// derived_records.
type GormAccountStore struct {
	db     *gorm.DB
	name   string
	logger *zap.Logger
}

// NewGormAccountStore creates a store for the named record. An empty name
// uses identity.DefaultRecordName.
func NewGormAccountStore(db *gorm.DB, name string, logger *zap.Logger) *GormAccountStore {
	if name == "" {
		name = identity.DefaultRecordName
	}
	return &GormAccountStore{db: db, name: name, logger: logger}
}

// Load reads the snapshot. A missing row or an undecodable payload yields an
// empty snapshot; only database failures are returned.
func (s *GormAccountStore) Load(ctx context.Context) (*identity.AccountSnapshot, error) {
	var row models.DerivedRecord
	err := s.db.WithContext(ctx).Where("name = ?", s.name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Info("No persisted account store, starting empty", zap.String("record", s.name))
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s record: %w", s.name, err)
	}

	snapshot, err := decodeSnapshot([]byte(row.Payload))
	if err != nil {
		s.logger.Warn("Persisted account store is corrupt, starting empty",
			zap.String("record", s.name),
			zap.Error(err))
		snapshot = emptySnapshot()
	}
	snapshot.Revision = row.Revision
	return snapshot, nil
}

// Save replaces the record with snapshot when the stored revision still
// matches snapshot.Revision. The upsert only updates a row at that revision,
// so a lost race affects no rows and yields identity.ErrStaleSnapshot.
func (s *GormAccountStore) Save(ctx context.Context, snapshot *identity.AccountSnapshot) error {
	if snapshot == nil {
		snapshot = emptySnapshot()
	}
	expected := snapshot.Revision
	row, err := encodeSnapshot(s.name, snapshot, expected+1)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "last_updated", "version", "revision"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: models.DerivedRecord{}.TableName(), Name: "revision"}, Value: expected},
		}},
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to save %s record: %w", s.name, result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Debug("Account store save lost to a newer revision",
			zap.String("record", s.name),
			zap.Int64("revision", expected))
		return identity.ErrStaleSnapshot
	}
	snapshot.Revision = row.Revision
	return nil
}

// InMemoryAccountStore keeps the encoded snapshot in memory. Stored bytes are
// decoded on every Load so callers never share account pointers with it.
type InMemoryAccountStore struct {
	mu       sync.Mutex
	payload  []byte
	revision int64
	saves    int
}

// NewInMemoryAccountStore creates an empty store
func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{}
}

// Load returns the last saved snapshot or an empty one
func (s *InMemoryAccountStore) Load(_ context.Context) (*identity.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := emptySnapshot()
	if s.payload != nil {
		if decoded, err := decodeSnapshot(s.payload); err == nil {
			snapshot = decoded
		}
	}
	snapshot.Revision = s.revision
	return snapshot, nil
}

// Save stores a copy of snapshot if no other save happened since it was loaded
func (s *InMemoryAccountStore) Save(_ context.Context, snapshot *identity.AccountSnapshot) error {
	if snapshot == nil {
		snapshot = emptySnapshot()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot.Revision != s.revision {
		return identity.ErrStaleSnapshot
	}
	row, err := encodeSnapshot(identity.DefaultRecordName, snapshot, s.revision+1)
	if err != nil {
		return err
	}
	s.payload = []byte(row.Payload)
	s.revision = row.Revision
	s.saves++
	snapshot.Revision = row.Revision
	return nil
}

// Saves returns how many times Save succeeded
func (s *InMemoryAccountStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func emptySnapshot() *identity.AccountSnapshot {
	return &identity.AccountSnapshot{
		Accounts: []identity.Account{},
		Version:  identity.SnapshotVersion,
	}
}

func decodeSnapshot(data []byte) (*identity.AccountSnapshot, error) {
	var snapshot identity.AccountSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.Accounts == nil {
		snapshot.Accounts = []identity.Account{}
	}
	return &snapshot, nil
}

// encodeSnapshot builds the row for snapshot as it will look at revision.
// snapshot itself is left untouched until the caller knows the save won.
func encodeSnapshot(name string, snapshot *identity.AccountSnapshot, revision int64) (models.DerivedRecord, error) {
	stored := *snapshot
	if stored.LastUpdated.IsZero() {
		stored.LastUpdated = time.Now().UTC()
	}
	if stored.Version == 0 {
		stored.Version = identity.SnapshotVersion
	}
	stored.Revision = revision
	data, err := json.Marshal(stored)
	if err != nil {
		return models.DerivedRecord{}, fmt.Errorf("failed to encode %s record: %w", name, err)
	}
	return models.DerivedRecord{
		Name:        name,
		Payload:     string(data),
		LastUpdated: stored.LastUpdated,
		Version:     stored.Version,
		Revision:    revision,
	}, nil
}

var (
	_ identity.AccountStore = (*GormAccountStore)(nil)
	_ identity.AccountStore = (*InMemoryAccountStore)(nil)
)
