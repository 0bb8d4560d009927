package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/rostersync/internal/application/identity"
	domain "github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/erp/rostersync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// EmployeeSource lists the roster held by the HR backend
type EmployeeSource interface {
	List(ctx context.Context, force bool) ([]domain.Employee, error)
}

// AccountReconciler rebuilds accounts from a full roster
type AccountReconciler interface {
	ReconcileAll(ctx context.Context, employees []domain.Employee) (*identity.ReconcileReport, error)
}

// ResyncResult describes one full resynchronization
type ResyncResult struct {
	Employees int                       `json:"employees"`
	Accounts  *identity.ReconcileReport `json:"accounts"`
	Duration  time.Duration             `json:"-"`
}

// SyncService drives full resynchronizations: a forced roster fetch, a
// ReconcileAll pass, then a full.resync event so every other context
// rebuilds its derived state from the same snapshot.
type SyncService struct {
	employees EmployeeSource
	accounts  AccountReconciler
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewSyncService creates a new sync service. publisher may be nil.
func NewSyncService(employees EmployeeSource, accounts AccountReconciler, publisher shared.EventPublisher, log *zap.Logger) *SyncService {
	return &SyncService{
		employees: employees,
		accounts:  accounts,
		publisher: publisher,
		logger:    log.Named("sync"),
	}
}

// Resync runs one full resynchronization. The local reconcile happens before
// the event is published, so listeners that also reconcile (including the
// reconciler itself) see a no-op.
func (s *SyncService) Resync(ctx context.Context) (*ResyncResult, error) {
	log := logger.WithLogger(ctx, s.logger)
	start := time.Now()

	employees, err := s.employees.List(ctx, true)
	if err != nil {
		log.Warn("Resync fetch failed", zap.Error(err))
		return nil, err
	}

	report, err := s.accounts.ReconcileAll(ctx, employees)
	if err != nil {
		log.Error("Resync reconcile failed", zap.Error(err))
		return nil, err
	}

	if s.publisher != nil {
		event, err := shared.NewSyncEvent(shared.CategoryFullResync, shared.KindEmployees, employees)
		if err != nil {
			return nil, err
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			return nil, fmt.Errorf("failed to publish resync: %w", err)
		}
	}

	result := &ResyncResult{Employees: len(employees), Accounts: report, Duration: time.Since(start)}
	log.Info("Roster resynchronized",
		zap.Int("employees", result.Employees),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("renamed", report.Renamed),
		zap.Int("deleted", report.Deleted),
		zap.Int("collisions", len(report.Collisions)),
		zap.Duration("duration", result.Duration))
	return result, nil
}
