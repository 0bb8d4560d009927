package roster

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/rostersync/internal/application/identity"
	domain "github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSource struct {
	employees []domain.Employee
	err       error
	forced    []bool
}

func (f *fakeSource) List(_ context.Context, force bool) ([]domain.Employee, error) {
	f.forced = append(f.forced, force)
	if f.err != nil {
		return nil, f.err
	}
	return f.employees, nil
}

type fakeReconciler struct {
	report *identity.ReconcileReport
	err    error
	seen   []domain.Employee
}

func (f *fakeReconciler) ReconcileAll(_ context.Context, employees []domain.Employee) (*identity.ReconcileReport, error) {
	f.seen = employees
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.SyncEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func twoEmployees() []domain.Employee {
	return []domain.Employee{
		{ID: "1", Code: "jdoe", FullName: "John Doe", Status: domain.StatusActive},
		{ID: "2", Code: "asmith", FullName: "Ann Smith", Status: domain.StatusActive},
	}
}

func TestSyncService_Resync(t *testing.T) {
	source := &fakeSource{employees: twoEmployees()}
	reconciler := &fakeReconciler{report: &identity.ReconcileReport{Created: 2}}
	pub := &recordingPublisher{}
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewSyncService(source, reconciler, pub, zap.New(core))

	result, err := svc.Resync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Employees)
	assert.Equal(t, 2, result.Accounts.Created)
	assert.Equal(t, []bool{true}, source.forced)
	assert.Len(t, reconciler.seen, 2)

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, shared.CategoryFullResync, event.Category)
	assert.Equal(t, shared.KindEmployees, event.Kind)

	var payload []domain.Employee
	require.NoError(t, event.DecodePayload(&payload))
	assert.Equal(t, "asmith", payload[1].Code)

	entries := logs.FilterMessage("Roster resynchronized").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["created"])
}

func TestSyncService_ResyncFetchFailure(t *testing.T) {
	source := &fakeSource{err: shared.ErrUnauthenticated}
	reconciler := &fakeReconciler{report: &identity.ReconcileReport{}}
	pub := &recordingPublisher{}
	svc := NewSyncService(source, reconciler, pub, zap.NewNop())

	_, err := svc.Resync(context.Background())

	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
	assert.Nil(t, reconciler.seen)
	assert.Empty(t, pub.events)
}

func TestSyncService_ResyncReconcileFailure(t *testing.T) {
	boom := errors.New("disk full")
	source := &fakeSource{employees: twoEmployees()}
	reconciler := &fakeReconciler{err: boom}
	pub := &recordingPublisher{}
	svc := NewSyncService(source, reconciler, pub, zap.NewNop())

	_, err := svc.Resync(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, pub.events)
}

func TestSyncService_ResyncWithoutPublisher(t *testing.T) {
	svc := NewSyncService(&fakeSource{}, &fakeReconciler{report: &identity.ReconcileReport{}}, nil, zap.NewNop())

	result, err := svc.Resync(context.Background())

	require.NoError(t, err)
	assert.Zero(t, result.Employees)
}
