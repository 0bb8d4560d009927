package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erp/rostersync/internal/domain/identity"
	"github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/erp/rostersync/internal/infrastructure/logger"
	"github.com/erp/rostersync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Outcome describes what reconciling one employee did to its account
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeRenamed   Outcome = "renamed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeCollision Outcome = "collision"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDeleted   Outcome = "deleted"
)

// Change is the result of reconciling a single employee
type Change struct {
	EmployeeID string
	Username   string
	Outcome    Outcome
	// Collision is set when the derived username already belongs to another
	// account. For an existing account the rename is skipped and Outcome
	// reflects the profile copy only.
	Collision *Collision
}

// Collision records a username held by an account not linked to the employee
type Collision struct {
	EmployeeID string `json:"employee_id"`
	Username   string `json:"username"`
	HeldBy     string `json:"held_by"`
}

// ReconcileReport summarizes a ReconcileAll pass
type ReconcileReport struct {
	Created    int         `json:"created"`
	Updated    int         `json:"updated"`
	Renamed    int         `json:"renamed"`
	Deleted    int         `json:"deleted"`
	Unchanged  int         `json:"unchanged"`
	Skipped    int         `json:"skipped"`
	Collisions []Collision `json:"collisions"`
}

// Changed reports whether the pass modified the store
func (r *ReconcileReport) Changed() bool {
	return r.Created+r.Updated+r.Renamed+r.Deleted > 0
}

func (r *ReconcileReport) add(c Change) {
	switch c.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeRenamed:
		r.Renamed++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeDeleted:
		r.Deleted++
	}
	if c.Collision != nil {
		r.Collisions = append(r.Collisions, *c.Collision)
	}
}

// ReconcilerConfig holds the account provisioning settings
type ReconcilerConfig struct {
	// DefaultCredential is given to every auto-created account
	DefaultCredential string
	// AdminUsername seeds a system account on Load when set
	AdminUsername   string
	AdminCredential string
}

// maxCommitAttempts bounds how often a change is reapplied after losing a
// save to another execution context
const maxCommitAttempts = 5

// Reconciler keeps the derived account store consistent with the employee
// roster. It is a router component: employee lifecycle events drive it, and it
// publishes account events for the changes it makes.
//
// The store is shared by every execution context. The maps below are a cache
// of the snapshot at revision; every change is applied to a fresh copy and
// saved with a revision check.
type Reconciler struct {
	mu          sync.Mutex
	byID        map[string]*identity.Account
	byUsername  map[string]*identity.Account
	byEmployee  map[string]*identity.Account
	revision    int64
	loaded      bool
	defaultHash string

	store     identity.AccountStore
	publisher shared.EventPublisher
	config    ReconcilerConfig
	metrics   *telemetry.SyncMetrics
	logger    *zap.Logger
}

// ReconcilerOption configures a Reconciler
type ReconcilerOption func(*Reconciler)

// WithPublisher sets where account events are published
func WithPublisher(p shared.EventPublisher) ReconcilerOption {
	return func(r *Reconciler) { r.publisher = p }
}

// WithMetrics records reconciliation outcomes
func WithMetrics(m *telemetry.SyncMetrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// NewReconciler creates an empty reconciler. Call Load before use.
func NewReconciler(store identity.AccountStore, cfg ReconcilerConfig, log *zap.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		byID:       make(map[string]*identity.Account),
		byUsername: make(map[string]*identity.Account),
		byEmployee: make(map[string]*identity.Account),
		store:      store,
		config:     cfg,
		logger:     log.Named("reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the in-memory accounts with the persisted snapshot and seeds
// the configured admin account when it is missing.
func (r *Reconciler) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loaded = false
	if err := r.refreshLocked(ctx); err != nil {
		return err
	}

	seeded := false
	err := r.commitLocked(ctx, func() (bool, error) {
		var err error
		seeded, err = r.seedAdminLocked()
		return seeded, err
	})
	if err != nil {
		return err
	}

	r.logger.Info("Accounts loaded",
		zap.Int("accounts", len(r.byID)),
		zap.Int64("revision", r.revision),
		zap.Bool("admin_seeded", seeded))
	return nil
}

// Refresh reloads the accounts when another execution context saved a newer
// snapshot.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshLocked(ctx)
}

func (r *Reconciler) refreshLocked(ctx context.Context) error {
	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	if r.loaded && snapshot.Revision == r.revision {
		return nil
	}
	if r.loaded {
		r.logger.Debug("Accounts changed by another context, reloading",
			zap.Int64("from_revision", r.revision),
			zap.Int64("to_revision", snapshot.Revision))
	}
	r.replaceLocked(snapshot)
	return nil
}

func (r *Reconciler) replaceLocked(snapshot *identity.AccountSnapshot) {
	r.byID = make(map[string]*identity.Account, len(snapshot.Accounts))
	r.byUsername = make(map[string]*identity.Account, len(snapshot.Accounts))
	r.byEmployee = make(map[string]*identity.Account, len(snapshot.Accounts))
	for i := range snapshot.Accounts {
		a := snapshot.Accounts[i].Clone()
		a.Username = identity.NormalizeUsername(a.Username)
		if a.Username == "" {
			r.logger.Warn("Dropping persisted account without username", zap.String("account_id", a.ID.String()))
			continue
		}
		if _, dup := r.byUsername[a.Username]; dup {
			r.logger.Warn("Dropping persisted account with duplicate username", zap.String("username", a.Username))
			continue
		}
		if !a.IsSystem() {
			if _, dup := r.byEmployee[*a.EmployeeID]; dup {
				r.logger.Warn("Dropping second persisted account for employee",
					zap.String("employee_id", *a.EmployeeID), zap.String("username", a.Username))
				continue
			}
		}
		r.index(a)
	}
	r.revision = snapshot.Revision
	r.loaded = true
}

// commitLocked applies a change to the current snapshot and saves it. When
// another context saved first, the accounts are reloaded and apply runs
// again, so apply must recompute all of its results on every call. A store
// that cannot be read leaves apply working on the cached accounts.
func (r *Reconciler) commitLocked(ctx context.Context, apply func() (bool, error)) error {
	for attempt := 1; ; attempt++ {
		if err := r.refreshLocked(ctx); err != nil {
			logger.WithLogger(ctx, r.logger).Warn("Using cached accounts", zap.Error(err))
		}
		changed, err := apply()
		if err != nil || !changed {
			return err
		}
		err = r.saveLocked(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, identity.ErrStaleSnapshot) || attempt == maxCommitAttempts {
			return fmt.Errorf("%w: %w", errNotPersisted, err)
		}
		logger.WithLogger(ctx, r.logger).Debug("Account snapshot saved elsewhere, reapplying", zap.Int("attempt", attempt))
	}
}

var errNotPersisted = errors.New("failed to persist accounts")

func (r *Reconciler) seedAdminLocked() (bool, error) {
	username := identity.NormalizeUsername(r.config.AdminUsername)
	if username == "" {
		return false, nil
	}
	if _, ok := r.byUsername[username]; ok {
		return false, nil
	}
	admin, err := identity.NewSystemAccount(username, r.config.AdminCredential, string(roster.RoleAdmin))
	if err != nil {
		return false, fmt.Errorf("failed to seed admin account: %w", err)
	}
	r.index(admin)
	return true, nil
}

// EnsureAccountFor creates or updates the account owned by employee. A
// username held by another account yields shared.ErrReconciliationCollision;
// the store is left untouched for that employee.
func (r *Reconciler) EnsureAccountFor(ctx context.Context, employee roster.Employee) (Change, error) {
	var change Change
	var event *shared.SyncEvent
	r.mu.Lock()
	err := r.commitLocked(ctx, func() (bool, error) {
		var err error
		change, event, err = r.ensureLocked(ctx, employee)
		return event != nil, err
	})
	r.mu.Unlock()
	if errors.Is(err, errNotPersisted) {
		logger.WithLogger(ctx, r.logger).Error("Failed to persist accounts", zap.Error(err))
		err = nil
	}

	r.record(ctx, change)
	if event != nil {
		r.publish(ctx, *event)
	}
	if err != nil {
		return change, err
	}
	if change.Collision != nil {
		return change, shared.ErrReconciliationCollision
	}
	return change, nil
}

// ReconcileAll ensures an account for every listed employee and deletes the
// non-system accounts whose owner is absent. An empty roster never prunes.
func (r *Reconciler) ReconcileAll(ctx context.Context, employees []roster.Employee) (*ReconcileReport, error) {
	log := logger.WithLogger(ctx, r.logger)
	var report *ReconcileReport
	var events []shared.SyncEvent
	var changes []Change

	r.mu.Lock()
	saveErr := r.commitLocked(ctx, func() (bool, error) {
		report, events, changes = r.reconcileAllLocked(ctx, employees)
		return report.Changed(), nil
	})
	r.mu.Unlock()

	for _, c := range changes {
		r.record(ctx, c)
	}
	r.publish(ctx, events...)

	log.Info("Accounts reconciled",
		zap.Int("employees", len(employees)),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("renamed", report.Renamed),
		zap.Int("deleted", report.Deleted),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("skipped", report.Skipped),
		zap.Int("collisions", len(report.Collisions)))

	if saveErr != nil {
		return report, saveErr
	}
	return report, nil
}

func (r *Reconciler) reconcileAllLocked(ctx context.Context, employees []roster.Employee) (*ReconcileReport, []shared.SyncEvent, []Change) {
	log := logger.WithLogger(ctx, r.logger)
	report := &ReconcileReport{Collisions: []Collision{}}
	var events []shared.SyncEvent
	var changes []Change

	seen := make(map[string]struct{}, len(employees))
	for _, e := range employees {
		change, event, err := r.ensureLocked(ctx, e)
		if err != nil {
			log.Warn("Skipping employee during reconciliation", zap.String("employee_id", e.ID.String()), zap.Error(err))
			continue
		}
		seen[e.ID.String()] = struct{}{}
		report.add(change)
		changes = append(changes, change)
		if event != nil {
			events = append(events, *event)
		}
	}

	if len(employees) == 0 {
		if len(r.byEmployee) > 0 {
			log.Warn("Empty roster received, keeping existing accounts", zap.Int("accounts", len(r.byEmployee)))
		}
	} else {
		for _, employeeID := range r.sortedEmployeeIDs() {
			if _, ok := seen[employeeID]; ok {
				continue
			}
			change, event := r.removeLocked(employeeID)
			report.add(change)
			changes = append(changes, change)
			if event != nil {
				events = append(events, *event)
			}
		}
	}

	return report, events, changes
}

// RemoveAccountFor deletes the account owned by employeeID. System accounts
// are never owned and so never removed. It reports whether an account existed.
func (r *Reconciler) RemoveAccountFor(ctx context.Context, employeeID string) (bool, error) {
	var change Change
	var event *shared.SyncEvent
	r.mu.Lock()
	saveErr := r.commitLocked(ctx, func() (bool, error) {
		change, event = r.removeLocked(employeeID)
		return event != nil, nil
	})
	r.mu.Unlock()

	if event == nil {
		return false, nil
	}
	r.record(ctx, change)
	r.publish(ctx, *event)
	if saveErr != nil {
		return true, saveErr
	}
	return true, nil
}

// ensureLocked reconciles one employee. event is nil when nothing changed.
func (r *Reconciler) ensureLocked(ctx context.Context, e roster.Employee) (Change, *shared.SyncEvent, error) {
	employeeID := e.ID.String()
	if employeeID == "" {
		return Change{}, nil, fmt.Errorf("%w: employee without id", shared.ErrInvalidInput)
	}
	log := logger.WithLogger(ctx, r.logger).With(zap.String("employee_id", employeeID))
	desired := identity.DeriveUsername(e.Code, employeeID)

	acct, exists := r.byEmployee[employeeID]
	if !exists {
		if e.IsTerminated() {
			return Change{EmployeeID: employeeID, Outcome: OutcomeSkipped}, nil, nil
		}
		if desired == "" {
			return Change{}, nil, fmt.Errorf("%w: no usable username for employee %s", shared.ErrInvalidInput, employeeID)
		}
		if holder, taken := r.byUsername[desired]; taken {
			collision := &Collision{EmployeeID: employeeID, Username: desired, HeldBy: holder.ID.String()}
			log.Warn("Account reconciliation collision, employee left without account",
				zap.String("username", desired),
				zap.String("held_by", collision.HeldBy),
				zap.Error(shared.ErrReconciliationCollision))
			return Change{EmployeeID: employeeID, Username: desired, Outcome: OutcomeCollision, Collision: collision}, nil, nil
		}

		hash, err := r.defaultCredentialHash()
		if err != nil {
			return Change{}, nil, err
		}
		created, err := identity.NewEmployeeAccountWithHash(e, desired, hash)
		if err != nil {
			return Change{}, nil, err
		}
		r.index(created)
		log.Info("Account created", zap.String("username", created.Username))
		event, err := accountEvent(shared.CategoryCreated, created)
		return Change{EmployeeID: employeeID, Username: created.Username, Outcome: OutcomeCreated}, event, err
	}

	change := Change{EmployeeID: employeeID, Username: acct.Username, Outcome: OutcomeUnchanged}
	if acct.ApplyProfile(identity.ProfileOf(e)) {
		change.Outcome = OutcomeUpdated
	}

	if desired != "" && desired != acct.Username {
		if holder, taken := r.byUsername[desired]; taken && holder != acct {
			change.Collision = &Collision{EmployeeID: employeeID, Username: desired, HeldBy: holder.ID.String()}
			log.Warn("Username change conflicts with another account, keeping current username",
				zap.String("username", acct.Username),
				zap.String("wanted", desired),
				zap.String("held_by", change.Collision.HeldBy),
				zap.Error(shared.ErrReconciliationCollision))
		} else {
			delete(r.byUsername, acct.Username)
			acct.Rename(desired)
			r.byUsername[acct.Username] = acct
			change.Username = acct.Username
			change.Outcome = OutcomeRenamed
		}
	}

	if change.Outcome == OutcomeUnchanged {
		return change, nil, nil
	}
	log.Info("Account updated", zap.String("username", acct.Username), zap.String("outcome", string(change.Outcome)))
	event, err := accountEvent(shared.CategoryUpdated, acct)
	return change, event, err
}

func (r *Reconciler) removeLocked(employeeID string) (Change, *shared.SyncEvent) {
	acct, ok := r.byEmployee[employeeID]
	if !ok {
		return Change{EmployeeID: employeeID, Outcome: OutcomeUnchanged}, nil
	}
	r.unindex(acct)
	r.logger.Info("Account deleted", zap.String("employee_id", employeeID), zap.String("username", acct.Username))
	event, err := accountEvent(shared.CategoryDeleted, acct)
	if err != nil {
		r.logger.Error("Failed to build account event", zap.Error(err))
	}
	return Change{EmployeeID: employeeID, Username: acct.Username, Outcome: OutcomeDeleted}, event
}

func (r *Reconciler) defaultCredentialHash() (string, error) {
	if r.defaultHash != "" {
		return r.defaultHash, nil
	}
	hash, err := identity.HashCredential(r.config.DefaultCredential)
	if err != nil {
		return "", fmt.Errorf("default credential: %w", err)
	}
	r.defaultHash = hash
	return hash, nil
}

// Authenticate verifies a username and credential. All failures share
// shared.PublicAuthFailureMessage.
func (r *Reconciler) Authenticate(ctx context.Context, username, credential string) (identity.AccountView, error) {
	log := logger.WithLogger(ctx, r.logger).With(zap.String("username", identity.NormalizeUsername(username)))

	snapshot, ok := r.freshLookup(ctx, username)
	if !ok {
		log.Warn("Login for unknown account")
		return identity.AccountView{}, shared.ErrAccountNotFound
	}
	if !snapshot.VerifyCredential(credential) {
		log.Warn("Login with wrong credential")
		return identity.AccountView{}, shared.ErrCredentialMismatch
	}
	if !snapshot.CanLogin() {
		log.Warn("Login for inactive account", zap.String("status", string(snapshot.Status)))
		return identity.AccountView{}, shared.ErrAccountInactive
	}

	var view identity.AccountView
	r.mu.Lock()
	err := r.commitLocked(ctx, func() (bool, error) {
		live, ok := r.byID[snapshot.ID.String()]
		if !ok {
			return false, shared.ErrAccountNotFound
		}
		if live.PasswordHash != snapshot.PasswordHash {
			return false, shared.ErrCredentialMismatch
		}
		live.RecordLogin()
		view = live.View()
		return true, nil
	})
	r.mu.Unlock()
	if errors.Is(err, errNotPersisted) {
		log.Error("Failed to persist login time", zap.Error(err))
	} else if err != nil {
		log.Warn("Credential changed during login", zap.Error(err))
		return identity.AccountView{}, err
	}

	log.Info("Login succeeded")
	return view, nil
}

// ChangeCredential replaces an account's credential after verifying the
// current one, and clears the must-change flag.
func (r *Reconciler) ChangeCredential(ctx context.Context, username, oldCredential, newCredential string) error {
	return r.updateCredential(ctx, username, func(a *identity.Account) error {
		return a.ChangeCredential(oldCredential, newCredential)
	})
}

// ResetCredential sets a new credential without checking the old one. The
// caller is responsible for authorizing the reset.
func (r *Reconciler) ResetCredential(ctx context.Context, username, newCredential string, forceChange bool) error {
	return r.updateCredential(ctx, username, func(a *identity.Account) error {
		return a.ResetCredential(newCredential, forceChange)
	})
}

// updateCredential runs mutate, which hashes, on a fresh copy outside the
// lock and applies the result only if the stored hash did not move meanwhile,
// in this context or any other.
func (r *Reconciler) updateCredential(ctx context.Context, username string, mutate func(*identity.Account) error) error {
	log := logger.WithLogger(ctx, r.logger).With(zap.String("username", identity.NormalizeUsername(username)))

	working, ok := r.freshLookup(ctx, username)
	if !ok {
		return shared.ErrAccountNotFound
	}
	previousHash := working.PasswordHash
	if err := mutate(working); err != nil {
		return err
	}

	var event *shared.SyncEvent
	var eventErr error
	r.mu.Lock()
	err := r.commitLocked(ctx, func() (bool, error) {
		live, ok := r.byID[working.ID.String()]
		if !ok {
			return false, shared.ErrAccountNotFound
		}
		if live.PasswordHash != previousHash {
			return false, shared.ErrCredentialMismatch
		}
		live.PasswordHash = working.PasswordHash
		live.PasswordChangedAt = working.PasswordChangedAt
		live.MustChangePassword = working.MustChangePassword
		live.UpdatedAt = working.UpdatedAt
		event, eventErr = accountEvent(shared.CategoryUpdated, live)
		return true, nil
	})
	r.mu.Unlock()

	if errors.Is(err, errNotPersisted) {
		log.Error("Failed to persist credential change", zap.Error(err))
		return err
	}
	if err != nil {
		return err
	}
	if eventErr != nil {
		log.Error("Failed to build account event", zap.Error(eventErr))
	} else {
		r.publish(ctx, *event)
	}
	log.Info("Credential updated", zap.Bool("must_change_password", working.MustChangePassword))
	return nil
}

// Accounts returns every account ordered by username
func (r *Reconciler) Accounts() []identity.AccountView {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]identity.AccountView, 0, len(r.byUsername))
	for _, a := range r.sortedLocked() {
		out = append(out, a.View())
	}
	return out
}

// AccountByUsername looks an account up by its login name
func (r *Reconciler) AccountByUsername(username string) (identity.AccountView, bool) {
	a, ok := r.lookup(username)
	if !ok {
		return identity.AccountView{}, false
	}
	return a.View(), true
}

// AccountByID looks an account up by its id
func (r *Reconciler) AccountByID(id string) (identity.AccountView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return identity.AccountView{}, false
	}
	return a.View(), true
}

// AccountForEmployee returns the account owned by an employee
func (r *Reconciler) AccountForEmployee(employeeID string) (identity.AccountView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byEmployee[employeeID]
	if !ok {
		return identity.AccountView{}, false
	}
	return a.View(), true
}

// lookup returns a copy of the account for username
func (r *Reconciler) lookup(username string) (*identity.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(username)
}

// freshLookup is lookup after catching up with the store, for reads that
// check credential material another context may have changed.
func (r *Reconciler) freshLookup(ctx context.Context, username string) (*identity.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refreshLocked(ctx); err != nil {
		logger.WithLogger(ctx, r.logger).Warn("Using cached accounts", zap.Error(err))
	}
	return r.lookupLocked(username)
}

func (r *Reconciler) lookupLocked(username string) (*identity.Account, bool) {
	a, ok := r.byUsername[identity.NormalizeUsername(username)]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

func (r *Reconciler) index(a *identity.Account) {
	r.byID[a.ID.String()] = a
	r.byUsername[a.Username] = a
	if !a.IsSystem() {
		r.byEmployee[*a.EmployeeID] = a
	}
}

func (r *Reconciler) unindex(a *identity.Account) {
	delete(r.byID, a.ID.String())
	delete(r.byUsername, a.Username)
	if !a.IsSystem() {
		delete(r.byEmployee, *a.EmployeeID)
	}
}

func (r *Reconciler) sortedLocked() []*identity.Account {
	out := make([]*identity.Account, 0, len(r.byUsername))
	for _, a := range r.byUsername {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (r *Reconciler) sortedEmployeeIDs() []string {
	ids := make([]string, 0, len(r.byEmployee))
	for id := range r.byEmployee {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Reconciler) saveLocked(ctx context.Context) error {
	accounts := r.sortedLocked()
	snapshot := &identity.AccountSnapshot{
		Accounts:    make([]identity.Account, 0, len(accounts)),
		LastUpdated: time.Now().UTC(),
		Version:     identity.SnapshotVersion,
		Revision:    r.revision,
	}
	for _, a := range accounts {
		snapshot.Accounts = append(snapshot.Accounts, *a.Clone())
	}
	if err := r.store.Save(ctx, snapshot); err != nil {
		return err
	}
	r.revision = snapshot.Revision
	return nil
}

func (r *Reconciler) record(ctx context.Context, c Change) {
	if c.Outcome == "" || c.Outcome == OutcomeUnchanged {
		if c.Collision != nil {
			r.metrics.AccountReconciled(ctx, string(OutcomeCollision))
		}
		return
	}
	r.metrics.AccountReconciled(ctx, string(c.Outcome))
}

// publish sends account events. It must be called without r.mu held: the
// router may deliver them synchronously.
func (r *Reconciler) publish(ctx context.Context, events ...shared.SyncEvent) {
	if r.publisher == nil || len(events) == 0 {
		return
	}
	if err := r.publisher.Publish(ctx, events...); err != nil {
		logger.WithLogger(ctx, r.logger).Error("Failed to publish account events", zap.Error(err))
	}
}

func accountEvent(category shared.Category, a *identity.Account) (*shared.SyncEvent, error) {
	e, err := shared.NewSyncEvent(category, shared.KindAccounts, a.View())
	if err != nil {
		return nil, fmt.Errorf("failed to build account event: %w", err)
	}
	return &e, nil
}

// OnEntityCreated provisions an account for a new employee
func (r *Reconciler) OnEntityCreated(ctx context.Context, event shared.SyncEvent) error {
	return r.onEmployee(ctx, event)
}

// OnEntityUpdated copies profile changes; an unknown employee is provisioned
func (r *Reconciler) OnEntityUpdated(ctx context.Context, event shared.SyncEvent) error {
	return r.onEmployee(ctx, event)
}

// OnEntityDeleted removes the departed employee's account
func (r *Reconciler) OnEntityDeleted(ctx context.Context, event shared.SyncEvent) error {
	if event.Kind == shared.KindAccounts {
		return r.onAccounts(ctx, event)
	}
	if event.Kind != shared.KindEmployees {
		return nil
	}
	var ref roster.Ref
	if err := event.DecodePayload(&ref); err != nil {
		return fmt.Errorf("decode deleted employee: %w", err)
	}
	if ref.ID == "" {
		return fmt.Errorf("%w: deleted employee without id", shared.ErrInvalidInput)
	}
	_, err := r.RemoveAccountFor(ctx, ref.ID.String())
	if err != nil {
		logger.WithLogger(ctx, r.logger).Error("Account removal not persisted", zap.Error(err))
	}
	return nil
}

// OnFullResync reconciles against a complete employee collection
func (r *Reconciler) OnFullResync(ctx context.Context, event shared.SyncEvent) error {
	if event.Kind != shared.KindEmployees {
		return nil
	}
	var employees []roster.Employee
	if err := event.DecodePayload(&employees); err != nil {
		return fmt.Errorf("decode employee collection: %w", err)
	}
	if _, err := r.ReconcileAll(ctx, employees); err != nil {
		logger.WithLogger(ctx, r.logger).Error("Resync not persisted", zap.Error(err))
	}
	return nil
}

// onAccounts catches up with account changes a sibling context saved. Local
// account events were produced here and are already applied.
func (r *Reconciler) onAccounts(ctx context.Context, event shared.SyncEvent) error {
	if !event.IsRemote() {
		return nil
	}
	return r.Refresh(ctx)
}

func (r *Reconciler) onEmployee(ctx context.Context, event shared.SyncEvent) error {
	if event.Kind == shared.KindAccounts {
		return r.onAccounts(ctx, event)
	}
	if event.Kind != shared.KindEmployees {
		return nil
	}
	var employee roster.Employee
	if err := event.DecodePayload(&employee); err != nil {
		return fmt.Errorf("decode employee: %w", err)
	}
	_, err := r.EnsureAccountFor(ctx, employee)
	if errors.Is(err, shared.ErrReconciliationCollision) {
		// logged where detected; the employee stays without an account
		return nil
	}
	return err
}

var (
	_ shared.EntityCreatedListener = (*Reconciler)(nil)
	_ shared.EntityUpdatedListener = (*Reconciler)(nil)
	_ shared.EntityDeletedListener = (*Reconciler)(nil)
	_ shared.ResyncListener        = (*Reconciler)(nil)
)
