package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/erp/rostersync/internal/infrastructure/logger"
	"github.com/erp/rostersync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errChannelClosed = errors.New("replication channel closed")

// State is the router lifecycle state
type State int32

const (
	StateUninitialized State = iota
	StateWaiting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting-for-dependencies"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

type dispatchItem struct {
	ctx   context.Context
	event shared.SyncEvent
}

// Router fans sync events out to the components registered in this execution
// context and replicates locally originated events to sibling contexts.
//
// Dispatch is serialized: one goroutine drains the queue at a time and an
// event published while a fan-out is running is appended to the queue, so
// listeners never re-enter the router and delivery within a context is FIFO.
// Before MarkReady, published events are held and flushed in order.
type Router struct {
	contextID string
	registry  *Registry
	channel   ReplicationChannel
	seen      shared.IdempotencyStore
	dedupeTTL time.Duration
	logger    *zap.Logger
	metrics   *telemetry.SyncMetrics

	mu       sync.Mutex
	state    State
	pending  []dispatchItem
	queue    []dispatchItem
	draining bool
	sequence uint64
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithContextID sets the execution context id used as the event source.
// A random id is generated otherwise.
func WithContextID(id string) RouterOption {
	return func(r *Router) {
		if id != "" {
			r.contextID = id
		}
	}
}

// WithReplication enables cross-context replication over ch
func WithReplication(ch ReplicationChannel) RouterOption {
	return func(r *Router) {
		r.channel = ch
	}
}

// WithIdempotencyStore drops replicated events whose id was already seen
func WithIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) RouterOption {
	return func(r *Router) {
		r.seen = store
		if ttl > 0 {
			r.dedupeTTL = ttl
		}
	}
}

// WithRouterMetrics records router counters
func WithRouterMetrics(m *telemetry.SyncMetrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// NewRouter creates a router in the uninitialized state
func NewRouter(log *zap.Logger, opts ...RouterOption) *Router {
	r := &Router{
		contextID: uuid.NewString(),
		registry:  NewRegistry(),
		dedupeTTL: shared.DefaultDedupeTTL,
		logger:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.Named("router").With(zap.String("context_id", r.contextID))
	return r
}

// ContextID returns this router's execution context id
func (r *Router) ContextID() string {
	return r.contextID
}

// State returns the current lifecycle state
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Register adds a component with explicit bindings. Registering an existing
// name replaces the previous registration.
func (r *Router) Register(name string, instance any, bindings shared.Bindings) {
	if bindings == nil {
		bindings = shared.Bindings{}
	}
	replaced := r.registry.Register(Registration{Name: name, Instance: instance, Bindings: bindings})
	r.logger.Debug("Component registered",
		zap.String("component", name),
		zap.Bool("replaced", replaced),
		zap.Int("categories", len(bindings)))
}

// RegisterComponent registers instance with bindings derived from the typed
// listener interfaces it implements.
func (r *Router) RegisterComponent(name string, instance any) {
	r.Register(name, instance, shared.BindingsFor(instance))
}

// Unregister removes a component
func (r *Router) Unregister(name string) {
	if r.registry.Unregister(name) {
		r.logger.Debug("Component unregistered", zap.String("component", name))
	}
}

// Components returns the registered component names in order
func (r *Router) Components() []string {
	return r.registry.Names()
}

// Start subscribes to the replication channel and moves the router to
// waiting-for-dependencies. Calling Start twice is an error.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateUninitialized {
		r.mu.Unlock()
		return fmt.Errorf("router already started (state %s)", r.state)
	}
	r.state = StateWaiting
	r.mu.Unlock()

	if r.channel != nil {
		if err := r.channel.Subscribe(ctx, r.receive); err != nil {
			return fmt.Errorf("failed to subscribe to replication channel: %w", err)
		}
	}
	r.logger.Info("Router started", zap.Bool("replication", r.channel != nil))
	return nil
}

// MarkReady moves the router to ready and flushes events held while waiting,
// in publish order.
func (r *Router) MarkReady(ctx context.Context) {
	r.mu.Lock()
	if r.state == StateReady {
		r.mu.Unlock()
		return
	}
	r.state = StateReady
	held := len(r.pending)
	for _, item := range r.pending {
		r.enqueueLocked(item)
	}
	r.pending = nil
	r.mu.Unlock()

	r.logger.Info("Router ready", zap.Int("flushed", held))
	r.drain()
}

// ReadyWhen marks the router ready once every signal channel is closed. It
// returns immediately; if ctx ends first the router stays waiting.
func (r *Router) ReadyWhen(ctx context.Context, signals ...<-chan struct{}) {
	go func() {
		for _, sig := range signals {
			select {
			case <-sig:
			case <-ctx.Done():
				r.logger.Warn("Router readiness abandoned", zap.Error(ctx.Err()))
				return
			}
		}
		r.MarkReady(ctx)
	}()
}

// Publish dispatches events to local components and, for local-origin
// events, to sibling contexts. Events are validated up front; an invalid
// category rejects the whole batch.
func (r *Router) Publish(ctx context.Context, events ...shared.SyncEvent) error {
	for _, e := range events {
		if !e.Category.Valid() {
			return fmt.Errorf("%w: unknown event category %q", shared.ErrInvalidInput, e.Category)
		}
	}

	r.mu.Lock()
	for _, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.Origin == "" {
			e.Origin = shared.OriginLocal
		}
		if e.Origin == shared.OriginLocal && e.Source == "" {
			e.Source = r.contextID
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		item := dispatchItem{ctx: ctx, event: e}
		if r.state != StateReady {
			r.pending = append(r.pending, item)
			continue
		}
		r.enqueueLocked(item)
	}
	r.mu.Unlock()

	r.drain()
	return nil
}

func (r *Router) enqueueLocked(item dispatchItem) {
	r.sequence++
	item.event.Sequence = r.sequence
	r.queue = append(r.queue, item)
}

// drain delivers queued events until the queue is empty. Only one goroutine
// drains at a time; others return after enqueueing.
func (r *Router) drain() {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return
	}
	r.draining = true

	for len(r.queue) > 0 {
		item := r.queue[0]
		r.queue[0] = dispatchItem{}
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.dispatch(item.ctx, item.event)

		r.mu.Lock()
	}
	r.queue = nil
	r.draining = false
	r.mu.Unlock()
}

func (r *Router) dispatch(ctx context.Context, e shared.SyncEvent) {
	log := logger.WithLogger(ctx, r.logger).With(logger.EventFields(e)...)
	log.Debug("Dispatching sync event")
	r.metrics.EventPublished(ctx, e)

	for _, reg := range r.registry.Snapshot() {
		for _, l := range reg.Bindings.For(e.Category) {
			if err := r.invoke(ctx, l, e); err != nil {
				r.metrics.ListenerFailed(ctx, reg.Name, e)
				log.Error("Listener failed",
					zap.String("component", reg.Name),
					zap.Error(err))
			}
		}
	}

	if e.Origin == shared.OriginLocal && r.channel != nil {
		r.replicate(ctx, e, log)
	}
}

func (r *Router) invoke(ctx context.Context, l shared.Listener, e shared.SyncEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panicked: %v", rec)
		}
	}()
	return l.HandleSync(ctx, e)
}

func (r *Router) replicate(ctx context.Context, e shared.SyncEvent, log *logger.ContextLogger) {
	data, err := Encode(e)
	if err != nil {
		log.Error("Failed to encode event for replication", zap.Error(err))
		return
	}
	if err := r.channel.Publish(ctx, data); err != nil {
		// Siblings converge on their next full resync.
		log.Warn("Failed to replicate event", zap.Error(err))
		return
	}
	r.metrics.EventReplicated(ctx, e)
}

// receive handles a message from the replication channel
func (r *Router) receive(ctx context.Context, data []byte) {
	e, err := Decode(data)
	if err != nil {
		r.logger.Warn("Discarding malformed replication message", zap.Error(err))
		r.metrics.EventDropped(ctx, "malformed")
		return
	}
	if e.Source == r.contextID {
		r.metrics.EventDropped(ctx, "self_echo")
		return
	}
	if r.seen != nil {
		fresh, err := r.seen.MarkProcessed(ctx, e.ID.String(), r.dedupeTTL)
		if err != nil {
			// Without the store we cannot tell; applying twice is safe
			// because every listener is idempotent.
			r.logger.Warn("Idempotency check failed", zap.String("event_id", e.ID.String()), zap.Error(err))
		} else if !fresh {
			r.logger.Debug("Discarding duplicate replicated event", zap.String("event_id", e.ID.String()))
			r.metrics.EventDropped(ctx, "duplicate")
			return
		}
	}

	e.Origin = shared.OriginRemote
	r.metrics.EventReceived(ctx, e)
	_ = r.Publish(ctx, e)
}

// Close stops receiving replicated events
func (r *Router) Close() error {
	if r.channel == nil {
		return nil
	}
	return r.channel.Close()
}

var _ shared.EventPublisher = (*Router)(nil)
