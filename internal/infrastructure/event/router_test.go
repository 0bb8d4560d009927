package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/erp/rostersync/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type delivery struct {
	listener string
	event    shared.SyncEvent
}

type recorder struct {
	mu   sync.Mutex
	seen []delivery
}

func (r *recorder) listener(name string) shared.Listener {
	return shared.ListenerFunc(func(_ context.Context, e shared.SyncEvent) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.seen = append(r.seen, delivery{listener: name, event: e})
		return nil
	})
}

func (r *recorder) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]delivery, len(r.seen))
	copy(out, r.seen)
	return out
}

func (r *recorder) names() []string {
	var names []string
	for _, d := range r.deliveries() {
		names = append(names, d.listener)
	}
	return names
}

func mustEvent(t *testing.T, category shared.Category, payload any) shared.SyncEvent {
	t.Helper()
	e, err := shared.NewSyncEvent(category, shared.KindEmployees, payload)
	require.NoError(t, err)
	return e
}

func newReadyRouter(t *testing.T, opts ...RouterOption) *Router {
	t.Helper()
	r := NewRouter(zap.NewNop(), opts...)
	require.NoError(t, r.Start(context.Background()))
	r.MarkReady(context.Background())
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRouter_FanOutInRegistrationOrder(t *testing.T) {
	rec := &recorder{}
	r := newReadyRouter(t)

	r.Register("first", nil, shared.Bindings{}.
		Bind(shared.CategoryCreated, rec.listener("first.a"), rec.listener("first.b")))
	r.Register("second", nil, shared.Bindings{}.
		Bind(shared.CategoryCreated, rec.listener("second")).
		Bind(shared.CategoryDeleted, rec.listener("second.deleted")))

	require.NoError(t, r.Publish(context.Background(), mustEvent(t, shared.CategoryCreated, nil)))

	assert.Equal(t, []string{"first.a", "first.b", "second"}, rec.names())
}

func TestRouter_UnboundCategoryIsSkipped(t *testing.T) {
	rec := &recorder{}
	r := newReadyRouter(t)
	r.Register("only-deletes", nil, shared.Bindings{}.Bind(shared.CategoryDeleted, rec.listener("deleted")))

	require.NoError(t, r.Publish(context.Background(), mustEvent(t, shared.CategoryUpdated, nil)))
	assert.Empty(t, rec.deliveries())
}

func TestRouter_RejectsUnknownCategory(t *testing.T) {
	rec := &recorder{}
	r := newReadyRouter(t)
	r.Register("c", nil, shared.Bindings{}.Bind(shared.CategoryCreated, rec.listener("c")))

	good := mustEvent(t, shared.CategoryCreated, nil)
	bad := mustEvent(t, shared.Category("entity.renamed"), nil)

	err := r.Publish(context.Background(), good, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	assert.Empty(t, rec.deliveries())
}

func TestRouter_HoldsEventsUntilReady(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(zap.NewNop())
	r.Register("c", nil, shared.Bindings{}.
		Bind(shared.CategoryCreated, rec.listener("c")).
		Bind(shared.CategoryUpdated, rec.listener("c")).
		Bind(shared.CategoryDeleted, rec.listener("c")))

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, StateWaiting, r.State())

	x := mustEvent(t, shared.CategoryCreated, "x")
	y := mustEvent(t, shared.CategoryUpdated, "y")
	z := mustEvent(t, shared.CategoryDeleted, "z")
	require.NoError(t, r.Publish(context.Background(), x))
	require.NoError(t, r.Publish(context.Background(), y, z))
	assert.Empty(t, rec.deliveries())

	r.MarkReady(context.Background())
	assert.Equal(t, StateReady, r.State())

	got := rec.deliveries()
	require.Len(t, got, 3)
	assert.Equal(t, x.ID, got[0].event.ID)
	assert.Equal(t, y.ID, got[1].event.ID)
	assert.Equal(t, z.ID, got[2].event.ID)
	for i, d := range got {
		assert.Equal(t, uint64(i+1), d.event.Sequence)
	}
}

func TestRouter_ReadyWhen(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(zap.NewNop())
	r.Register("c", nil, shared.Bindings{}.Bind(shared.CategoryCreated, rec.listener("c")))
	require.NoError(t, r.Start(context.Background()))

	sessionReady := make(chan struct{})
	storeReady := make(chan struct{})
	r.ReadyWhen(context.Background(), sessionReady, storeReady)

	require.NoError(t, r.Publish(context.Background(), mustEvent(t, shared.CategoryCreated, nil)))

	close(sessionReady)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateWaiting, r.State())
	assert.Empty(t, rec.deliveries())

	close(storeReady)
	require.Eventually(t, func() bool { return r.State() == StateReady }, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.deliveries(), 1)
}

func TestRouter_ReadyWhenAbandonedOnCancel(t *testing.T) {
	r := NewRouter(zap.NewNop())
	require.NoError(t, r.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	r.ReadyWhen(ctx, make(chan struct{}))
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateWaiting, r.State())
}

func TestRouter_StartTwice(t *testing.T) {
	r := NewRouter(zap.NewNop())
	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))
}

func TestRouter_NestedPublishIsQueued(t *testing.T) {
	rec := &recorder{}
	r := newReadyRouter(t)

	follow := mustEvent(t, shared.CategoryUpdated, nil)
	var publishErr error
	r.Register("trigger", nil, shared.Bindings{}.
		Bind(shared.CategoryCreated, shared.ListenerFunc(func(ctx context.Context, e shared.SyncEvent) error {
			publishErr = r.Publish(ctx, follow)
			return rec.listener("trigger").HandleSync(ctx, e)
		})))
	r.Register("observer", nil, shared.Bindings{}.
		Bind(shared.CategoryCreated, rec.listener("observer.created")).
		Bind(shared.CategoryUpdated, rec.listener("observer.updated")))

	require.NoError(t, r.Publish(context.Background(), mustEvent(t, shared.CategoryCreated, nil)))
	require.NoError(t, publishErr)

	// The follow-up is delivered only after every listener saw the first event.
	assert.Equal(t, []string{"trigger", "observer.created", "observer.updated"}, rec.names())
}

func TestRouter_ListenerFailureIsIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := &recorder{}
	r := NewRouter(zap.New(core))
	require.NoError(t, r.Start(context.Background()))
	r.MarkReady(context.Background())

	r.Register("panics", nil, shared.Bindings{}.
		Bind(shared.CategoryCreated, shared.ListenerFunc(func(context.Context, shared.SyncEvent) error {
			panic("boom")
		})))
	r.Register("fails", nil, shared.Bindings{}.
		Bind(shared.CategoryCreated, shared.ListenerFunc(func(context.Context, shared.SyncEvent) error {
			return errors.New("nope")
		})))
	r.Register("healthy", nil, shared.Bindings{}.Bind(shared.CategoryCreated, rec.listener("healthy")))

	require.NoError(t, r.Publish(context.Background(), mustEvent(t, shared.CategoryCreated, nil)))

	assert.Equal(t, []string{"healthy"}, rec.names())
	entries := logs.FilterMessage("Listener failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "panics", entries[0].ContextMap()["component"])
	assert.Equal(t, "fails", entries[1].ContextMap()["component"])
}

func TestRouter_RegisterReplacesInPlace(t *testing.T) {
	rec := &recorder{}
	r := newReadyRouter(t)

	r.Register("a", nil, shared.Bindings{}.Bind(shared.CategoryCreated, rec.listener("a.old")))
	r.Register("b", nil, shared.Bindings{}.Bind(shared.CategoryCreated, rec.listener("b")))
	r.Register("a", nil, shared.Bindings{}.Bind(shared.CategoryCreated, rec.listener("a.new")))

	require.NoError(t, r.Publish(context.Background(), mustEvent(t, shared.CategoryCreated, nil)))
	assert.Equal(t, []string{"a.new", "b"}, rec.names())
	assert.Equal(t, []string{"a", "b"}, r.Components())

	r.Unregister("a")
	assert.Equal(t, []string{"b"}, r.Components())
}

type resyncOnly struct {
	calls int
}

func (c *resyncOnly) OnFullResync(context.Context, shared.SyncEvent) error {
	c.calls++
	return nil
}

func TestRouter_RegisterComponentUsesTypedListeners(t *testing.T) {
	r := newReadyRouter(t)
	c := &resyncOnly{}
	r.RegisterComponent("resync", c)

	require.NoError(t, r.Publish(context.Background(),
		mustEvent(t, shared.CategoryCreated, nil),
		mustEvent(t, shared.CategoryFullResync, nil)))
	assert.Equal(t, 1, c.calls)
}

func TestRouter_StampsLocalEvents(t *testing.T) {
	rec := &recorder{}
	r := newReadyRouter(t, WithContextID("ctx-a"))
	r.Register("c", nil, shared.Bindings{}.Bind(shared.CategoryCreated, rec.listener("c")))

	require.NoError(t, r.Publish(context.Background(), shared.SyncEvent{Category: shared.CategoryCreated}))

	got := rec.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, shared.OriginLocal, got[0].event.Origin)
	assert.Equal(t, "ctx-a", got[0].event.Source)
	assert.NotEqual(t, uuid.Nil, got[0].event.ID)
	assert.False(t, got[0].event.Timestamp.IsZero())
}

func TestRouter_ReplicationBetweenContexts(t *testing.T) {
	hub := NewMemoryHub()
	recA, recB := &recorder{}, &recorder{}

	a := newReadyRouter(t, WithContextID("ctx-a"), WithReplication(hub.Channel()))
	b := newReadyRouter(t, WithContextID("ctx-b"), WithReplication(hub.Channel()))
	a.Register("view", nil, shared.Bindings{}.Bind(shared.CategoryUpdated, recA.listener("a")))
	b.Register("view", nil, shared.Bindings{}.Bind(shared.CategoryUpdated, recB.listener("b")))

	e := mustEvent(t, shared.CategoryUpdated, map[string]string{"id": "7"})
	require.NoError(t, a.Publish(context.Background(), e))

	gotA := recA.deliveries()
	gotB := recB.deliveries()
	require.Len(t, gotA, 1, "sender must not receive its own echo")
	require.Len(t, gotB, 1)

	assert.Equal(t, shared.OriginLocal, gotA[0].event.Origin)
	assert.Equal(t, shared.OriginRemote, gotB[0].event.Origin)
	assert.Equal(t, e.ID, gotB[0].event.ID)
	assert.Equal(t, "ctx-a", gotB[0].event.Source)
	assert.JSONEq(t, `{"id":"7"}`, string(gotB[0].event.Payload))
}

func TestRouter_RemoteEventsAreNotReplicated(t *testing.T) {
	hub := NewMemoryHub()
	recA, recC := &recorder{}, &recorder{}

	a := newReadyRouter(t, WithContextID("ctx-a"), WithReplication(hub.Channel()))
	newReadyRouter(t, WithContextID("ctx-b"), WithReplication(hub.Channel()))
	c := newReadyRouter(t, WithContextID("ctx-c"), WithReplication(hub.Channel()))
	a.Register("view", nil, shared.Bindings{}.Bind(shared.CategoryDeleted, recA.listener("a")))
	c.Register("view", nil, shared.Bindings{}.Bind(shared.CategoryDeleted, recC.listener("c")))

	require.NoError(t, a.Publish(context.Background(), mustEvent(t, shared.CategoryDeleted, nil)))

	// b does not forward what it received, so c sees the event exactly once.
	assert.Len(t, recA.deliveries(), 1)
	assert.Len(t, recC.deliveries(), 1)
}

func TestRouter_DropsDuplicateDeliveries(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	rec := &recorder{}
	b := newReadyRouter(t, WithContextID("ctx-b"), WithIdempotencyStore(store, time.Minute))
	b.Register("view", nil, shared.Bindings{}.Bind(shared.CategoryCreated, rec.listener("b")))

	e := mustEvent(t, shared.CategoryCreated, nil)
	e.Source = "ctx-a"
	data, err := Encode(e)
	require.NoError(t, err)

	b.receive(context.Background(), data)
	b.receive(context.Background(), data)

	assert.Len(t, rec.deliveries(), 1)
}

func TestRouter_DiscardsMalformedMessages(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &recorder{}
	r := NewRouter(zap.New(core), WithContextID("ctx-a"))
	require.NoError(t, r.Start(context.Background()))
	r.MarkReady(context.Background())
	r.Register("view", nil, shared.Bindings{}.Bind(shared.CategoryCreated, rec.listener("a")))

	r.receive(context.Background(), []byte("not json"))

	assert.Empty(t, rec.deliveries())
	assert.Equal(t, 1, logs.FilterMessage("Discarding malformed replication message").Len())
}

func TestRouter_RemoteEventHeldUntilReady(t *testing.T) {
	hub := NewMemoryHub()
	rec := &recorder{}

	a := newReadyRouter(t, WithContextID("ctx-a"), WithReplication(hub.Channel()))
	b := NewRouter(zap.NewNop(), WithContextID("ctx-b"), WithReplication(hub.Channel()))
	b.Register("view", nil, shared.Bindings{}.Bind(shared.CategoryCreated, rec.listener("b")))
	require.NoError(t, b.Start(context.Background()))

	require.NoError(t, a.Publish(context.Background(), mustEvent(t, shared.CategoryCreated, nil)))
	assert.Empty(t, rec.deliveries())

	b.MarkReady(context.Background())
	got := rec.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, shared.OriginRemote, got[0].event.Origin)
}

func TestRouter_ConcurrentPublishersDeliverEverything(t *testing.T) {
	var mu sync.Mutex
	var sequences []uint64
	r := newReadyRouter(t)
	r.Register("count", nil, shared.Bindings{}.
		Bind(shared.CategoryUpdated, shared.ListenerFunc(func(_ context.Context, e shared.SyncEvent) error {
			mu.Lock()
			sequences = append(sequences, e.Sequence)
			mu.Unlock()
			return nil
		})))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = r.Publish(context.Background(), mustEvent(t, shared.CategoryUpdated, nil))
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sequences, 200)
	for i, s := range sequences {
		assert.Equal(t, uint64(i+1), s)
	}
}
