package telemetry

import (
	"context"
	"time"

	"github.com/erp/rostersync/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics holds the instruments recorded by the router, the gateway and
// the reconciler. All methods are safe on a nil receiver.
type SyncMetrics struct {
	eventsPublished  *Counter
	eventsReplicated *Counter
	eventsReceived   *Counter
	eventsDuplicate  *Counter
	listenerFailures *Counter

	gatewayRequests  *Counter
	gatewayFallbacks *Counter
	gatewayDuration  *Histogram

	reconciliations *Counter
}

// NewSyncMetrics creates every instrument on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	counters := []struct {
		dst  **Counter
		name string
		desc string
	}{
		{&m.eventsPublished, "rostersync.events.published", "Sync events dispatched locally"},
		{&m.eventsReplicated, "rostersync.events.replicated", "Sync events sent on the replication channel"},
		{&m.eventsReceived, "rostersync.events.received", "Replicated sync events accepted from sibling contexts"},
		{&m.eventsDuplicate, "rostersync.events.duplicate", "Replicated sync events dropped as duplicates or self-echo"},
		{&m.listenerFailures, "rostersync.listener.failures", "Listener invocations that returned an error or panicked"},
		{&m.gatewayRequests, "rostersync.gateway.requests", "Requests sent to the HR backend"},
		{&m.gatewayFallbacks, "rostersync.gateway.fallbacks", "Reads answered from cache or empty data after a failure or stale response"},
		{&m.reconciliations, "rostersync.accounts.reconciliations", "Account changes applied by the reconciler"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.desc, "{event}")
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	h, err := NewHistogram(meter, "rostersync.gateway.duration", "HR backend request duration", "s", HTTPDurationBuckets...)
	if err != nil {
		return nil, err
	}
	m.gatewayDuration = h
	return m, nil
}

func eventAttrs(e shared.SyncEvent) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCategory.String(string(e.Category)),
		AttrEntityKind.String(string(e.Kind)),
		AttrOrigin.String(string(e.Origin)),
	}
}

// EventPublished records a locally dispatched event
func (m *SyncMetrics) EventPublished(ctx context.Context, e shared.SyncEvent) {
	if m == nil {
		return
	}
	m.eventsPublished.Inc(ctx, eventAttrs(e)...)
}

// EventReplicated records an event handed to the replication channel
func (m *SyncMetrics) EventReplicated(ctx context.Context, e shared.SyncEvent) {
	if m == nil {
		return
	}
	m.eventsReplicated.Inc(ctx, eventAttrs(e)...)
}

// EventReceived records an accepted replicated event
func (m *SyncMetrics) EventReceived(ctx context.Context, e shared.SyncEvent) {
	if m == nil {
		return
	}
	m.eventsReceived.Inc(ctx, eventAttrs(e)...)
}

// EventDropped records a replicated event discarded for reason
func (m *SyncMetrics) EventDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.eventsDuplicate.Inc(ctx, AttrOutcome.String(reason))
}

// ListenerFailed records a failed listener invocation
func (m *SyncMetrics) ListenerFailed(ctx context.Context, component string, e shared.SyncEvent) {
	if m == nil {
		return
	}
	m.listenerFailures.Inc(ctx, append(eventAttrs(e), AttrComponent.String(component))...)
}

// GatewayRequest records one backend round trip
func (m *SyncMetrics) GatewayRequest(ctx context.Context, op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrOperation.String(op), AttrHTTPStatus.Int(status)}
	m.gatewayRequests.Inc(ctx, attrs...)
	m.gatewayDuration.RecordDuration(ctx, d, attrs...)
}

// GatewayFallback records a degraded read
func (m *SyncMetrics) GatewayFallback(ctx context.Context, kind, reason string) {
	if m == nil {
		return
	}
	m.gatewayFallbacks.Inc(ctx, AttrEntityKind.String(kind), AttrOutcome.String(reason))
}

// AccountReconciled records one applied account change (created, updated, ...)
func (m *SyncMetrics) AccountReconciled(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.Inc(ctx, AttrOutcome.String(outcome))
}
