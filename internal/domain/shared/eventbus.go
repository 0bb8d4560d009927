package shared

import "context"

// Listener receives SyncEvents for the categories it is bound to
type Listener interface {
	HandleSync(ctx context.Context, event SyncEvent) error
}

// ListenerFunc adapts a plain function to Listener
type ListenerFunc func(ctx context.Context, event SyncEvent) error

// HandleSync calls f(ctx, event)
func (f ListenerFunc) HandleSync(ctx context.Context, event SyncEvent) error {
	return f(ctx, event)
}

// Typed capability contracts. A component implements only the ones it cares
// about; BindingsFor turns them into a Bindings map.

// EntityCreatedListener reacts to entity.created events
type EntityCreatedListener interface {
	OnEntityCreated(ctx context.Context, event SyncEvent) error
}

// EntityUpdatedListener reacts to entity.updated events
type EntityUpdatedListener interface {
	OnEntityUpdated(ctx context.Context, event SyncEvent) error
}

// EntityDeletedListener reacts to entity.deleted events
type EntityDeletedListener interface {
	OnEntityDeleted(ctx context.Context, event SyncEvent) error
}

// ResyncListener reacts to full.resync events
type ResyncListener interface {
	OnFullResync(ctx context.Context, event SyncEvent) error
}

// Bindings maps lifecycle categories to the listeners invoked for them, in order.
// Categories without an entry are skipped.
type Bindings map[Category][]Listener

// Bind appends listeners for a category and returns b for chaining
func (b Bindings) Bind(category Category, listeners ...Listener) Bindings {
	b[category] = append(b[category], listeners...)
	return b
}

// For returns the listeners bound to a category
func (b Bindings) For(category Category) []Listener {
	return b[category]
}

// BindingsFor derives bindings from the typed capability interfaces that
// instance implements.
func BindingsFor(instance any) Bindings {
	b := Bindings{}
	if l, ok := instance.(EntityCreatedListener); ok {
		b.Bind(CategoryCreated, ListenerFunc(l.OnEntityCreated))
	}
	if l, ok := instance.(EntityUpdatedListener); ok {
		b.Bind(CategoryUpdated, ListenerFunc(l.OnEntityUpdated))
	}
	if l, ok := instance.(EntityDeletedListener); ok {
		b.Bind(CategoryDeleted, ListenerFunc(l.OnEntityDeleted))
	}
	if l, ok := instance.(ResyncListener); ok {
		b.Bind(CategoryFullResync, ListenerFunc(l.OnFullResync))
	}
	return b
}

// EventPublisher publishes sync events into the local router
type EventPublisher interface {
	Publish(ctx context.Context, events ...SyncEvent) error
}

// EventPublisherFunc adapts a function to EventPublisher
type EventPublisherFunc func(ctx context.Context, events ...SyncEvent) error

// Publish calls f(ctx, events...)
func (f EventPublisherFunc) Publish(ctx context.Context, events ...SyncEvent) error {
	return f(ctx, events...)
}
