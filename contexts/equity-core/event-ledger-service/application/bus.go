package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"equitas/contexts/equity-core/event-ledger-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/event-ledger-service/domain/errors"
	"equitas/contexts/equity-core/event-ledger-service/ports"
)

type subscription struct {
	name    string
	handler ports.EventHandler
}

// Bus durably appends then dispatches. Delivery is at-least-once: a handler
// failure after a successful append never rolls back the event, so handlers
// must be idempotent and re-drivable via replay.
type Bus struct {
	Store  ports.EventStore
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]subscription
}

func NewBus(store ports.EventStore, clock ports.Clock, idGen ports.IDGenerator, logger *slog.Logger) *Bus {
	return &Bus{
		Store:    store,
		Clock:    clock,
		IDGen:    idGen,
		Logger:   logger,
		handlers: make(map[string][]subscription),
	}
}

// Subscribe registers a named handler for an event type. The registry is
// in-memory only and rebuilt by the composition root at process start.
func (b *Bus) Subscribe(eventType string, name string, handler ports.EventHandler) error {
	eventType = strings.TrimSpace(eventType)
	name = strings.TrimSpace(name)
	if eventType == "" || name == "" || handler == nil {
		return domainerrors.ErrInvalidEvent
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.handlers[eventType] {
		if sub.name == name {
			return domainerrors.ErrHandlerExists
		}
	}
	b.handlers[eventType] = append(b.handlers[eventType], subscription{name: name, handler: handler})
	return nil
}

func (b *Bus) Unsubscribe(eventType string, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	filtered := make([]subscription, 0, len(subs))
	removed := false
	for _, sub := range subs {
		if sub.name == strings.TrimSpace(name) {
			removed = true
			continue
		}
		filtered = append(filtered, sub)
	}
	if !removed {
		return domainerrors.ErrHandlerNotFound
	}
	b.handlers[eventType] = filtered
	return nil
}

// Publish appends to the event store first, then invokes every subscribed
// handler, awaiting all before returning. The returned event carries the
// store-assigned sequence even when a handler fails.
func (b *Bus) Publish(ctx context.Context, event entities.DomainEvent) (entities.DomainEvent, error) {
	logger := ResolveLogger(b.Logger)

	prepared, err := b.prepare(ctx, event)
	if err != nil {
		return entities.DomainEvent{}, err
	}
	stored, err := b.Store.Append(ctx, prepared)
	if err != nil {
		logger.Error("event append failed",
			"event", "ledger_bus_append_failed",
			"module", "equity-core/event-ledger-service",
			"layer", "application",
			"event_id", prepared.EventID,
			"event_type", prepared.EventType,
			"error", err.Error(),
		)
		return entities.DomainEvent{}, err
	}

	if err := b.Dispatch(ctx, stored); err != nil {
		logger.Warn("handler failed after durable append",
			"event", "ledger_bus_dispatch_failed",
			"module", "equity-core/event-ledger-service",
			"layer", "application",
			"event_id", stored.EventID,
			"event_type", stored.EventType,
			"sequence", stored.Sequence,
			"error", err.Error(),
		)
		return stored, err
	}
	return stored, nil
}

// PublishAll appends the batch atomically, then dispatches events in original
// order, sequentially per event, with parallel fan-out within one event's
// handler set.
func (b *Bus) PublishAll(ctx context.Context, events []entities.DomainEvent) ([]entities.DomainEvent, error) {
	if len(events) == 0 {
		return nil, domainerrors.ErrEmptyBatch
	}
	prepared := make([]entities.DomainEvent, 0, len(events))
	for _, event := range events {
		next, err := b.prepare(ctx, event)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, next)
	}

	stored, err := b.Store.AppendBatch(ctx, prepared)
	if err != nil {
		return nil, err
	}

	var dispatchErrs []error
	for _, event := range stored {
		if err := b.Dispatch(ctx, event); err != nil {
			dispatchErrs = append(dispatchErrs, err)
		}
	}
	return stored, errors.Join(dispatchErrs...)
}

// Dispatch invokes the currently-registered handlers for the event type
// without touching the store. Replay uses this path to distinguish itself
// from live publish.
func (b *Bus) Dispatch(ctx context.Context, event entities.DomainEvent) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[event.EventType]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(subs))
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub subscription) {
			defer wg.Done()
			errs[i] = sub.handler(ctx, event)
		}(i, sub)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// HandlerCount reports registered handlers for an event type.
func (b *Bus) HandlerCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

func (b *Bus) prepare(ctx context.Context, event entities.DomainEvent) (entities.DomainEvent, error) {
	event.AggregateID = strings.TrimSpace(event.AggregateID)
	event.AggregateType = strings.TrimSpace(event.AggregateType)
	event.EventType = strings.TrimSpace(event.EventType)
	if event.AggregateID == "" || event.AggregateType == "" || event.EventType == "" {
		return entities.DomainEvent{}, domainerrors.ErrInvalidEvent
	}
	if event.EventVersion <= 0 {
		event.EventVersion = 1
	}
	if strings.TrimSpace(event.EventID) == "" {
		id, err := b.IDGen.NewID(ctx)
		if err != nil {
			return entities.DomainEvent{}, err
		}
		event.EventID = id
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = b.now()
	}
	event.OccurredAt = event.OccurredAt.UTC()
	return event, nil
}

func (b *Bus) now() time.Time {
	if b.Clock == nil {
		return time.Now().UTC()
	}
	return b.Clock.Now().UTC()
}
