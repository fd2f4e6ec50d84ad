package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"equitas/contexts/equity-core/event-ledger-service/adapters/memory"
	"equitas/contexts/equity-core/event-ledger-service/application"
	"equitas/contexts/equity-core/event-ledger-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/event-ledger-service/domain/errors"

	"github.com/shopspring/decimal"
)

func newBus(t *testing.T) (*application.Bus, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return application.NewBus(store, store, store, nil), store
}

func equityEvent(memberID string, changeType string, pct string) entities.DomainEvent {
	payload, _ := json.Marshal(entities.EquityChangePayload{
		MemberID:      memberID,
		CompanyID:     "co-1",
		ChangeType:    changeType,
		NewPercentage: decimal.RequireFromString(pct),
	})
	return entities.DomainEvent{
		AggregateID:   memberID,
		AggregateType: entities.AggregateTypeMember,
		EventType:     entities.EventTypeMemberEquityChanged,
		Payload:       payload,
	}
}

func TestPublishAssignsSequenceAndDispatches(t *testing.T) {
	bus, _ := newBus(t)
	ctx := context.Background()

	var delivered atomic.Int64
	if err := bus.Subscribe(entities.EventTypeMemberEquityChanged, "projection", func(_ context.Context, event entities.DomainEvent) error {
		delivered.Add(1)
		if event.Sequence == 0 {
			t.Error("handler saw event without store-assigned sequence")
		}
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	first, err := bus.Publish(ctx, equityEvent("m-1", entities.ChangeTypeInitialGrant, "40"))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	second, err := bus.Publish(ctx, equityEvent("m-2", entities.ChangeTypeInitialGrant, "60"))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("expected sequences 1,2 got %d,%d", first.Sequence, second.Sequence)
	}
	if first.EventID == "" {
		t.Fatal("expected generated event id")
	}
	if delivered.Load() != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered.Load())
	}
}

func TestHandlerFailureDoesNotRollBackAppend(t *testing.T) {
	bus, store := newBus(t)
	ctx := context.Background()

	handlerErr := errors.New("projection write failed")
	if err := bus.Subscribe(entities.EventTypeMemberEquityChanged, "flaky", func(context.Context, entities.DomainEvent) error {
		return handlerErr
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	stored, err := bus.Publish(ctx, equityEvent("m-1", entities.ChangeTypeInitialGrant, "100"))
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error surfaced, got %v", err)
	}
	if stored.Sequence != 1 {
		t.Fatalf("expected durable event with sequence 1, got %d", stored.Sequence)
	}

	latest, err := store.LatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence failed: %v", err)
	}
	if latest != 1 {
		t.Fatalf("append must survive handler failure, latest=%d", latest)
	}
}

func TestPublishRejectsIncompleteEvent(t *testing.T) {
	bus, store := newBus(t)
	ctx := context.Background()

	_, err := bus.Publish(ctx, entities.DomainEvent{EventType: entities.EventTypeMemberCreated})
	if !errors.Is(err, domainerrors.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	latest, _ := store.LatestSequence(ctx)
	if latest != 0 {
		t.Fatalf("invalid event must not be appended, latest=%d", latest)
	}
}

func TestSubscribeRejectsDuplicateName(t *testing.T) {
	bus, _ := newBus(t)
	handler := func(context.Context, entities.DomainEvent) error { return nil }

	if err := bus.Subscribe("member.created", "audit", handler); err != nil {
		t.Fatalf("first subscribe failed: %v", err)
	}
	if err := bus.Subscribe("member.created", "audit", handler); !errors.Is(err, domainerrors.ErrHandlerExists) {
		t.Fatalf("expected ErrHandlerExists, got %v", err)
	}
	if got := bus.HandlerCount("member.created"); got != 1 {
		t.Fatalf("expected 1 handler, got %d", got)
	}
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	bus, _ := newBus(t)
	handler := func(context.Context, entities.DomainEvent) error { return nil }

	if err := bus.Subscribe("member.created", "audit", handler); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := bus.Unsubscribe("member.created", "audit"); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if err := bus.Unsubscribe("member.created", "audit"); !errors.Is(err, domainerrors.ErrHandlerNotFound) {
		t.Fatalf("expected ErrHandlerNotFound, got %v", err)
	}
}

func TestPublishAllIsAtomic(t *testing.T) {
	bus, store := newBus(t)
	ctx := context.Background()

	good := equityEvent("m-1", entities.ChangeTypeInitialGrant, "50")
	good.EventID = "evt-1"
	dup := equityEvent("m-2", entities.ChangeTypeInitialGrant, "50")
	dup.EventID = "evt-1"

	if _, err := bus.PublishAll(ctx, []entities.DomainEvent{good, dup}); !errors.Is(err, domainerrors.ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
	latest, _ := store.LatestSequence(ctx)
	if latest != 0 {
		t.Fatalf("failed batch must leave the log untouched, latest=%d", latest)
	}

	stored, err := bus.PublishAll(ctx, []entities.DomainEvent{
		equityEvent("m-1", entities.ChangeTypeInitialGrant, "50"),
		equityEvent("m-2", entities.ChangeTypeInitialGrant, "50"),
	})
	if err != nil {
		t.Fatalf("publish all failed: %v", err)
	}
	if len(stored) != 2 || stored[0].Sequence != 1 || stored[1].Sequence != 2 {
		t.Fatalf("expected contiguous sequences, got %+v", stored)
	}

	if _, err := bus.PublishAll(ctx, nil); !errors.Is(err, domainerrors.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}
