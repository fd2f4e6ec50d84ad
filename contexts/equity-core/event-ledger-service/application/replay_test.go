package application_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"equitas/contexts/equity-core/event-ledger-service/adapters/memory"
	"equitas/contexts/equity-core/event-ledger-service/application"
	"equitas/contexts/equity-core/event-ledger-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/event-ledger-service/domain/errors"
)

func newReplayer(t *testing.T) (application.Replayer, *application.Bus, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	bus := application.NewBus(store, store, store, nil)
	return application.Replayer{Store: store, Bus: bus}, bus, store
}

func seedMemberHistory(t *testing.T, bus *application.Bus) {
	t.Helper()
	ctx := context.Background()
	history := []entities.DomainEvent{
		equityEvent("m-1", entities.ChangeTypeInitialGrant, "10"),
		equityEvent("m-1", entities.ChangeTypePercentageChange, "15"),
		equityEvent("m-1", entities.ChangeTypeAdjustment, "15.5"),
		equityEvent("m-1", entities.ChangeTypeRetirement, "0"),
	}
	for _, event := range history {
		if _, err := bus.Publish(ctx, event); err != nil {
			t.Fatalf("seed publish failed: %v", err)
		}
	}
}

func TestRebuildMemberProjectionFoldsInOrder(t *testing.T) {
	replayer, bus, _ := newReplayer(t)
	seedMemberHistory(t, bus)
	ctx := context.Background()

	projection, err := replayer.RebuildMemberProjection(ctx, "m-1")
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if !projection.EquityPercentage.IsZero() {
		t.Fatalf("expected retired member at 0%%, got %s", projection.EquityPercentage)
	}
	if projection.Status != entities.ProjectionStatusRetired {
		t.Fatalf("expected RETIRED, got %s", projection.Status)
	}
	if projection.EventCount != 4 || projection.LastSequence != 4 {
		t.Fatalf("unexpected fold bookkeeping: %+v", projection)
	}

	again, err := replayer.RebuildMemberProjection(ctx, "m-1")
	if err != nil {
		t.Fatalf("second rebuild failed: %v", err)
	}
	if !again.EquityPercentage.Equal(projection.EquityPercentage) ||
		again.Status != projection.Status ||
		again.LastSequence != projection.LastSequence ||
		again.EventCount != projection.EventCount {
		t.Fatalf("rebuild must be deterministic: %+v vs %+v", again, projection)
	}
}

func TestRebuildMemberProjectionUnknownMember(t *testing.T) {
	replayer, _, _ := newReplayer(t)

	_, err := replayer.RebuildMemberProjection(context.Background(), "ghost")
	if !errors.Is(err, domainerrors.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestRebuildMemberProjectionCorruptPayload(t *testing.T) {
	replayer, _, store := newReplayer(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, entities.DomainEvent{
		EventID:       "evt-bad",
		AggregateID:   "m-1",
		AggregateType: entities.AggregateTypeMember,
		EventType:     entities.EventTypeMemberEquityChanged,
		Payload:       []byte("{not json"),
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	_, err := replayer.RebuildMemberProjection(ctx, "m-1")
	if !errors.Is(err, domainerrors.ErrProjectionCorrupted) {
		t.Fatalf("expected ErrProjectionCorrupted, got %v", err)
	}
}

func TestReplayAllPagesWithoutReappending(t *testing.T) {
	replayer, bus, store := newReplayer(t)
	seedMemberHistory(t, bus)
	ctx := context.Background()

	var replayed atomic.Int64
	if err := bus.Subscribe(entities.EventTypeMemberEquityChanged, "rebuilder", func(context.Context, entities.DomainEvent) error {
		replayed.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	count, err := replayer.ReplayAll(ctx, 0, 2)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 events replayed, got %d", count)
	}
	if replayed.Load() != 4 {
		t.Fatalf("expected handler to see all 4 events, got %d", replayed.Load())
	}

	latest, _ := store.LatestSequence(ctx)
	if latest != 4 {
		t.Fatalf("replay must never append, latest=%d", latest)
	}
}

func TestReplayForAggregateFromSequence(t *testing.T) {
	replayer, bus, _ := newReplayer(t)
	seedMemberHistory(t, bus)
	ctx := context.Background()

	var replayed atomic.Int64
	if err := bus.Subscribe(entities.EventTypeMemberEquityChanged, "partial", func(context.Context, entities.DomainEvent) error {
		replayed.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	count, err := replayer.ReplayForAggregate(ctx, "m-1", entities.AggregateTypeMember, 2)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if count != 2 || replayed.Load() != 2 {
		t.Fatalf("expected the 2 events after sequence 2, got count=%d delivered=%d", count, replayed.Load())
	}
}

func TestAuditTrailReturnsOrderedHistory(t *testing.T) {
	replayer, bus, _ := newReplayer(t)
	seedMemberHistory(t, bus)
	ctx := context.Background()

	records, err := replayer.AuditTrail(ctx, "m-1", entities.AggregateTypeMember)
	if err != nil {
		t.Fatalf("audit trail failed: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 audit records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Sequence <= records[i-1].Sequence {
			t.Fatalf("audit trail out of order at %d: %+v", i, records)
		}
	}

	if _, err := replayer.AuditTrail(ctx, "ghost", entities.AggregateTypeMember); !errors.Is(err, domainerrors.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}
