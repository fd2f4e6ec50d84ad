package workers

import (
	"context"
	"errors"
	"testing"

	"equitas/contexts/equity-core/event-ledger-service/adapters/memory"
	"equitas/contexts/equity-core/event-ledger-service/domain/entities"
	"equitas/contexts/equity-core/event-ledger-service/ports"
)

type capturingPublisher struct {
	published []ports.EventEnvelope
	failAfter int
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, envelope ports.EventEnvelope) error {
	if p.failAfter > 0 && len(p.published) >= p.failAfter {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, envelope)
	return nil
}

func seedLedger(t *testing.T, store *memory.Store, count int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		_, err := store.Append(ctx, entities.DomainEvent{
			EventID:       string(rune('a' + i)),
			AggregateID:   "m-1",
			AggregateType: entities.AggregateTypeMember,
			EventType:     entities.EventTypeMemberEquityChanged,
			EventVersion:  1,
			Payload:       []byte(`{}`),
		})
		if err != nil {
			t.Fatalf("seed append failed: %v", err)
		}
	}
}

func TestRunOnceRelaysPastCheckpoint(t *testing.T) {
	store := memory.NewStore()
	seedLedger(t, store, 3)
	publisher := &capturingPublisher{}
	relay := LedgerRelay{Store: store, Checkpoints: store, Publisher: publisher, Consumer: "test-relay"}
	ctx := context.Background()

	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if len(publisher.published) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(publisher.published))
	}
	checkpoint, _ := store.GetCheckpoint(ctx, "test-relay")
	if checkpoint != 3 {
		t.Fatalf("expected checkpoint 3, got %d", checkpoint)
	}

	// A second cycle with no new events publishes nothing.
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("idle relay failed: %v", err)
	}
	if len(publisher.published) != 3 {
		t.Fatalf("idle cycle must not republish, got %d", len(publisher.published))
	}
}

func TestRunOnceResumesAfterPublishFailure(t *testing.T) {
	store := memory.NewStore()
	seedLedger(t, store, 3)
	publisher := &capturingPublisher{failAfter: 1}
	relay := LedgerRelay{Store: store, Checkpoints: store, Publisher: publisher, Consumer: "test-relay"}
	ctx := context.Background()

	if err := relay.RunOnce(ctx); err == nil {
		t.Fatal("expected publish failure to surface")
	}
	checkpoint, _ := store.GetCheckpoint(ctx, "test-relay")
	if checkpoint != 1 {
		t.Fatalf("checkpoint must stop at last published event, got %d", checkpoint)
	}

	publisher.failAfter = 0
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("resumed relay failed: %v", err)
	}
	if len(publisher.published) != 3 {
		t.Fatalf("expected all 3 events published after resume, got %d", len(publisher.published))
	}
	if publisher.published[1].Sequence != 2 {
		t.Fatalf("resume must continue from the checkpoint, got sequence %d", publisher.published[1].Sequence)
	}
}
