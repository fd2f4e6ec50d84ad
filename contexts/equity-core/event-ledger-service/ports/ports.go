package ports

import (
	"context"
	"time"

	"equitas/contexts/equity-core/event-ledger-service/domain/entities"

	contractsv1 "equitas/contracts/gen/events/v1"
)

// EventStore is the durable, append-only, sequence-ordered log. No update or
// delete operation exists.
type EventStore interface {
	// Append persists the event and returns it with the store-assigned
	// strictly increasing sequence.
	Append(ctx context.Context, event entities.DomainEvent) (entities.DomainEvent, error)
	// AppendBatch is atomic: any failure rolls back the whole batch.
	AppendBatch(ctx context.Context, events []entities.DomainEvent) ([]entities.DomainEvent, error)
	ListByAggregate(ctx context.Context, aggregateID string, aggregateType string, fromSequence int64) ([]entities.DomainEvent, error)
	ListByType(ctx context.Context, eventType string, from time.Time, to time.Time) ([]entities.DomainEvent, error)
	ListAll(ctx context.Context, fromSequence int64, limit int) ([]entities.DomainEvent, error)
	// LatestSequence reports the highest assigned sequence, 0 when empty.
	LatestSequence(ctx context.Context) (int64, error)
}

type EventHandler func(ctx context.Context, event entities.DomainEvent) error

// CheckpointStore tracks how far a named consumer has read into the global
// sequence.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, consumer string) (int64, error)
	SaveCheckpoint(ctx context.Context, consumer string, sequence int64) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

// MessagePublisher is the platform messaging surface used by the ledger relay
// to hand committed events to out-of-process consumers.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, envelope EventEnvelope) error
}
