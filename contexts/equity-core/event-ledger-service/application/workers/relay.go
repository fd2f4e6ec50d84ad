package workers

import (
	"context"
	"log/slog"
	"time"

	application "equitas/contexts/equity-core/event-ledger-service/application"
	"equitas/contexts/equity-core/event-ledger-service/domain/entities"
	"equitas/contexts/equity-core/event-ledger-service/ports"
)

const (
	defaultRelayConsumerName = "equity-ledger-relay"
	defaultRelayBatchSize    = 100
	defaultRelayInterval     = 5 * time.Second
)

// LedgerRelay forwards committed domain events past a checkpoint onto
// platform messaging for out-of-process consumers. The event log is the
// outbox: the relay reads the same rows the transactions wrote, so nothing is
// published that is not durably committed.
type LedgerRelay struct {
	Store       ports.EventStore
	Checkpoints ports.CheckpointStore
	Publisher   ports.MessagePublisher
	Source      string
	Consumer    string
	BatchSize   int
	Interval    time.Duration
	Logger      *slog.Logger
}

func (r LedgerRelay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				application.ResolveLogger(r.Logger).Error("ledger relay cycle failed",
					"event", "ledger_relay_cycle_failed",
					"module", "equity-core/event-ledger-service",
					"layer", "worker",
					"error", err.Error(),
				)
			}
		}
	}
}

func (r LedgerRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	consumer := r.Consumer
	if consumer == "" {
		consumer = defaultRelayConsumerName
	}
	limit := r.BatchSize
	if limit <= 0 {
		limit = defaultRelayBatchSize
	}

	cursor, err := r.Checkpoints.GetCheckpoint(ctx, consumer)
	if err != nil {
		logger.Error("ledger relay checkpoint read failed",
			"event", "ledger_relay_checkpoint_read_failed",
			"module", "equity-core/event-ledger-service",
			"layer", "worker",
			"consumer", consumer,
			"error", err.Error(),
		)
		return err
	}

	events, err := r.Store.ListAll(ctx, cursor, limit)
	if err != nil {
		logger.Error("ledger relay page read failed",
			"event", "ledger_relay_page_read_failed",
			"module", "equity-core/event-ledger-service",
			"layer", "worker",
			"consumer", consumer,
			"from_sequence", cursor,
			"error", err.Error(),
		)
		return err
	}

	for _, event := range events {
		if err := r.Publisher.Publish(ctx, event.EventType, r.envelope(event)); err != nil {
			logger.Error("ledger relay publish failed",
				"event", "ledger_relay_publish_failed",
				"module", "equity-core/event-ledger-service",
				"layer", "worker",
				"consumer", consumer,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"sequence", event.Sequence,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Checkpoints.SaveCheckpoint(ctx, consumer, event.Sequence); err != nil {
			logger.Error("ledger relay checkpoint save failed",
				"event", "ledger_relay_checkpoint_save_failed",
				"module", "equity-core/event-ledger-service",
				"layer", "worker",
				"consumer", consumer,
				"sequence", event.Sequence,
				"error", err.Error(),
			)
			return err
		}
	}

	if len(events) > 0 {
		logger.Info("ledger relay cycle completed",
			"event", "ledger_relay_cycle_completed",
			"module", "equity-core/event-ledger-service",
			"layer", "worker",
			"consumer", consumer,
			"relayed", len(events),
			"last_sequence", events[len(events)-1].Sequence,
		)
	}
	return nil
}

func (r LedgerRelay) envelope(event entities.DomainEvent) ports.EventEnvelope {
	source := r.Source
	if source == "" {
		source = "event-ledger-service"
	}
	return ports.EventEnvelope{
		EventID:       event.EventID,
		EventType:     event.EventType,
		OccurredAt:    event.OccurredAt,
		SourceService: source,
		CorrelationID: event.Metadata.CorrelationID,
		UserID:        event.Metadata.UserID,
		SchemaVersion: event.EventVersion,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Sequence:      event.Sequence,
		Data:          event.Payload,
	}
}
