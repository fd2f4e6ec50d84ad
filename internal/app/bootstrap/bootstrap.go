package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	contractsv1 "equitas/contracts/gen/events/v1"
	boardapproval "equitas/contexts/equity-core/board-approval-service"
	boardpostgres "equitas/contexts/equity-core/board-approval-service/adapters/postgres"
	boardapp "equitas/contexts/equity-core/board-approval-service/application"
	distribution "equitas/contexts/equity-core/distribution-service"
	distpostgres "equitas/contexts/equity-core/distribution-service/adapters/postgres"
	eventledger "equitas/contexts/equity-core/event-ledger-service"
	ledgerpostgres "equitas/contexts/equity-core/event-ledger-service/adapters/postgres"
	ledgerapp "equitas/contexts/equity-core/event-ledger-service/application"
	ledgerworkers "equitas/contexts/equity-core/event-ledger-service/application/workers"
	ledgerentities "equitas/contexts/equity-core/event-ledger-service/domain/entities"
	memberregistry "equitas/contexts/equity-core/member-registry-service"
	memberpostgres "equitas/contexts/equity-core/member-registry-service/adapters/postgres"
	"equitas/internal/platform/config"
	"equitas/internal/platform/db"
	"equitas/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// All subscriptions and cross-module wiring happen here, explicitly, at
// startup; module code never registers itself.

type WorkerApp struct {
	Ledger        eventledger.Module
	Members       memberregistry.Module
	Distributions distribution.Module
	Approvals     boardapproval.Module

	postgres *db.Postgres
	relay    ledgerworkers.LedgerRelay
	logger   *slog.Logger
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	broker := messaging.NewBroker(logger)

	ledgerRepo := ledgerpostgres.NewRepository(pg.DB, logger)
	ledgerModule := eventledger.NewModule(eventledger.Dependencies{
		EventStore: ledgerRepo,
		Clock:      ledgerpostgres.SystemClock{},
		IDGen:      ledgerpostgres.UUIDGenerator{},
		Logger:     logger,
	})

	// Services append inside their own transactions and hand the committed
	// event to the bus for fan-out only; the bus never re-appends it.
	dispatcher := busDispatcher{bus: ledgerModule.Bus}

	memberRepo := memberpostgres.NewRepository(pg.DB, logger)
	memberModule := memberregistry.NewModule(memberregistry.Dependencies{
		Repository:      memberRepo,
		Dispatcher:      dispatcher,
		Clock:           memberpostgres.SystemClock{},
		IDGen:           memberpostgres.UUIDGenerator{},
		EquityTolerance: cfg.EquityTotalTolerance,
		Logger:          logger,
	})

	distRepo := distpostgres.NewRepository(pg.DB, logger)
	distModule := distribution.NewModule(distribution.Dependencies{
		Profits:    distRepo,
		Members:    distRepo,
		Repository: distRepo,
		Dispatcher: dispatcher,
		Clock:      distpostgres.SystemClock{},
		IDGen:      distpostgres.UUIDGenerator{},
		Tolerance:  cfg.ReconciliationTolerance,
		Logger:     logger,
	})

	boardRepo := boardpostgres.NewRepository(pg.DB, logger)
	boardModule := boardapproval.NewModule(boardapproval.Dependencies{
		Repository: boardRepo,
		Members:    boardRepo,
		Dispatcher: dispatcher,
		Clock:      boardpostgres.SystemClock{},
		IDGen:      boardpostgres.UUIDGenerator{},
		Validator: boardapp.Validator{
			LargeChangePoints:    cfg.LargeChangePoints,
			TotalDeviationPoints: cfg.TotalDeviationPoints,
		},
		Logger: logger,
	})

	return &WorkerApp{
		Ledger:        ledgerModule,
		Members:       memberModule,
		Distributions: distModule,
		Approvals:     boardModule,
		postgres:      pg,
		relay: ledgerworkers.LedgerRelay{
			Store:       ledgerRepo,
			Checkpoints: ledgerRepo,
			Publisher:   broker,
			Source:      cfg.ServiceName,
			BatchSize:   cfg.RelayBatchSize,
			Interval:    cfg.RelayInterval,
			Logger:      logger,
		},
		logger: logger,
	}, nil
}

// Run subscribes the notification consumer and drives the relay loop until
// the context is cancelled.
func (w *WorkerApp) Run(ctx context.Context) error {
	broker, ok := w.relay.Publisher.(*messaging.Broker)
	if ok {
		topics := []string{
			"member.created",
			"member.equity_changed",
			"member.retired",
			"distribution.calculated",
			"board_approval.applied",
		}
		for _, topic := range topics {
			if err := broker.Subscribe(ctx, topic, "equity-notifications", w.notify); err != nil {
				return err
			}
		}
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"relay_interval", w.relay.Interval.String(),
	)
	return w.relay.Run(ctx)
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) notify(_ context.Context, envelope contractsv1.Envelope) error {
	w.logger.Info("ledger event delivered",
		"event", "notification_delivered",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"event_id", envelope.EventID,
		"event_type", envelope.EventType,
		"aggregate_id", envelope.AggregateID,
		"sequence", envelope.Sequence,
	)
	return nil
}

// busDispatcher feeds committed events into the ledger bus for live fan-out.
// The event is already durable; Dispatch must not append it again.
type busDispatcher struct {
	bus *ledgerapp.Bus
}

func (d busDispatcher) Dispatch(ctx context.Context, envelope contractsv1.Envelope) error {
	return d.bus.Dispatch(ctx, ledgerentities.DomainEvent{
		EventID:       envelope.EventID,
		AggregateID:   envelope.AggregateID,
		AggregateType: envelope.AggregateType,
		EventType:     envelope.EventType,
		EventVersion:  envelope.SchemaVersion,
		Sequence:      envelope.Sequence,
		OccurredAt:    envelope.OccurredAt,
		Metadata: ledgerentities.Metadata{
			UserID:        envelope.UserID,
			CorrelationID: envelope.CorrelationID,
		},
		Payload: envelope.Data,
	})
}
