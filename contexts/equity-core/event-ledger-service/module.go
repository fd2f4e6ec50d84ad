package eventledgerservice

import (
	"log/slog"

	"equitas/contexts/equity-core/event-ledger-service/adapters/memory"
	"equitas/contexts/equity-core/event-ledger-service/application"
	"equitas/contexts/equity-core/event-ledger-service/ports"
)

type Module struct {
	Bus      *application.Bus
	Replayer application.Replayer
	Store    *memory.Store
}

type Dependencies struct {
	EventStore ports.EventStore
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	bus := application.NewBus(deps.EventStore, deps.Clock, deps.IDGen, deps.Logger)
	return Module{
		Bus: bus,
		Replayer: application.Replayer{
			Store:  deps.EventStore,
			Bus:    bus,
			Logger: deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		EventStore: store,
		Clock:      store,
		IDGen:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
