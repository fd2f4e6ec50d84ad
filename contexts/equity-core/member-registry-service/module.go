package memberregistryservice

import (
	"log/slog"

	"equitas/contexts/equity-core/member-registry-service/adapters/memory"
	"equitas/contexts/equity-core/member-registry-service/application/commands"
	"equitas/contexts/equity-core/member-registry-service/application/queries"
	"equitas/contexts/equity-core/member-registry-service/domain/entities"
	"equitas/contexts/equity-core/member-registry-service/ports"

	"github.com/shopspring/decimal"
)

type Module struct {
	Commands commands.UseCase
	Queries  queries.UseCase
	Store    *memory.Store
}

type Dependencies struct {
	Repository      ports.Repository
	Dispatcher      ports.EventDispatcher
	Clock           ports.Clock
	IDGen           ports.IDGenerator
	EquityTolerance decimal.Decimal
	Logger          *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Commands: commands.UseCase{
			Repository: deps.Repository,
			Dispatcher: deps.Dispatcher,
			Clock:      deps.Clock,
			IDGen:      deps.IDGen,
			Logger:     deps.Logger,
		},
		Queries: queries.UseCase{
			Repository: deps.Repository,
			Tolerance:  deps.EquityTolerance,
		},
	}
}

func NewInMemoryModule(seed []entities.Member, dispatcher ports.EventDispatcher, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Repository: store,
		Dispatcher: dispatcher,
		Clock:      store,
		IDGen:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
