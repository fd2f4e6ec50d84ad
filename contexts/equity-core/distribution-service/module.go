package distributionservice

import (
	"log/slog"

	"equitas/contexts/equity-core/distribution-service/adapters/memory"
	"equitas/contexts/equity-core/distribution-service/application"
	"equitas/contexts/equity-core/distribution-service/domain/entities"
	"equitas/contexts/equity-core/distribution-service/ports"

	"github.com/shopspring/decimal"
)

type Module struct {
	Service application.Service
	Store   *memory.Store
}

type Dependencies struct {
	Profits    ports.ProfitRepository
	Members    ports.MemberDirectory
	Repository ports.Repository
	Dispatcher ports.EventDispatcher
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Tolerance  decimal.Decimal
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Service: application.Service{
			Profits:    deps.Profits,
			Members:    deps.Members,
			Repository: deps.Repository,
			Dispatcher: deps.Dispatcher,
			Clock:      deps.Clock,
			IDGen:      deps.IDGen,
			Tolerance:  deps.Tolerance,
			Logger:     deps.Logger,
		},
	}
}

func NewInMemoryModule(profits []entities.ProfitRecord, stakesByCompany map[string][]entities.MemberStake, dispatcher ports.EventDispatcher, logger *slog.Logger) Module {
	store := memory.NewStore(profits, stakesByCompany)
	module := NewModule(Dependencies{
		Profits:    store,
		Members:    store,
		Repository: store,
		Dispatcher: dispatcher,
		Clock:      store,
		IDGen:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
