package boardapprovalservice

import (
	"log/slog"

	"equitas/contexts/equity-core/board-approval-service/adapters/memory"
	"equitas/contexts/equity-core/board-approval-service/application"
	"equitas/contexts/equity-core/board-approval-service/domain/entities"
	"equitas/contexts/equity-core/board-approval-service/ports"
)

type Module struct {
	Service application.Service
	Store   *memory.Store
}

type Dependencies struct {
	Repository ports.Repository
	Members    ports.MemberDirectory
	Dispatcher ports.EventDispatcher
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Validator  application.Validator
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Service: application.Service{
			Repository: deps.Repository,
			Members:    deps.Members,
			Dispatcher: deps.Dispatcher,
			Clock:      deps.Clock,
			IDGen:      deps.IDGen,
			Validator:  deps.Validator,
			Logger:     deps.Logger,
		},
	}
}

func NewInMemoryModule(members []entities.MemberSnapshot, dispatcher ports.EventDispatcher, logger *slog.Logger) Module {
	store := memory.NewStore(members)
	module := NewModule(Dependencies{
		Repository: store,
		Members:    store,
		Dispatcher: dispatcher,
		Clock:      store,
		IDGen:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
