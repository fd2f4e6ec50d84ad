package ports

import (
	"context"
	"time"

	"equitas/contexts/equity-core/distribution-service/domain/entities"

	contractsv1 "equitas/contracts/gen/events/v1"
)

// AppendedEvent describes the ledger row written inside the distribution
// transaction.
type AppendedEvent struct {
	EventID    string
	EventType  string
	Sequence   int64
	OccurredAt time.Time
	Payload    []byte
}

// Repository persists distribution runs. CreateDistribution writes the
// parent, all member rows and the paired ledger event in one transaction.
type Repository interface {
	CreateDistribution(ctx context.Context, distribution entities.Distribution, shares []entities.MemberDistribution, event LedgerEventInput) (AppendedEvent, error)
	GetDistribution(ctx context.Context, distributionID string) (entities.Distribution, []entities.MemberDistribution, error)
	ListByCompany(ctx context.Context, companyID string, limit int) ([]entities.Distribution, error)
	MarkMemberPaid(ctx context.Context, distributionID string, memberID string, paidAt time.Time) error
}

// LedgerEventInput carries the pre-built ledger payload into a repository
// transaction.
type LedgerEventInput struct {
	EventID       string
	AggregateID   string
	EventType     string
	OccurredAt    time.Time
	UserID        string
	CorrelationID string
	Payload       []byte
}

type ProfitRepository interface {
	GetProfit(ctx context.Context, profitID string) (entities.ProfitRecord, error)
}

// MemberDirectory is a read-only projection of the member registry: ACTIVE
// members with a positive equity percentage.
type MemberDirectory interface {
	ListActiveStakes(ctx context.Context, companyID string) ([]entities.MemberStake, error)
}

type EventEnvelope = contractsv1.Envelope

type EventDispatcher interface {
	Dispatch(ctx context.Context, envelope EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
