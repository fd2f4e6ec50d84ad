package ports

import (
	"context"
	"time"

	"equitas/contexts/equity-core/member-registry-service/domain/entities"

	contractsv1 "equitas/contracts/gen/events/v1"

	"github.com/shopspring/decimal"
)

// EquityChange is a read-modify-write of one member's percentage. The
// repository performs the locked read, so the previous percentage is captured
// inside the transaction, not by the caller.
type EquityChange struct {
	MemberID        string
	ExpectedVersion int64
	EventType       entities.EquityEventType
	DomainEventType string
	NewPercentage   decimal.Decimal
	EffectiveDate   time.Time
	Reason          string
	ApprovalID      string
	ChangedBy       string
	CorrelationID   string
	Retire          bool
}

// AppendedEvent describes the domain event row written inside a repository
// transaction, so callers can dispatch it after commit.
type AppendedEvent struct {
	EventID    string
	EventType  string
	Sequence   int64
	OccurredAt time.Time
	Payload    []byte
}

// Repository writes the member row, the EquityEvent history entry and the
// DomainEvent ledger row in one transaction. Every percentage mutation is
// paired with exactly one of each.
type Repository interface {
	CreateMember(ctx context.Context, member entities.Member, changedBy string, correlationID string) (AppendedEvent, error)
	ApplyEquityChange(ctx context.Context, change EquityChange) (entities.Member, AppendedEvent, error)
	GetMember(ctx context.Context, memberID string) (entities.Member, error)
	ListActiveMembers(ctx context.Context, companyID string) ([]entities.Member, error)
	ListVotingMembers(ctx context.Context, companyID string) ([]entities.Member, error)
	ListEquityEvents(ctx context.Context, memberID string) ([]entities.EquityEvent, error)
	SumActiveEquity(ctx context.Context, companyID string) (decimal.Decimal, error)
}

type EventEnvelope = contractsv1.Envelope

// EventDispatcher delivers an already-committed event to live subscribers.
// It must never re-append to the ledger.
type EventDispatcher interface {
	Dispatch(ctx context.Context, envelope EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
