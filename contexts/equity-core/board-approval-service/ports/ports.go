package ports

import (
	"context"
	"time"

	"equitas/contexts/equity-core/board-approval-service/domain/entities"
	contractsv1 "equitas/contracts/gen/events/v1"
)

// AppendedEvent describes the ledger row written inside an apply transaction.
type AppendedEvent struct {
	EventID    string
	EventType  string
	Sequence   int64
	OccurredAt time.Time
	Payload    []byte
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

// Repository persists approvals and their update rows. CreateApproval writes
// the approval and every EquityUpdate atomically. ApplyApproval runs the
// apply transaction: each member's new percentage, one equity event per
// update, the paired ledger event, and the APPLIED flip, all or nothing.
type Repository interface {
	CreateApproval(ctx context.Context, approval entities.BoardApproval) error
	GetApproval(ctx context.Context, approvalID string) (entities.BoardApproval, error)
	UpdateApprovalStatus(ctx context.Context, approval entities.BoardApproval) error
	ListByCompany(ctx context.Context, companyID string, limit int) ([]entities.BoardApproval, error)
	ApplyApproval(ctx context.Context, approval entities.BoardApproval, event LedgerEventInput) (AppendedEvent, error)
}

// MemberDirectory is a read-only view of the member registry scoped to one
// company. All statuses are returned; callers filter on eligibility.
type MemberDirectory interface {
	ListMembers(ctx context.Context, companyID string) ([]entities.MemberSnapshot, error)
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
