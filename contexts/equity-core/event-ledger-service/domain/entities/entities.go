package entities

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AggregateTypeMember        = "member"
	AggregateTypeDistribution  = "distribution"
	AggregateTypeBoardApproval = "board_approval"
)

// Domain event types carried on the ledger. Equity change events additionally
// carry a change_type payload field with the per-member history entry kind.
const (
	EventTypeMemberCreated          = "member.created"
	EventTypeMemberEquityChanged    = "member.equity_changed"
	EventTypeMemberRetired          = "member.retired"
	EventTypeDistributionCalculated = "distribution.calculated"
	EventTypeBoardApprovalApplied   = "board_approval.applied"
)

// Equity change kinds embedded in member event payloads.
const (
	ChangeTypeInitialGrant        = "INITIAL_GRANT"
	ChangeTypePercentageChange    = "PERCENTAGE_CHANGE"
	ChangeTypeRetirement          = "RETIREMENT"
	ChangeTypeAdjustment          = "ADJUSTMENT"
	ChangeTypeBoardApprovedUpdate = "BOARD_APPROVED_UPDATE"
)

type Metadata struct {
	UserID        string `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// DomainEvent is the immutable ledger record. Sequence is store-assigned and
// strictly increasing across all aggregates; global order is authoritative
// for replay. Events are never updated or deleted.
type DomainEvent struct {
	EventID       string
	AggregateID   string
	AggregateType string
	EventType     string
	EventVersion  int
	Sequence      int64
	OccurredAt    time.Time
	Metadata      Metadata
	Payload       json.RawMessage
}

// AuditRecord is one ordered entry of an aggregate's audit trail. The event
// log itself is the audit trail; no separate audit table exists.
type AuditRecord struct {
	Sequence   int64
	EventType  string
	OccurredAt time.Time
	Metadata   Metadata
	Payload    json.RawMessage
}

// EquityChangePayload is the payload shape shared by all member equity events.
type EquityChangePayload struct {
	MemberID           string          `json:"member_id"`
	CompanyID          string          `json:"company_id"`
	ChangeType         string          `json:"change_type"`
	PreviousPercentage decimal.Decimal `json:"previous_percentage"`
	NewPercentage      decimal.Decimal `json:"new_percentage"`
	EffectiveDate      time.Time       `json:"effective_date"`
	Reason             string          `json:"reason"`
	ApprovalID         string          `json:"approval_id,omitempty"`
}

const (
	ProjectionStatusActive  = "ACTIVE"
	ProjectionStatusRetired = "RETIRED"
)

// MemberProjection is the state reconstructed by folding a member's equity
// events in sequence order. The fold is order-dependent; no commutativity is
// assumed.
type MemberProjection struct {
	MemberID         string
	CompanyID        string
	EquityPercentage decimal.Decimal
	Status           string
	LastSequence     int64
	EventCount       int
}
