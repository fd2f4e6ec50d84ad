package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type MemberStatus string

const (
	MemberStatusActive       MemberStatus = "ACTIVE"
	MemberStatusProbationary MemberStatus = "PROBATIONARY"
	MemberStatusSuspended    MemberStatus = "SUSPENDED"
	MemberStatusRetired      MemberStatus = "RETIRED"
)

// Voting statuses take part in equity totals and board approvals.
func (s MemberStatus) Voting() bool {
	return s == MemberStatusActive || s == MemberStatusProbationary
}

type EquityEventType string

const (
	EquityEventInitialGrant        EquityEventType = "INITIAL_GRANT"
	EquityEventPercentageChange    EquityEventType = "PERCENTAGE_CHANGE"
	EquityEventRetirement          EquityEventType = "RETIREMENT"
	EquityEventAdjustment          EquityEventType = "ADJUSTMENT"
	EquityEventBoardApprovedUpdate EquityEventType = "BOARD_APPROVED_UPDATE"
)

// Member is created once via INITIAL_GRANT and never physically deleted;
// lifecycle ends with a status transition. Version is an optimistic
// concurrency stamp bumped on every equity mutation.
type Member struct {
	ID               string
	CompanyID        string
	Name             string
	EquityPercentage decimal.Decimal
	TaxRate          decimal.Decimal
	Status           MemberStatus
	Version          int64
	JoinDate         time.Time
	RetirementDate   *time.Time
	UpdatedAt        time.Time
}

// EquityEvent is the per-member history entry paired one-to-one with a
// ledger domain event in the same transaction.
type EquityEvent struct {
	ID                 string
	MemberID           string
	CompanyID          string
	EventType          EquityEventType
	PreviousPercentage decimal.Decimal
	NewPercentage      decimal.Decimal
	EffectiveDate      time.Time
	Reason             string
	ApprovalID         string
	ChangedBy          string
	CreatedAt          time.Time
}

// ChangePayload is the ledger payload shape written alongside every equity
// mutation. Field names are part of the persisted event contract.
type ChangePayload struct {
	MemberID           string          `json:"member_id"`
	CompanyID          string          `json:"company_id"`
	ChangeType         string          `json:"change_type"`
	PreviousPercentage decimal.Decimal `json:"previous_percentage"`
	NewPercentage      decimal.Decimal `json:"new_percentage"`
	EffectiveDate      time.Time       `json:"effective_date"`
	Reason             string          `json:"reason"`
	ApprovalID         string          `json:"approval_id,omitempty"`
}

// EquityTotal reports the committed-state invariant: ACTIVE percentages must
// sum to 100 within tolerance.
type EquityTotal struct {
	CompanyID string
	Total     decimal.Decimal
	Deviation decimal.Decimal
	Balanced  bool
}
