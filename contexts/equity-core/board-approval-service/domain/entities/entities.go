package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalStatus is the lifecycle state of a board approval. Transitions are
// monotonic: DRAFT -> PENDING_APPROVAL -> APPROVED -> APPLIED, with
// REJECTED and CANCELLED as terminal exits from the first two states.
type ApprovalStatus string

const (
	ApprovalStatusDraft     ApprovalStatus = "DRAFT"
	ApprovalStatusPending   ApprovalStatus = "PENDING_APPROVAL"
	ApprovalStatusApproved  ApprovalStatus = "APPROVED"
	ApprovalStatusApplied   ApprovalStatus = "APPLIED"
	ApprovalStatusRejected  ApprovalStatus = "REJECTED"
	ApprovalStatusCancelled ApprovalStatus = "CANCELLED"
)

// Terminal reports whether no further transition is legal from this status.
func (s ApprovalStatus) Terminal() bool {
	switch s {
	case ApprovalStatusApplied, ApprovalStatusRejected, ApprovalStatusCancelled:
		return true
	default:
		return false
	}
}

type ApprovalType string

const (
	ApprovalTypeEquityChange ApprovalType = "EQUITY_CHANGE"
	ApprovalTypeNewMember    ApprovalType = "NEW_MEMBER"
	ApprovalTypeBulkUpdate   ApprovalType = "BULK_UPDATE"
)

// BoardApproval is the aggregate gating multi-member equity changes. Only an
// applied approval ever mutates live member records.
type BoardApproval struct {
	ID                string
	CompanyID         string
	Title             string
	ApprovalType      ApprovalType
	Status            ApprovalStatus
	EffectiveDate     time.Time
	TotalEquityBefore decimal.Decimal
	TotalEquityAfter  decimal.Decimal
	Updates           []EquityUpdate
	CreatedBy         string
	CreatedAt         time.Time
	ApprovedBy        string
	ApprovalDate      *time.Time
	RejectionReason   string
	DecidedAt         *time.Time
	AppliedAt         *time.Time
	UpdatedAt         time.Time
}

// EquityUpdate is one proposed per-member change owned by an approval. The
// previous percentage and the warnings are captured at creation time.
type EquityUpdate struct {
	ID                 string
	ApprovalID         string
	MemberID           string
	PreviousPercentage decimal.Decimal
	NewPercentage      decimal.Decimal
	ChangePercentage   decimal.Decimal
	ChangeReason       string
	Warnings           []string
}

// MemberSnapshot is the board service's read-only view of a member.
type MemberSnapshot struct {
	ID         string
	Name       string
	Percentage decimal.Decimal
	Status     string
}

// Eligible reports whether the member participates in equity totals and
// pro-rata reallocation.
func (m MemberSnapshot) Eligible() bool {
	return m.Status == "ACTIVE" || m.Status == "PROBATIONARY"
}

type IssueSeverity string

const (
	SeverityError   IssueSeverity = "ERROR"
	SeverityWarning IssueSeverity = "WARNING"
)

// ValidationIssue is one structured finding from update validation.
type ValidationIssue struct {
	Severity IssueSeverity
	Code     string
	MemberID string
	Message  string
}

// ValidationResult carries every finding so callers can show all problems at
// once. Warnings never block on their own; any error makes the set invalid.
type ValidationResult struct {
	Valid       bool
	Errors      []ValidationIssue
	Warnings    []ValidationIssue
	TotalBefore decimal.Decimal
	TotalAfter  decimal.Decimal
}

// WarningsFor returns the warning messages recorded against one member.
func (r ValidationResult) WarningsFor(memberID string) []string {
	var messages []string
	for _, issue := range r.Warnings {
		if issue.MemberID == memberID {
			messages = append(messages, issue.Message)
		}
	}
	return messages
}
