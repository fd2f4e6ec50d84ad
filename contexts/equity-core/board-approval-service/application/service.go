package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"equitas/contexts/equity-core/board-approval-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/board-approval-service/domain/errors"
	"equitas/contexts/equity-core/board-approval-service/domain/services"
	"equitas/contexts/equity-core/board-approval-service/ports"

	"github.com/shopspring/decimal"
)

const (
	EventTypeBoardApprovalApplied = "board_approval.applied"

	aggregateTypeBoardApproval = "board_approval"
	sourceService              = "board-approval-service"
)

type CreateBoardApprovalCommand struct {
	CompanyID     string
	Title         string
	ApprovalType  entities.ApprovalType
	EffectiveDate time.Time
	Updates       []UpdateInput
	// ForceApply overrides warning-only validation results. Hard errors are
	// never overridden.
	ForceApply    bool
	CreatedBy     string
	CorrelationID string
}

// ValidationError wraps a failed validation so callers receive the structured
// findings alongside the sentinel.
type ValidationError struct {
	Result entities.ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("equity update validation failed: %d errors, %d warnings", len(e.Result.Errors), len(e.Result.Warnings))
}

func (e *ValidationError) Unwrap() error {
	return domainerrors.ErrValidationFailed
}

type Service struct {
	Repository ports.Repository
	Members    ports.MemberDirectory
	Dispatcher ports.EventDispatcher
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Validator  Validator
	Logger     *slog.Logger
}

// CreateBoardApproval validates the proposed update set and persists the
// approval in DRAFT together with one EquityUpdate row per change, capturing
// previous percentage and per-member warnings at submission time. Nothing is
// dispatched here; events only leave this service when an approval is
// applied.
func (s Service) CreateBoardApproval(ctx context.Context, cmd CreateBoardApprovalCommand) (entities.BoardApproval, error) {
	logger := ResolveLogger(s.Logger)
	companyID := strings.TrimSpace(cmd.CompanyID)
	if companyID == "" || len(cmd.Updates) == 0 {
		return entities.BoardApproval{}, domainerrors.ErrInvalidApprovalInput
	}

	members, err := s.Members.ListMembers(ctx, companyID)
	if err != nil {
		return entities.BoardApproval{}, err
	}
	byID := make(map[string]entities.MemberSnapshot, len(members))
	for _, member := range members {
		byID[member.ID] = member
	}

	result := s.Validator.Validate(cmd.Updates, members)
	if len(result.Errors) > 0 || (!result.Valid && !cmd.ForceApply) {
		logger.Warn("board approval rejected by validation",
			"event", "board_approval_validation_failed",
			"module", "equity-core/board-approval-service",
			"layer", "application",
			"company_id", companyID,
			"error_count", len(result.Errors),
			"warning_count", len(result.Warnings),
			"force_apply", cmd.ForceApply,
		)
		return entities.BoardApproval{}, &ValidationError{Result: result}
	}

	approvalID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.BoardApproval{}, err
	}
	now := s.now()
	effective := cmd.EffectiveDate.UTC()
	if effective.IsZero() {
		effective = now
	}
	approvalType := cmd.ApprovalType
	if approvalType == "" {
		approvalType = entities.ApprovalTypeEquityChange
	}

	updates := make([]entities.EquityUpdate, 0, len(cmd.Updates))
	for _, input := range cmd.Updates {
		updateID, err := s.IDGen.NewID(ctx)
		if err != nil {
			return entities.BoardApproval{}, err
		}
		memberID := strings.TrimSpace(input.MemberID)
		previous := byID[memberID].Percentage
		updates = append(updates, entities.EquityUpdate{
			ID:                 updateID,
			ApprovalID:         approvalID,
			MemberID:           memberID,
			PreviousPercentage: previous,
			NewPercentage:      input.NewPercentage,
			ChangePercentage:   input.NewPercentage.Sub(previous),
			ChangeReason:       strings.TrimSpace(input.ChangeReason),
			Warnings:           result.WarningsFor(memberID),
		})
	}

	approval := entities.BoardApproval{
		ID:                approvalID,
		CompanyID:         companyID,
		Title:             strings.TrimSpace(cmd.Title),
		ApprovalType:      approvalType,
		Status:            entities.ApprovalStatusDraft,
		EffectiveDate:     effective,
		TotalEquityBefore: result.TotalBefore,
		TotalEquityAfter:  result.TotalAfter,
		Updates:           updates,
		CreatedBy:         strings.TrimSpace(cmd.CreatedBy),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.Repository.CreateApproval(ctx, approval); err != nil {
		logger.Error("board approval create failed",
			"event", "board_approval_create_failed",
			"module", "equity-core/board-approval-service",
			"layer", "application",
			"approval_id", approvalID,
			"company_id", companyID,
			"error", err.Error(),
		)
		return entities.BoardApproval{}, err
	}

	logger.Info("board approval drafted",
		"event", "board_approval_created",
		"module", "equity-core/board-approval-service",
		"layer", "application",
		"approval_id", approvalID,
		"company_id", companyID,
		"update_count", len(updates),
		"total_after", result.TotalAfter.String(),
	)
	return approval, nil
}

// ValidateEquityUpdates runs the validation pass without persisting anything.
func (s Service) ValidateEquityUpdates(ctx context.Context, companyID string, updates []UpdateInput) (entities.ValidationResult, error) {
	members, err := s.Members.ListMembers(ctx, strings.TrimSpace(companyID))
	if err != nil {
		return entities.ValidationResult{}, err
	}
	return s.Validator.Validate(updates, members), nil
}

// Submit moves a draft into the approval queue.
func (s Service) Submit(ctx context.Context, approvalID string) (entities.BoardApproval, error) {
	return s.transition(ctx, approvalID, "board_approval_submitted", func(approval *entities.BoardApproval, now time.Time) error {
		if approval.Status != entities.ApprovalStatusDraft {
			return domainerrors.ErrIllegalTransition
		}
		approval.Status = entities.ApprovalStatusPending
		return nil
	})
}

// Approve records the board decision. Legal from DRAFT or PENDING_APPROVAL.
func (s Service) Approve(ctx context.Context, approvalID string, approvedBy string) (entities.BoardApproval, error) {
	approvedBy = strings.TrimSpace(approvedBy)
	if approvedBy == "" {
		return entities.BoardApproval{}, domainerrors.ErrInvalidApprovalInput
	}
	return s.transition(ctx, approvalID, "board_approval_approved", func(approval *entities.BoardApproval, now time.Time) error {
		if approval.Status != entities.ApprovalStatusDraft && approval.Status != entities.ApprovalStatusPending {
			return domainerrors.ErrIllegalTransition
		}
		approval.Status = entities.ApprovalStatusApproved
		approval.ApprovedBy = approvedBy
		approval.ApprovalDate = &now
		approval.DecidedAt = &now
		return nil
	})
}

// Reject is terminal. Legal from DRAFT or PENDING_APPROVAL.
func (s Service) Reject(ctx context.Context, approvalID string, reason string) (entities.BoardApproval, error) {
	return s.transition(ctx, approvalID, "board_approval_rejected", func(approval *entities.BoardApproval, now time.Time) error {
		if approval.Status != entities.ApprovalStatusDraft && approval.Status != entities.ApprovalStatusPending {
			return domainerrors.ErrIllegalTransition
		}
		approval.Status = entities.ApprovalStatusRejected
		approval.RejectionReason = strings.TrimSpace(reason)
		approval.DecidedAt = &now
		return nil
	})
}

// Cancel is terminal. Legal from DRAFT or PENDING_APPROVAL.
func (s Service) Cancel(ctx context.Context, approvalID string) (entities.BoardApproval, error) {
	return s.transition(ctx, approvalID, "board_approval_cancelled", func(approval *entities.BoardApproval, now time.Time) error {
		if approval.Status != entities.ApprovalStatusDraft && approval.Status != entities.ApprovalStatusPending {
			return domainerrors.ErrIllegalTransition
		}
		approval.Status = entities.ApprovalStatusCancelled
		approval.DecidedAt = &now
		return nil
	})
}

// Apply executes an APPROVED approval. One transaction writes every member's
// new percentage, a BOARD_APPROVED_UPDATE equity event per member referencing
// the approval, the paired ledger event and the APPLIED flip. This is the
// only path by which approval content mutates live member records; any other
// starting status fails without touching a member.
func (s Service) Apply(ctx context.Context, approvalID string, appliedBy string) (entities.BoardApproval, error) {
	logger := ResolveLogger(s.Logger)
	approval, err := s.Repository.GetApproval(ctx, strings.TrimSpace(approvalID))
	if err != nil {
		return entities.BoardApproval{}, err
	}
	if approval.Status != entities.ApprovalStatusApproved {
		logger.Warn("apply refused",
			"event", "board_approval_apply_refused",
			"module", "equity-core/board-approval-service",
			"layer", "application",
			"approval_id", approval.ID,
			"status", string(approval.Status),
		)
		return entities.BoardApproval{}, domainerrors.ErrIllegalTransition
	}

	now := s.now()
	type updatePayload struct {
		MemberID           string          `json:"member_id"`
		PreviousPercentage decimal.Decimal `json:"previous_percentage"`
		NewPercentage      decimal.Decimal `json:"new_percentage"`
		ChangePercentage   decimal.Decimal `json:"change_percentage"`
	}
	breakdown := make([]updatePayload, 0, len(approval.Updates))
	for _, update := range approval.Updates {
		breakdown = append(breakdown, updatePayload{
			MemberID:           update.MemberID,
			PreviousPercentage: update.PreviousPercentage,
			NewPercentage:      update.NewPercentage,
			ChangePercentage:   update.ChangePercentage,
		})
	}
	payload, err := json.Marshal(map[string]any{
		"approval_id":         approval.ID,
		"company_id":          approval.CompanyID,
		"approval_type":       approval.ApprovalType,
		"effective_date":      approval.EffectiveDate,
		"total_equity_before": approval.TotalEquityBefore,
		"total_equity_after":  approval.TotalEquityAfter,
		"updates":             breakdown,
	})
	if err != nil {
		return entities.BoardApproval{}, err
	}
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.BoardApproval{}, err
	}

	approval.Status = entities.ApprovalStatusApplied
	approval.AppliedAt = &now
	approval.UpdatedAt = now

	appliedBy = strings.TrimSpace(appliedBy)
	if appliedBy == "" {
		appliedBy = approval.ApprovedBy
	}
	appended, err := s.Repository.ApplyApproval(ctx, approval, ports.LedgerEventInput{
		EventID:       eventID,
		AggregateID:   approval.ID,
		EventType:     EventTypeBoardApprovalApplied,
		OccurredAt:    now,
		UserID:        appliedBy,
		CorrelationID: approval.ID,
		Payload:       payload,
	})
	if err != nil {
		logger.Error("board approval apply failed",
			"event", "board_approval_apply_failed",
			"module", "equity-core/board-approval-service",
			"layer", "application",
			"approval_id", approval.ID,
			"error", err.Error(),
		)
		return entities.BoardApproval{}, err
	}

	logger.Info("board approval applied",
		"event", "board_approval_applied",
		"module", "equity-core/board-approval-service",
		"layer", "application",
		"approval_id", approval.ID,
		"company_id", approval.CompanyID,
		"update_count", len(approval.Updates),
		"sequence", appended.Sequence,
	)

	if s.Dispatcher != nil {
		if err := s.Dispatcher.Dispatch(ctx, ports.EventEnvelope{
			EventID:       appended.EventID,
			EventType:     appended.EventType,
			OccurredAt:    appended.OccurredAt,
			SourceService: sourceService,
			CorrelationID: approval.ID,
			UserID:        appliedBy,
			SchemaVersion: 1,
			AggregateType: aggregateTypeBoardApproval,
			AggregateID:   approval.ID,
			Sequence:      appended.Sequence,
			Data:          appended.Payload,
		}); err != nil {
			logger.Warn("subscriber failed after durable commit",
				"event", "board_approval_event_dispatch_failed",
				"module", "equity-core/board-approval-service",
				"layer", "application",
				"approval_id", approval.ID,
				"event_id", appended.EventID,
				"error", err.Error(),
			)
			return approval, err
		}
	}
	return approval, nil
}

// CalculateProRataAdjustment is a read-only preview: it computes the gap
// between 100% and what the company currently allocates across all members,
// then spreads that gap over ACTIVE and PROBATIONARY members not excluded.
func (s Service) CalculateProRataAdjustment(ctx context.Context, companyID string, excludeIDs []string) ([]services.ProRataAllocation, error) {
	members, err := s.Members.ListMembers(ctx, strings.TrimSpace(companyID))
	if err != nil {
		return nil, err
	}

	totalAllocated := decimal.Zero
	var eligible []entities.MemberSnapshot
	eligibleTotal := decimal.Zero
	for _, member := range members {
		totalAllocated = totalAllocated.Add(member.Percentage)
		if member.Eligible() {
			eligible = append(eligible, member)
			eligibleTotal = eligibleTotal.Add(member.Percentage)
		}
	}

	unallocated := oneHundred.Sub(totalAllocated)
	allocations, err := services.Reallocate(eligible, unallocated, excludeIDs)
	if err != nil {
		return nil, err
	}
	return services.AdjustToExactTotal(allocations, eligibleTotal.Add(unallocated)), nil
}

func (s Service) GetApproval(ctx context.Context, approvalID string) (entities.BoardApproval, error) {
	if strings.TrimSpace(approvalID) == "" {
		return entities.BoardApproval{}, domainerrors.ErrInvalidApprovalInput
	}
	return s.Repository.GetApproval(ctx, strings.TrimSpace(approvalID))
}

func (s Service) ListByCompany(ctx context.Context, companyID string, limit int) ([]entities.BoardApproval, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, domainerrors.ErrInvalidApprovalInput
	}
	return s.Repository.ListByCompany(ctx, strings.TrimSpace(companyID), limit)
}

func (s Service) transition(ctx context.Context, approvalID string, logEvent string, mutate func(*entities.BoardApproval, time.Time) error) (entities.BoardApproval, error) {
	logger := ResolveLogger(s.Logger)
	approval, err := s.Repository.GetApproval(ctx, strings.TrimSpace(approvalID))
	if err != nil {
		return entities.BoardApproval{}, err
	}
	from := approval.Status
	now := s.now()
	if err := mutate(&approval, now); err != nil {
		logger.Warn("status transition refused",
			"event", "board_approval_transition_refused",
			"module", "equity-core/board-approval-service",
			"layer", "application",
			"approval_id", approval.ID,
			"status", string(from),
			"error", err.Error(),
		)
		return entities.BoardApproval{}, err
	}
	approval.UpdatedAt = now
	if err := s.Repository.UpdateApprovalStatus(ctx, approval); err != nil {
		return entities.BoardApproval{}, err
	}

	logger.Info("approval status changed",
		"event", logEvent,
		"module", "equity-core/board-approval-service",
		"layer", "application",
		"approval_id", approval.ID,
		"from", string(from),
		"to", string(approval.Status),
	)
	return approval, nil
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}
