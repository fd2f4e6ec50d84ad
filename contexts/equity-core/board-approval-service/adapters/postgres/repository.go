package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"equitas/contexts/equity-core/board-approval-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/board-approval-service/domain/errors"
	"equitas/contexts/equity-core/board-approval-service/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) CreateApproval(ctx context.Context, approval entities.BoardApproval) error {
	parent := approvalModelFromEntity(approval)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&parent).Error; err != nil {
			return err
		}
		for _, update := range approval.Updates {
			row, err := equityUpdateModelFromEntity(update)
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return r.logError("approval_repo_create_failed", err,
			"approval_id", approval.ID,
			"company_id", approval.CompanyID,
		)
	}
	return nil
}

func (r *Repository) GetApproval(ctx context.Context, approvalID string) (entities.BoardApproval, error) {
	var parent approvalModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(approvalID)).
		First(&parent).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.BoardApproval{}, domainerrors.ErrApprovalNotFound
		}
		return entities.BoardApproval{}, r.logError("approval_repo_get_failed", err,
			"approval_id", strings.TrimSpace(approvalID),
		)
	}
	updates, err := r.listUpdates(ctx, parent.ID)
	if err != nil {
		return entities.BoardApproval{}, err
	}
	approval := parent.toEntity()
	approval.Updates = updates
	return approval, nil
}

func (r *Repository) UpdateApprovalStatus(ctx context.Context, approval entities.BoardApproval) error {
	result := r.db.WithContext(ctx).
		Model(&approvalModel{}).
		Where("id = ?", approval.ID).
		Updates(map[string]any{
			"status":           string(approval.Status),
			"approved_by":      approval.ApprovedBy,
			"approval_date":    approval.ApprovalDate,
			"rejection_reason": approval.RejectionReason,
			"decided_at":       approval.DecidedAt,
			"updated_at":       approval.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("approval_repo_update_status_failed", result.Error,
			"approval_id", approval.ID,
			"status", string(approval.Status),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrApprovalNotFound
	}
	return nil
}

func (r *Repository) ListByCompany(ctx context.Context, companyID string, limit int) ([]entities.BoardApproval, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []approvalModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", strings.TrimSpace(companyID)).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("approval_repo_list_failed", err,
			"company_id", strings.TrimSpace(companyID),
		)
	}
	approvals := make([]entities.BoardApproval, 0, len(rows))
	for _, row := range rows {
		approvals = append(approvals, row.toEntity())
	}
	return approvals, nil
}

// ApplyApproval runs the apply transaction: every member row is locked and
// updated, one BOARD_APPROVED_UPDATE history row and the paired ledger event
// are appended, and the approval flips to APPLIED. Any failure rolls back
// the whole set.
func (r *Repository) ApplyApproval(ctx context.Context, approval entities.BoardApproval, event ports.LedgerEventInput) (ports.AppendedEvent, error) {
	ledger := ledgerEventModel{
		EventID:       event.EventID,
		AggregateID:   event.AggregateID,
		AggregateType: "board_approval",
		EventType:     event.EventType,
		EventVersion:  1,
		OccurredAt:    event.OccurredAt.UTC(),
		UserID:        event.UserID,
		CorrelationID: event.CorrelationID,
		Payload:       append([]byte(nil), event.Payload...),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, update := range approval.Updates {
			var member memberModel
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", update.MemberID).
				First(&member).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domainerrors.ErrMemberNotFound
				}
				return err
			}
			if err := tx.Model(&memberModel{}).
				Where("id = ?", member.ID).
				Updates(map[string]any{
					"equity_percentage": update.NewPercentage,
					"version":           member.Version + 1,
					"updated_at":        ledger.OccurredAt,
				}).Error; err != nil {
				return err
			}
			history := equityEventModel{
				ID:                 uuid.NewString(),
				MemberID:           member.ID,
				CompanyID:          member.CompanyID,
				EventType:          "BOARD_APPROVED_UPDATE",
				PreviousPercentage: member.EquityPercentage,
				NewPercentage:      update.NewPercentage,
				EffectiveDate:      approval.EffectiveDate.UTC(),
				Reason:             update.ChangeReason,
				ApprovalID:         approval.ID,
				ChangedBy:          approval.ApprovedBy,
				CreatedAt:          ledger.OccurredAt,
			}
			if err := tx.Create(&history).Error; err != nil {
				return err
			}
		}

		result := tx.Model(&approvalModel{}).
			Where("id = ?", approval.ID).
			Where("status = ?", string(entities.ApprovalStatusApproved)).
			Updates(map[string]any{
				"status":     string(entities.ApprovalStatusApplied),
				"applied_at": approval.AppliedAt,
				"updated_at": approval.UpdatedAt.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrIllegalTransition
		}
		return tx.Create(&ledger).Error
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrMemberNotFound) || errors.Is(err, domainerrors.ErrIllegalTransition) {
			return ports.AppendedEvent{}, err
		}
		return ports.AppendedEvent{}, r.logError("approval_repo_apply_failed", err,
			"approval_id", approval.ID,
			"update_count", len(approval.Updates),
		)
	}
	return ports.AppendedEvent{
		EventID:    ledger.EventID,
		EventType:  ledger.EventType,
		Sequence:   ledger.Sequence,
		OccurredAt: ledger.OccurredAt.UTC(),
		Payload:    append([]byte(nil), ledger.Payload...),
	}, nil
}

func (r *Repository) ListMembers(ctx context.Context, companyID string) ([]entities.MemberSnapshot, error) {
	var rows []memberModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", strings.TrimSpace(companyID)).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("approval_repo_list_members_failed", err,
			"company_id", strings.TrimSpace(companyID),
		)
	}
	members := make([]entities.MemberSnapshot, 0, len(rows))
	for _, row := range rows {
		members = append(members, entities.MemberSnapshot{
			ID:         row.ID,
			Name:       row.Name,
			Percentage: row.EquityPercentage,
			Status:     row.Status,
		})
	}
	return members, nil
}

func (r *Repository) listUpdates(ctx context.Context, approvalID string) ([]entities.EquityUpdate, error) {
	var rows []equityUpdateModel
	if err := r.db.WithContext(ctx).
		Where("approval_id = ?", approvalID).
		Order("member_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("approval_repo_list_updates_failed", err,
			"approval_id", approvalID,
		)
	}
	updates := make([]entities.EquityUpdate, 0, len(rows))
	for _, row := range rows {
		update, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		updates = append(updates, update)
	}
	return updates, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+7)
	fields = append(fields,
		"event", event,
		"module", "equity-core/board-approval-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("board approval repository failure", fields...)
	return err
}

type approvalModel struct {
	ID                string          `gorm:"column:id;primaryKey"`
	CompanyID         string          `gorm:"column:company_id;index"`
	Title             string          `gorm:"column:title"`
	ApprovalType      string          `gorm:"column:approval_type"`
	Status            string          `gorm:"column:status;index"`
	EffectiveDate     time.Time       `gorm:"column:effective_date"`
	TotalEquityBefore decimal.Decimal `gorm:"column:total_equity_before;type:numeric(9,4)"`
	TotalEquityAfter  decimal.Decimal `gorm:"column:total_equity_after;type:numeric(9,4)"`
	CreatedBy         string          `gorm:"column:created_by"`
	CreatedAt         time.Time       `gorm:"column:created_at"`
	ApprovedBy        string          `gorm:"column:approved_by"`
	ApprovalDate      *time.Time      `gorm:"column:approval_date"`
	RejectionReason   string          `gorm:"column:rejection_reason"`
	DecidedAt         *time.Time      `gorm:"column:decided_at"`
	AppliedAt         *time.Time      `gorm:"column:applied_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at"`
}

func (approvalModel) TableName() string {
	return "board_approvals"
}

func approvalModelFromEntity(approval entities.BoardApproval) approvalModel {
	return approvalModel{
		ID:                strings.TrimSpace(approval.ID),
		CompanyID:         strings.TrimSpace(approval.CompanyID),
		Title:             approval.Title,
		ApprovalType:      string(approval.ApprovalType),
		Status:            string(approval.Status),
		EffectiveDate:     approval.EffectiveDate.UTC(),
		TotalEquityBefore: approval.TotalEquityBefore,
		TotalEquityAfter:  approval.TotalEquityAfter,
		CreatedBy:         approval.CreatedBy,
		CreatedAt:         approval.CreatedAt.UTC(),
		ApprovedBy:        approval.ApprovedBy,
		ApprovalDate:      approval.ApprovalDate,
		RejectionReason:   approval.RejectionReason,
		DecidedAt:         approval.DecidedAt,
		AppliedAt:         approval.AppliedAt,
		UpdatedAt:         approval.UpdatedAt.UTC(),
	}
}

func (m approvalModel) toEntity() entities.BoardApproval {
	return entities.BoardApproval{
		ID:                m.ID,
		CompanyID:         m.CompanyID,
		Title:             m.Title,
		ApprovalType:      entities.ApprovalType(m.ApprovalType),
		Status:            entities.ApprovalStatus(m.Status),
		EffectiveDate:     m.EffectiveDate.UTC(),
		TotalEquityBefore: m.TotalEquityBefore,
		TotalEquityAfter:  m.TotalEquityAfter,
		CreatedBy:         m.CreatedBy,
		CreatedAt:         m.CreatedAt.UTC(),
		ApprovedBy:        m.ApprovedBy,
		ApprovalDate:      m.ApprovalDate,
		RejectionReason:   m.RejectionReason,
		DecidedAt:         m.DecidedAt,
		AppliedAt:         m.AppliedAt,
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

type equityUpdateModel struct {
	ID                 string          `gorm:"column:id;primaryKey"`
	ApprovalID         string          `gorm:"column:approval_id;index"`
	MemberID           string          `gorm:"column:member_id;index"`
	PreviousPercentage decimal.Decimal `gorm:"column:previous_percentage;type:numeric(9,4)"`
	NewPercentage      decimal.Decimal `gorm:"column:new_percentage;type:numeric(9,4)"`
	ChangePercentage   decimal.Decimal `gorm:"column:change_percentage;type:numeric(9,4)"`
	ChangeReason       string          `gorm:"column:change_reason"`
	Warnings           []byte          `gorm:"column:warnings;type:jsonb"`
}

func (equityUpdateModel) TableName() string {
	return "board_equity_updates"
}

func equityUpdateModelFromEntity(update entities.EquityUpdate) (equityUpdateModel, error) {
	warnings, err := json.Marshal(update.Warnings)
	if err != nil {
		return equityUpdateModel{}, err
	}
	return equityUpdateModel{
		ID:                 strings.TrimSpace(update.ID),
		ApprovalID:         strings.TrimSpace(update.ApprovalID),
		MemberID:           strings.TrimSpace(update.MemberID),
		PreviousPercentage: update.PreviousPercentage,
		NewPercentage:      update.NewPercentage,
		ChangePercentage:   update.ChangePercentage,
		ChangeReason:       update.ChangeReason,
		Warnings:           warnings,
	}, nil
}

func (m equityUpdateModel) toEntity() (entities.EquityUpdate, error) {
	var warnings []string
	if len(m.Warnings) > 0 {
		if err := json.Unmarshal(m.Warnings, &warnings); err != nil {
			return entities.EquityUpdate{}, err
		}
	}
	return entities.EquityUpdate{
		ID:                 m.ID,
		ApprovalID:         m.ApprovalID,
		MemberID:           m.MemberID,
		PreviousPercentage: m.PreviousPercentage,
		NewPercentage:      m.NewPercentage,
		ChangePercentage:   m.ChangePercentage,
		ChangeReason:       m.ChangeReason,
		Warnings:           warnings,
	}, nil
}

// memberModel and equityEventModel mirror the member registry's tables so
// the apply transaction can join them with the approval flip.
type memberModel struct {
	ID               string          `gorm:"column:id;primaryKey"`
	CompanyID        string          `gorm:"column:company_id"`
	Name             string          `gorm:"column:name"`
	EquityPercentage decimal.Decimal `gorm:"column:equity_percentage"`
	Status           string          `gorm:"column:status"`
	Version          int64           `gorm:"column:version"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

func (memberModel) TableName() string {
	return "members"
}

type equityEventModel struct {
	ID                 string          `gorm:"column:id;primaryKey"`
	MemberID           string          `gorm:"column:member_id;index"`
	CompanyID          string          `gorm:"column:company_id;index"`
	EventType          string          `gorm:"column:event_type"`
	PreviousPercentage decimal.Decimal `gorm:"column:previous_percentage;type:numeric(9,4)"`
	NewPercentage      decimal.Decimal `gorm:"column:new_percentage;type:numeric(9,4)"`
	EffectiveDate      time.Time       `gorm:"column:effective_date"`
	Reason             string          `gorm:"column:reason"`
	ApprovalID         string          `gorm:"column:approval_id"`
	ChangedBy          string          `gorm:"column:changed_by"`
	CreatedAt          time.Time       `gorm:"column:created_at"`
}

func (equityEventModel) TableName() string {
	return "member_equity_events"
}

type ledgerEventModel struct {
	Sequence      int64     `gorm:"column:sequence;primaryKey;autoIncrement"`
	EventID       string    `gorm:"column:event_id"`
	AggregateID   string    `gorm:"column:aggregate_id"`
	AggregateType string    `gorm:"column:aggregate_type"`
	EventType     string    `gorm:"column:event_type"`
	EventVersion  int       `gorm:"column:event_version"`
	OccurredAt    time.Time `gorm:"column:occurred_at"`
	UserID        string    `gorm:"column:user_id"`
	CorrelationID string    `gorm:"column:correlation_id"`
	Payload       []byte    `gorm:"column:payload;type:jsonb"`
}

func (ledgerEventModel) TableName() string {
	return "domain_events"
}

var _ ports.Repository = (*Repository)(nil)
var _ ports.MemberDirectory = (*Repository)(nil)
