package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"equitas/contexts/equity-core/member-registry-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/member-registry-service/domain/errors"
	"equitas/contexts/equity-core/member-registry-service/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
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

// CreateMember writes the member row, the INITIAL_GRANT history entry and the
// paired ledger event in one transaction.
func (r *Repository) CreateMember(ctx context.Context, member entities.Member, changedBy string, correlationID string) (ports.AppendedEvent, error) {
	payload := entities.ChangePayload{
		MemberID:           member.ID,
		CompanyID:          member.CompanyID,
		ChangeType:         string(entities.EquityEventInitialGrant),
		PreviousPercentage: decimal.Zero,
		NewPercentage:      member.EquityPercentage,
		EffectiveDate:      member.JoinDate,
		Reason:             "initial grant",
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ports.AppendedEvent{}, err
	}

	now := member.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ledgerRow := ledgerEventModel{
		EventID:       uuid.NewString(),
		AggregateID:   member.ID,
		AggregateType: "member",
		EventType:     "member.created",
		EventVersion:  1,
		OccurredAt:    now,
		UserID:        strings.TrimSpace(changedBy),
		CorrelationID: strings.TrimSpace(correlationID),
		Payload:       raw,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := memberModelFromEntity(member)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrMemberExists
			}
			return err
		}
		history := equityEventModel{
			ID:                 uuid.NewString(),
			MemberID:           member.ID,
			CompanyID:          member.CompanyID,
			EventType:          string(entities.EquityEventInitialGrant),
			PreviousPercentage: decimal.Zero,
			NewPercentage:      member.EquityPercentage,
			EffectiveDate:      member.JoinDate.UTC(),
			Reason:             "initial grant",
			ChangedBy:          strings.TrimSpace(changedBy),
			CreatedAt:          now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}
		return tx.Create(&ledgerRow).Error
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrMemberExists) {
			return ports.AppendedEvent{}, err
		}
		return ports.AppendedEvent{}, r.logError("member_repo_create_failed", err,
			"member_id", member.ID,
			"company_id", member.CompanyID,
		)
	}
	return ledgerRow.appended(), nil
}

// ApplyEquityChange locks the member row, captures the previous percentage
// inside the transaction and writes the member update, the EquityEvent and
// the ledger event atomically. Version is an optimistic stamp: a caller that
// read version N only succeeds while the row is still at N.
func (r *Repository) ApplyEquityChange(ctx context.Context, change ports.EquityChange) (entities.Member, ports.AppendedEvent, error) {
	var (
		updated entities.Member
		ledger  ledgerEventModel
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row memberModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", strings.TrimSpace(change.MemberID)).
			First(&row).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrMemberNotFound
			}
			return err
		}

		member := row.toEntity()
		if change.ExpectedVersion > 0 && member.Version != change.ExpectedVersion {
			return domainerrors.ErrVersionConflict
		}
		if member.Status == entities.MemberStatusRetired {
			return domainerrors.ErrMemberRetired
		}

		now := time.Now().UTC()
		previous := member.EquityPercentage
		member.EquityPercentage = change.NewPercentage
		member.Version++
		member.UpdatedAt = now
		if change.Retire {
			member.Status = entities.MemberStatusRetired
			retiredAt := change.EffectiveDate.UTC()
			member.RetirementDate = &retiredAt
		}

		if err := tx.Model(&memberModel{}).
			Where("id = ?", member.ID).
			Updates(memberUpdatesFromEntity(member)).
			Error; err != nil {
			return err
		}

		history := equityEventModel{
			ID:                 uuid.NewString(),
			MemberID:           member.ID,
			CompanyID:          member.CompanyID,
			EventType:          string(change.EventType),
			PreviousPercentage: previous,
			NewPercentage:      change.NewPercentage,
			EffectiveDate:      change.EffectiveDate.UTC(),
			Reason:             change.Reason,
			ApprovalID:         change.ApprovalID,
			ChangedBy:          change.ChangedBy,
			CreatedAt:          now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}

		raw, err := json.Marshal(entities.ChangePayload{
			MemberID:           member.ID,
			CompanyID:          member.CompanyID,
			ChangeType:         string(change.EventType),
			PreviousPercentage: previous,
			NewPercentage:      change.NewPercentage,
			EffectiveDate:      change.EffectiveDate.UTC(),
			Reason:             change.Reason,
			ApprovalID:         change.ApprovalID,
		})
		if err != nil {
			return err
		}
		ledger = ledgerEventModel{
			EventID:       uuid.NewString(),
			AggregateID:   member.ID,
			AggregateType: "member",
			EventType:     change.DomainEventType,
			EventVersion:  1,
			OccurredAt:    now,
			UserID:        change.ChangedBy,
			CorrelationID: change.CorrelationID,
			Payload:       raw,
		}
		if err := tx.Create(&ledger).Error; err != nil {
			return err
		}

		updated = member
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrMemberNotFound) ||
			errors.Is(err, domainerrors.ErrVersionConflict) ||
			errors.Is(err, domainerrors.ErrMemberRetired) {
			return entities.Member{}, ports.AppendedEvent{}, err
		}
		return entities.Member{}, ports.AppendedEvent{}, r.logError("member_repo_equity_change_failed", err,
			"member_id", strings.TrimSpace(change.MemberID),
			"change_type", string(change.EventType),
		)
	}
	return updated, ledger.appended(), nil
}

func (r *Repository) GetMember(ctx context.Context, memberID string) (entities.Member, error) {
	var row memberModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(memberID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Member{}, domainerrors.ErrMemberNotFound
		}
		return entities.Member{}, r.logError("member_repo_get_failed", err,
			"member_id", strings.TrimSpace(memberID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) ListActiveMembers(ctx context.Context, companyID string) ([]entities.Member, error) {
	var rows []memberModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", strings.TrimSpace(companyID)).
		Where("status = ?", string(entities.MemberStatusActive)).
		Where("equity_percentage > 0").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("member_repo_list_active_failed", err,
			"company_id", strings.TrimSpace(companyID),
		)
	}
	return toMemberEntities(rows), nil
}

func (r *Repository) ListVotingMembers(ctx context.Context, companyID string) ([]entities.Member, error) {
	var rows []memberModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", strings.TrimSpace(companyID)).
		Where("status IN ?", []string{
			string(entities.MemberStatusActive),
			string(entities.MemberStatusProbationary),
		}).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("member_repo_list_voting_failed", err,
			"company_id", strings.TrimSpace(companyID),
		)
	}
	return toMemberEntities(rows), nil
}

func (r *Repository) ListEquityEvents(ctx context.Context, memberID string) ([]entities.EquityEvent, error) {
	var rows []equityEventModel
	if err := r.db.WithContext(ctx).
		Where("member_id = ?", strings.TrimSpace(memberID)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("member_repo_list_equity_events_failed", err,
			"member_id", strings.TrimSpace(memberID),
		)
	}
	events := make([]entities.EquityEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEntity())
	}
	return events, nil
}

func (r *Repository) SumActiveEquity(ctx context.Context, companyID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.db.WithContext(ctx).
		Model(&memberModel{}).
		Select("COALESCE(SUM(equity_percentage), 0)").
		Where("company_id = ?", strings.TrimSpace(companyID)).
		Where("status = ?", string(entities.MemberStatusActive)).
		Scan(&total).Error; err != nil {
		return decimal.Zero, r.logError("member_repo_sum_active_equity_failed", err,
			"company_id", strings.TrimSpace(companyID),
		)
	}
	return total, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+7)
	fields = append(fields,
		"event", event,
		"module", "equity-core/member-registry-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("member repository failure", fields...)
	return err
}

type memberModel struct {
	ID               string          `gorm:"column:id;primaryKey"`
	CompanyID        string          `gorm:"column:company_id;index"`
	Name             string          `gorm:"column:name"`
	EquityPercentage decimal.Decimal `gorm:"column:equity_percentage;type:numeric(9,4)"`
	TaxRate          decimal.Decimal `gorm:"column:tax_rate;type:numeric(9,4)"`
	Status           string          `gorm:"column:status;index"`
	Version          int64           `gorm:"column:version"`
	JoinDate         time.Time       `gorm:"column:join_date"`
	RetirementDate   *time.Time      `gorm:"column:retirement_date"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

func (memberModel) TableName() string {
	return "members"
}

func memberModelFromEntity(member entities.Member) memberModel {
	return memberModel{
		ID:               strings.TrimSpace(member.ID),
		CompanyID:        strings.TrimSpace(member.CompanyID),
		Name:             strings.TrimSpace(member.Name),
		EquityPercentage: member.EquityPercentage,
		TaxRate:          member.TaxRate,
		Status:           string(member.Status),
		Version:          member.Version,
		JoinDate:         member.JoinDate.UTC(),
		RetirementDate:   normalizeOptionalTime(member.RetirementDate),
		UpdatedAt:        member.UpdatedAt.UTC(),
	}
}

func memberUpdatesFromEntity(member entities.Member) map[string]any {
	row := memberModelFromEntity(member)
	return map[string]any{
		"equity_percentage": row.EquityPercentage,
		"status":            row.Status,
		"version":           row.Version,
		"retirement_date":   row.RetirementDate,
		"updated_at":        row.UpdatedAt,
	}
}

func (m memberModel) toEntity() entities.Member {
	return entities.Member{
		ID:               m.ID,
		CompanyID:        m.CompanyID,
		Name:             m.Name,
		EquityPercentage: m.EquityPercentage,
		TaxRate:          m.TaxRate,
		Status:           entities.MemberStatus(m.Status),
		Version:          m.Version,
		JoinDate:         m.JoinDate.UTC(),
		RetirementDate:   normalizeOptionalTime(m.RetirementDate),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

func toMemberEntities(rows []memberModel) []entities.Member {
	members := make([]entities.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, row.toEntity())
	}
	return members
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

func (m equityEventModel) toEntity() entities.EquityEvent {
	return entities.EquityEvent{
		ID:                 m.ID,
		MemberID:           m.MemberID,
		CompanyID:          m.CompanyID,
		EventType:          entities.EquityEventType(m.EventType),
		PreviousPercentage: m.PreviousPercentage,
		NewPercentage:      m.NewPercentage,
		EffectiveDate:      m.EffectiveDate.UTC(),
		Reason:             m.Reason,
		ApprovalID:         m.ApprovalID,
		ChangedBy:          m.ChangedBy,
		CreatedAt:          m.CreatedAt.UTC(),
	}
}

// ledgerEventModel mirrors the domain_events table owned by the event ledger
// so the paired append can join the member transaction.
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

func (m ledgerEventModel) appended() ports.AppendedEvent {
	return ports.AppendedEvent{
		EventID:    m.EventID,
		EventType:  m.EventType,
		Sequence:   m.Sequence,
		OccurredAt: m.OccurredAt.UTC(),
		Payload:    append([]byte(nil), m.Payload...),
	}
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	normalized := value.UTC()
	return &normalized
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.Repository = (*Repository)(nil)
