package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"equitas/contexts/equity-core/distribution-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/distribution-service/domain/errors"
	"equitas/contexts/equity-core/distribution-service/ports"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
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

func (r *Repository) GetProfit(ctx context.Context, profitID string) (entities.ProfitRecord, error) {
	var row profitRecordModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(profitID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ProfitRecord{}, domainerrors.ErrProfitNotFound
		}
		return entities.ProfitRecord{}, r.logError("distribution_repo_get_profit_failed", err,
			"profit_id", strings.TrimSpace(profitID),
		)
	}
	return row.toEntity(), nil
}

// ListActiveStakes reads the member registry's table read-only, the same way
// other modules consume projections.
func (r *Repository) ListActiveStakes(ctx context.Context, companyID string) ([]entities.MemberStake, error) {
	var rows []memberStakeModel
	if err := r.db.WithContext(ctx).
		Table("members").
		Select("id", "equity_percentage", "tax_rate").
		Where("company_id = ?", strings.TrimSpace(companyID)).
		Where("status = ?", "ACTIVE").
		Where("equity_percentage > 0").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("distribution_repo_list_stakes_failed", err,
			"company_id", strings.TrimSpace(companyID),
		)
	}
	stakes := make([]entities.MemberStake, 0, len(rows))
	for _, row := range rows {
		stakes = append(stakes, entities.MemberStake{
			MemberID:   row.ID,
			Percentage: row.EquityPercentage,
			TaxRate:    row.TaxRate,
		})
	}
	return stakes, nil
}

func (r *Repository) CreateDistribution(ctx context.Context, distribution entities.Distribution, shares []entities.MemberDistribution, event ports.LedgerEventInput) (ports.AppendedEvent, error) {
	ledger := ledgerEventModel{
		EventID:       event.EventID,
		AggregateID:   event.AggregateID,
		AggregateType: "distribution",
		EventType:     event.EventType,
		EventVersion:  1,
		OccurredAt:    event.OccurredAt.UTC(),
		UserID:        event.UserID,
		CorrelationID: event.CorrelationID,
		Payload:       append([]byte(nil), event.Payload...),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent := distributionModelFromEntity(distribution)
		if err := tx.Create(&parent).Error; err != nil {
			return err
		}
		for _, share := range shares {
			row := memberDistributionModelFromEntity(share)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return tx.Create(&ledger).Error
	})
	if err != nil {
		return ports.AppendedEvent{}, r.logError("distribution_repo_create_failed", err,
			"distribution_id", distribution.ID,
			"profit_id", distribution.ProfitID,
			"member_count", len(shares),
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

func (r *Repository) GetDistribution(ctx context.Context, distributionID string) (entities.Distribution, []entities.MemberDistribution, error) {
	var parent distributionModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(distributionID)).
		First(&parent).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Distribution{}, nil, domainerrors.ErrDistributionNotFound
		}
		return entities.Distribution{}, nil, r.logError("distribution_repo_get_failed", err,
			"distribution_id", strings.TrimSpace(distributionID),
		)
	}

	var children []memberDistributionModel
	if err := r.db.WithContext(ctx).
		Where("distribution_id = ?", parent.ID).
		Order("member_id ASC").
		Find(&children).Error; err != nil {
		return entities.Distribution{}, nil, r.logError("distribution_repo_get_shares_failed", err,
			"distribution_id", parent.ID,
		)
	}

	shares := make([]entities.MemberDistribution, 0, len(children))
	for _, child := range children {
		shares = append(shares, child.toEntity())
	}
	return parent.toEntity(), shares, nil
}

func (r *Repository) ListByCompany(ctx context.Context, companyID string, limit int) ([]entities.Distribution, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []distributionModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", strings.TrimSpace(companyID)).
		Order("calculated_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("distribution_repo_list_failed", err,
			"company_id", strings.TrimSpace(companyID),
		)
	}
	distributions := make([]entities.Distribution, 0, len(rows))
	for _, row := range rows {
		distributions = append(distributions, row.toEntity())
	}
	return distributions, nil
}

func (r *Repository) MarkMemberPaid(ctx context.Context, distributionID string, memberID string, paidAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&memberDistributionModel{}).
		Where("distribution_id = ?", strings.TrimSpace(distributionID)).
		Where("member_id = ?", strings.TrimSpace(memberID)).
		Where("payment_status = ?", string(entities.PaymentStatusPending)).
		Updates(map[string]any{
			"payment_status": string(entities.PaymentStatusPaid),
			"paid_at":        paidAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("distribution_repo_mark_paid_failed", result.Error,
			"distribution_id", strings.TrimSpace(distributionID),
			"member_id", strings.TrimSpace(memberID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrMemberShareNotFound
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+7)
	fields = append(fields,
		"event", event,
		"module", "equity-core/distribution-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("distribution repository failure", fields...)
	return err
}

type profitRecordModel struct {
	ID                  string          `gorm:"column:id;primaryKey"`
	CompanyID           string          `gorm:"column:company_id;index"`
	Period              string          `gorm:"column:period"`
	DistributableAmount decimal.Decimal `gorm:"column:distributable_amount;type:numeric(14,2)"`
	CreatedAt           time.Time       `gorm:"column:created_at"`
}

func (profitRecordModel) TableName() string {
	return "profit_records"
}

func (m profitRecordModel) toEntity() entities.ProfitRecord {
	return entities.ProfitRecord{
		ID:                  m.ID,
		CompanyID:           m.CompanyID,
		Period:              m.Period,
		DistributableAmount: m.DistributableAmount,
		CreatedAt:           m.CreatedAt.UTC(),
	}
}

type memberStakeModel struct {
	ID               string          `gorm:"column:id"`
	EquityPercentage decimal.Decimal `gorm:"column:equity_percentage"`
	TaxRate          decimal.Decimal `gorm:"column:tax_rate"`
}

type distributionModel struct {
	ID              string          `gorm:"column:id;primaryKey"`
	CompanyID       string          `gorm:"column:company_id;index"`
	ProfitID        string          `gorm:"column:profit_id;index"`
	TotalAmount     decimal.Decimal `gorm:"column:total_amount;type:numeric(14,2)"`
	TotalCalculated decimal.Decimal `gorm:"column:total_calculated;type:numeric(14,2)"`
	Status          string          `gorm:"column:status"`
	CalculatedAt    time.Time       `gorm:"column:calculated_at"`
}

func (distributionModel) TableName() string {
	return "distributions"
}

func distributionModelFromEntity(distribution entities.Distribution) distributionModel {
	return distributionModel{
		ID:              strings.TrimSpace(distribution.ID),
		CompanyID:       strings.TrimSpace(distribution.CompanyID),
		ProfitID:        strings.TrimSpace(distribution.ProfitID),
		TotalAmount:     distribution.TotalAmount,
		TotalCalculated: distribution.TotalCalculated,
		Status:          string(distribution.Status),
		CalculatedAt:    distribution.CalculatedAt.UTC(),
	}
}

func (m distributionModel) toEntity() entities.Distribution {
	return entities.Distribution{
		ID:              m.ID,
		CompanyID:       m.CompanyID,
		ProfitID:        m.ProfitID,
		TotalAmount:     m.TotalAmount,
		TotalCalculated: m.TotalCalculated,
		Status:          entities.DistributionStatus(m.Status),
		CalculatedAt:    m.CalculatedAt.UTC(),
	}
}

type memberDistributionModel struct {
	ID             string          `gorm:"column:id;primaryKey"`
	DistributionID string          `gorm:"column:distribution_id;index"`
	MemberID       string          `gorm:"column:member_id;index"`
	Percentage     decimal.Decimal `gorm:"column:percentage;type:numeric(9,4)"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(14,2)"`
	TaxWithholding decimal.Decimal `gorm:"column:tax_withholding;type:numeric(14,2)"`
	NetAmount      decimal.Decimal `gorm:"column:net_amount;type:numeric(14,2)"`
	PaymentStatus  string          `gorm:"column:payment_status"`
	PaidAt         *time.Time      `gorm:"column:paid_at"`
}

func (memberDistributionModel) TableName() string {
	return "member_distributions"
}

func memberDistributionModelFromEntity(share entities.MemberDistribution) memberDistributionModel {
	return memberDistributionModel{
		ID:             strings.TrimSpace(share.ID),
		DistributionID: strings.TrimSpace(share.DistributionID),
		MemberID:       strings.TrimSpace(share.MemberID),
		Percentage:     share.Percentage,
		Amount:         share.Amount,
		TaxWithholding: share.TaxWithholding,
		NetAmount:      share.NetAmount,
		PaymentStatus:  string(share.PaymentStatus),
		PaidAt:         share.PaidAt,
	}
}

func (m memberDistributionModel) toEntity() entities.MemberDistribution {
	return entities.MemberDistribution{
		ID:             m.ID,
		DistributionID: m.DistributionID,
		MemberID:       m.MemberID,
		Percentage:     m.Percentage,
		Amount:         m.Amount,
		TaxWithholding: m.TaxWithholding,
		NetAmount:      m.NetAmount,
		PaymentStatus:  entities.PaymentStatus(m.PaymentStatus),
		PaidAt:         m.PaidAt,
	}
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
var _ ports.ProfitRepository = (*Repository)(nil)
var _ ports.MemberDirectory = (*Repository)(nil)
