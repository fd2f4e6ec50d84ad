package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"equitas/contexts/equity-core/distribution-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/distribution-service/domain/errors"
	"equitas/contexts/equity-core/distribution-service/domain/services"
	"equitas/contexts/equity-core/distribution-service/ports"

	"github.com/shopspring/decimal"
)

const (
	EventTypeDistributionCalculated = "distribution.calculated"

	aggregateTypeDistribution = "distribution"
	sourceService             = "distribution-service"
)

type CalculationResult struct {
	CompanyID       string
	ProfitID        string
	TotalAmount     decimal.Decimal
	TotalCalculated decimal.Decimal
	Allocations     []services.Allocation
}

type CreateDistributionCommand struct {
	CompanyID      string
	ProfitID       string
	OverrideAmount *decimal.Decimal
	CreatedBy      string
	CorrelationID  string
}

type Service struct {
	Profits    ports.ProfitRepository
	Members    ports.MemberDirectory
	Repository ports.Repository
	Dispatcher ports.EventDispatcher
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	// Tolerance is the reconciliation tolerance in currency units.
	Tolerance decimal.Decimal
	Logger    *slog.Logger
}

// Calculate runs the split without committing anything.
func (s Service) Calculate(ctx context.Context, companyID string, profitID string, overrideAmount *decimal.Decimal) (CalculationResult, error) {
	logger := ResolveLogger(s.Logger)
	companyID = strings.TrimSpace(companyID)
	profitID = strings.TrimSpace(profitID)
	if companyID == "" || profitID == "" {
		return CalculationResult{}, domainerrors.ErrInvalidDistributionInput
	}

	profit, err := s.Profits.GetProfit(ctx, profitID)
	if err != nil {
		return CalculationResult{}, err
	}
	if profit.CompanyID != companyID {
		logger.Warn("profit record company mismatch",
			"event", "distribution_company_mismatch",
			"module", "equity-core/distribution-service",
			"layer", "application",
			"profit_id", profitID,
			"company_id", companyID,
			"owner_company_id", profit.CompanyID,
		)
		return CalculationResult{}, domainerrors.ErrCompanyMismatch
	}

	total := profit.DistributableAmount
	if overrideAmount != nil {
		total = *overrideAmount
	}

	stakes, err := s.Members.ListActiveStakes(ctx, companyID)
	if err != nil {
		return CalculationResult{}, err
	}

	allocations, totalCalculated, err := services.Allocate(total, stakes, s.Tolerance)
	if err != nil {
		logger.Warn("distribution calculation rejected",
			"event", "distribution_calculation_rejected",
			"module", "equity-core/distribution-service",
			"layer", "application",
			"profit_id", profitID,
			"company_id", companyID,
			"total", total.String(),
			"total_calculated", totalCalculated.String(),
			"error", err.Error(),
		)
		return CalculationResult{}, err
	}

	return CalculationResult{
		CompanyID:       companyID,
		ProfitID:        profitID,
		TotalAmount:     total,
		TotalCalculated: totalCalculated,
		Allocations:     allocations,
	}, nil
}

// Create wraps Calculate in one transaction creating the Distribution parent
// and all MemberDistribution children, then dispatches the committed
// distribution.calculated event with the full per-member breakdown.
func (s Service) Create(ctx context.Context, cmd CreateDistributionCommand) (entities.Distribution, []entities.MemberDistribution, error) {
	logger := ResolveLogger(s.Logger)

	result, err := s.Calculate(ctx, cmd.CompanyID, cmd.ProfitID, cmd.OverrideAmount)
	if err != nil {
		return entities.Distribution{}, nil, err
	}

	distributionID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.Distribution{}, nil, err
	}
	now := s.now()

	distribution := entities.Distribution{
		ID:              distributionID,
		CompanyID:       result.CompanyID,
		ProfitID:        result.ProfitID,
		TotalAmount:     result.TotalAmount,
		TotalCalculated: result.TotalCalculated,
		Status:          entities.DistributionStatusCalculated,
		CalculatedAt:    now,
	}

	shares := make([]entities.MemberDistribution, 0, len(result.Allocations))
	type sharePayload struct {
		MemberID       string          `json:"member_id"`
		Percentage     decimal.Decimal `json:"percentage"`
		Amount         decimal.Decimal `json:"amount"`
		TaxWithholding decimal.Decimal `json:"tax_withholding"`
		NetAmount      decimal.Decimal `json:"net_amount"`
	}
	breakdown := make([]sharePayload, 0, len(result.Allocations))
	for _, allocation := range result.Allocations {
		shareID, err := s.IDGen.NewID(ctx)
		if err != nil {
			return entities.Distribution{}, nil, err
		}
		shares = append(shares, entities.MemberDistribution{
			ID:             shareID,
			DistributionID: distributionID,
			MemberID:       allocation.MemberID,
			Percentage:     allocation.Percentage,
			Amount:         allocation.Gross,
			TaxWithholding: allocation.TaxWithholding,
			NetAmount:      allocation.Net,
			PaymentStatus:  entities.PaymentStatusPending,
		})
		breakdown = append(breakdown, sharePayload{
			MemberID:       allocation.MemberID,
			Percentage:     allocation.Percentage,
			Amount:         allocation.Gross,
			TaxWithholding: allocation.TaxWithholding,
			NetAmount:      allocation.Net,
		})
	}

	payload, err := json.Marshal(map[string]any{
		"distribution_id":  distributionID,
		"company_id":       result.CompanyID,
		"profit_id":        result.ProfitID,
		"total_amount":     result.TotalAmount,
		"total_calculated": result.TotalCalculated,
		"shares":           breakdown,
	})
	if err != nil {
		return entities.Distribution{}, nil, err
	}

	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.Distribution{}, nil, err
	}
	appended, err := s.Repository.CreateDistribution(ctx, distribution, shares, ports.LedgerEventInput{
		EventID:       eventID,
		AggregateID:   distributionID,
		EventType:     EventTypeDistributionCalculated,
		OccurredAt:    now,
		UserID:        strings.TrimSpace(cmd.CreatedBy),
		CorrelationID: strings.TrimSpace(cmd.CorrelationID),
		Payload:       payload,
	})
	if err != nil {
		logger.Error("distribution create failed",
			"event", "distribution_create_failed",
			"module", "equity-core/distribution-service",
			"layer", "application",
			"distribution_id", distributionID,
			"profit_id", result.ProfitID,
			"error", err.Error(),
		)
		return entities.Distribution{}, nil, err
	}

	logger.Info("distribution created",
		"event", "distribution_created",
		"module", "equity-core/distribution-service",
		"layer", "application",
		"distribution_id", distributionID,
		"company_id", result.CompanyID,
		"total_amount", result.TotalAmount.String(),
		"total_calculated", result.TotalCalculated.String(),
		"member_count", len(shares),
		"sequence", appended.Sequence,
	)

	if s.Dispatcher != nil {
		if err := s.Dispatcher.Dispatch(ctx, ports.EventEnvelope{
			EventID:       appended.EventID,
			EventType:     appended.EventType,
			OccurredAt:    appended.OccurredAt,
			SourceService: sourceService,
			CorrelationID: strings.TrimSpace(cmd.CorrelationID),
			UserID:        strings.TrimSpace(cmd.CreatedBy),
			SchemaVersion: 1,
			AggregateType: aggregateTypeDistribution,
			AggregateID:   distributionID,
			Sequence:      appended.Sequence,
			Data:          appended.Payload,
		}); err != nil {
			logger.Warn("subscriber failed after durable commit",
				"event", "distribution_event_dispatch_failed",
				"module", "equity-core/distribution-service",
				"layer", "application",
				"distribution_id", distributionID,
				"event_id", appended.EventID,
				"error", err.Error(),
			)
			return distribution, shares, err
		}
	}
	return distribution, shares, nil
}

func (s Service) GetDistribution(ctx context.Context, distributionID string) (entities.Distribution, []entities.MemberDistribution, error) {
	if strings.TrimSpace(distributionID) == "" {
		return entities.Distribution{}, nil, domainerrors.ErrInvalidDistributionInput
	}
	return s.Repository.GetDistribution(ctx, strings.TrimSpace(distributionID))
}

func (s Service) ListByCompany(ctx context.Context, companyID string, limit int) ([]entities.Distribution, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, domainerrors.ErrInvalidDistributionInput
	}
	if limit <= 0 {
		limit = 50
	}
	return s.Repository.ListByCompany(ctx, strings.TrimSpace(companyID), limit)
}

func (s Service) MarkMemberPaid(ctx context.Context, distributionID string, memberID string) error {
	if strings.TrimSpace(distributionID) == "" || strings.TrimSpace(memberID) == "" {
		return domainerrors.ErrInvalidDistributionInput
	}
	return s.Repository.MarkMemberPaid(ctx, strings.TrimSpace(distributionID), strings.TrimSpace(memberID), s.now())
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}
