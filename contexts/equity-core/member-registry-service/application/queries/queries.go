package queries

import (
	"context"
	"strings"

	"equitas/contexts/equity-core/member-registry-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/member-registry-service/domain/errors"
	"equitas/contexts/equity-core/member-registry-service/ports"

	"github.com/shopspring/decimal"
)

var defaultEquityTolerance = decimal.RequireFromString("0.01")

type UseCase struct {
	Repository ports.Repository
	// Tolerance is the maximum accepted deviation of the ACTIVE equity sum
	// from 100 percentage points.
	Tolerance decimal.Decimal
}

func (uc UseCase) GetMember(ctx context.Context, memberID string) (entities.Member, error) {
	if strings.TrimSpace(memberID) == "" {
		return entities.Member{}, domainerrors.ErrInvalidMemberInput
	}
	return uc.Repository.GetMember(ctx, strings.TrimSpace(memberID))
}

func (uc UseCase) ListActiveMembers(ctx context.Context, companyID string) ([]entities.Member, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, domainerrors.ErrInvalidMemberInput
	}
	return uc.Repository.ListActiveMembers(ctx, strings.TrimSpace(companyID))
}

func (uc UseCase) ListVotingMembers(ctx context.Context, companyID string) ([]entities.Member, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, domainerrors.ErrInvalidMemberInput
	}
	return uc.Repository.ListVotingMembers(ctx, strings.TrimSpace(companyID))
}

func (uc UseCase) EquityHistory(ctx context.Context, memberID string) ([]entities.EquityEvent, error) {
	if strings.TrimSpace(memberID) == "" {
		return nil, domainerrors.ErrInvalidMemberInput
	}
	return uc.Repository.ListEquityEvents(ctx, strings.TrimSpace(memberID))
}

// CheckEquityTotal verifies the committed-state invariant that ACTIVE
// members' percentages sum to 100 within tolerance.
func (uc UseCase) CheckEquityTotal(ctx context.Context, companyID string) (entities.EquityTotal, error) {
	if strings.TrimSpace(companyID) == "" {
		return entities.EquityTotal{}, domainerrors.ErrInvalidMemberInput
	}
	total, err := uc.Repository.SumActiveEquity(ctx, strings.TrimSpace(companyID))
	if err != nil {
		return entities.EquityTotal{}, err
	}

	tolerance := uc.Tolerance
	if tolerance.IsZero() {
		tolerance = defaultEquityTolerance
	}
	deviation := total.Sub(decimal.NewFromInt(100)).Abs()
	return entities.EquityTotal{
		CompanyID: strings.TrimSpace(companyID),
		Total:     total,
		Deviation: deviation,
		Balanced:  deviation.LessThanOrEqual(tolerance),
	}, nil
}
