package services

import (
	"sort"

	"equitas/contexts/equity-core/distribution-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/distribution-service/domain/errors"

	"github.com/shopspring/decimal"
)

// DefaultReconciliationTolerance is the maximum accepted gap, in currency
// units, between the allocated sum and the requested pool.
var DefaultReconciliationTolerance = decimal.RequireFromString("0.10")

var oneHundred = decimal.NewFromInt(100)

// Allocation is one member's share of a distribution run.
type Allocation struct {
	MemberID       string
	Percentage     decimal.Decimal
	Gross          decimal.Decimal
	TaxWithholding decimal.Decimal
	Net            decimal.Decimal
}

// Allocate splits the pool proportionally to equity percentage in fixed-point
// decimal. Gross rounds down, which guarantees the allocated sum never
// exceeds the pool; tax rounds up, conservative for the payer. Stakes are
// processed in ascending member-id order so runs are deterministic.
//
// The reconciliation check rejects results whose allocated sum drifts from
// the pool by more than the tolerance; this catches pathological inputs such
// as near-zero percentages swallowing the pool through rounding.
func Allocate(total decimal.Decimal, stakes []entities.MemberStake, tolerance decimal.Decimal) ([]Allocation, decimal.Decimal, error) {
	if len(stakes) == 0 {
		return nil, decimal.Zero, domainerrors.ErrNoEligibleMembers
	}
	if !total.IsPositive() {
		return nil, decimal.Zero, domainerrors.ErrInvalidDistributionInput
	}
	if tolerance.IsZero() {
		tolerance = DefaultReconciliationTolerance
	}

	ordered := append([]entities.MemberStake(nil), stakes...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].MemberID < ordered[j].MemberID })

	allocations := make([]Allocation, 0, len(ordered))
	totalCalculated := decimal.Zero
	for _, stake := range ordered {
		gross := total.Mul(stake.Percentage).Div(oneHundred).RoundFloor(2)
		tax := gross.Mul(stake.TaxRate).Div(oneHundred).RoundCeil(2)
		allocations = append(allocations, Allocation{
			MemberID:       stake.MemberID,
			Percentage:     stake.Percentage,
			Gross:          gross,
			TaxWithholding: tax,
			Net:            gross.Sub(tax),
		})
		totalCalculated = totalCalculated.Add(gross)
	}

	if totalCalculated.Sub(total).Abs().GreaterThan(tolerance) {
		return nil, totalCalculated, domainerrors.ErrReconciliationFailed
	}
	return allocations, totalCalculated, nil
}
