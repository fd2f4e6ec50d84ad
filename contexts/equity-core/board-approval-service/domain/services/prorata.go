package services

import (
	"sort"

	"equitas/contexts/equity-core/board-approval-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/board-approval-service/domain/errors"

	"github.com/shopspring/decimal"
)

// ExactTotalEpsilon is the deviation below which AdjustToExactTotal accepts
// the allocations as-is.
var ExactTotalEpsilon = decimal.RequireFromString("0.0001")

const reallocationScale = 4

// ProRataAllocation is one member's adjusted stake after reallocation.
type ProRataAllocation struct {
	MemberID   string
	Current    decimal.Decimal
	Adjustment decimal.Decimal
	Final      decimal.Decimal
}

// Reallocate spreads the unallocated percentage across members not listed in
// excludeIDs, proportional to each member's current stake. Members are
// processed in ascending member-id order; every share is rounded to four
// decimals and the last eligible member takes the residual instead of its own
// rounded share, so the redistributed slice sums exactly to the unallocated
// amount. When the eligible members hold zero equity between them the amount
// is split equally. A negative share is clamped so no final stake drops
// below zero. Excluded members come back with a zero adjustment.
func Reallocate(members []entities.MemberSnapshot, unallocated decimal.Decimal, excludeIDs []string) ([]ProRataAllocation, error) {
	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	ordered := append([]entities.MemberSnapshot(nil), members...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var eligible []entities.MemberSnapshot
	totalEligible := decimal.Zero
	for _, member := range ordered {
		if _, skip := excluded[member.ID]; skip {
			continue
		}
		eligible = append(eligible, member)
		totalEligible = totalEligible.Add(member.Percentage)
	}
	if len(eligible) == 0 {
		return nil, domainerrors.ErrNoEligibleMembers
	}

	shares := make(map[string]decimal.Decimal, len(eligible))
	assigned := decimal.Zero
	equalSplit := totalEligible.IsZero()
	count := decimal.NewFromInt(int64(len(eligible)))
	for i, member := range eligible {
		var share decimal.Decimal
		if i == len(eligible)-1 {
			share = unallocated.Sub(assigned)
		} else if equalSplit {
			share = unallocated.Div(count).Round(reallocationScale)
		} else {
			share = unallocated.Mul(member.Percentage).Div(totalEligible).Round(reallocationScale)
		}
		if share.IsNegative() && share.Abs().GreaterThan(member.Percentage) {
			share = member.Percentage.Neg()
		}
		shares[member.ID] = share
		assigned = assigned.Add(share)
	}

	allocations := make([]ProRataAllocation, 0, len(ordered))
	for _, member := range ordered {
		share := shares[member.ID]
		allocations = append(allocations, ProRataAllocation{
			MemberID:   member.ID,
			Current:    member.Percentage,
			Adjustment: share,
			Final:      member.Percentage.Add(share),
		})
	}
	return allocations, nil
}

// AdjustToExactTotal is an independent safety pass over the whole set. If the
// sum of final stakes deviates from the target by less than ExactTotalEpsilon
// the allocations are returned untouched; otherwise the single largest final
// allocation absorbs the delta.
func AdjustToExactTotal(allocations []ProRataAllocation, target decimal.Decimal) []ProRataAllocation {
	if len(allocations) == 0 {
		return allocations
	}
	sum := decimal.Zero
	for _, allocation := range allocations {
		sum = sum.Add(allocation.Final)
	}
	delta := target.Sub(sum)
	if delta.Abs().LessThan(ExactTotalEpsilon) {
		return allocations
	}

	adjusted := append([]ProRataAllocation(nil), allocations...)
	largest := 0
	for i := range adjusted {
		if adjusted[i].Final.GreaterThan(adjusted[largest].Final) {
			largest = i
		}
	}
	adjusted[largest].Adjustment = adjusted[largest].Adjustment.Add(delta)
	adjusted[largest].Final = adjusted[largest].Final.Add(delta)
	return adjusted
}
