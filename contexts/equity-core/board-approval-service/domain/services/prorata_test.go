package services

import (
	"testing"

	"equitas/contexts/equity-core/board-approval-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/board-approval-service/domain/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func snapshot(id string, percentage string) entities.MemberSnapshot {
	return entities.MemberSnapshot{
		ID:         id,
		Percentage: decimal.RequireFromString(percentage),
		Status:     "ACTIVE",
	}
}

func adjustmentSum(allocations []ProRataAllocation) decimal.Decimal {
	sum := decimal.Zero
	for _, allocation := range allocations {
		sum = sum.Add(allocation.Adjustment)
	}
	return sum
}

func TestReallocateProportionalToCurrentStake(t *testing.T) {
	members := []entities.MemberSnapshot{
		snapshot("m-1", "60"),
		snapshot("m-2", "30"),
	}

	allocations, err := Reallocate(members, decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	// 60/90 and 30/90 of the 10 unallocated points.
	require.True(t, allocations[0].Adjustment.Equal(decimal.RequireFromString("6.6667")), "got %s", allocations[0].Adjustment)
	require.True(t, allocations[1].Adjustment.Equal(decimal.RequireFromString("3.3333")), "got %s", allocations[1].Adjustment)
	require.True(t, adjustmentSum(allocations).Equal(decimal.NewFromInt(10)))
}

func TestReallocateLastMemberAbsorbsResidual(t *testing.T) {
	members := []entities.MemberSnapshot{
		snapshot("m-1", "33.33"),
		snapshot("m-2", "33.33"),
		snapshot("m-3", "33.33"),
	}

	unallocated := decimal.RequireFromString("0.01")
	allocations, err := Reallocate(members, unallocated, nil)
	require.NoError(t, err)

	// Rounded equal thirds of 0.01 are 0.0033 each; the last member takes
	// the residual so the slice sums exactly.
	require.True(t, adjustmentSum(allocations).Equal(unallocated), "sum %s", adjustmentSum(allocations))
	require.True(t, allocations[2].Adjustment.Equal(decimal.RequireFromString("0.0034")), "got %s", allocations[2].Adjustment)
}

func TestReallocateExactSumProperty(t *testing.T) {
	members := []entities.MemberSnapshot{
		snapshot("m-1", "17.77"),
		snapshot("m-2", "29.13"),
		snapshot("m-3", "41.01"),
		snapshot("m-4", "3.09"),
	}

	for _, unallocated := range []string{"9", "-4.5", "0.0007", "12.3456"} {
		amount := decimal.RequireFromString(unallocated)
		allocations, err := Reallocate(members, amount, nil)
		require.NoError(t, err)
		require.True(t, adjustmentSum(allocations).Equal(amount),
			"unallocated %s: sum %s", unallocated, adjustmentSum(allocations))
	}
}

func TestReallocateEqualSplitOnZeroEligibleTotal(t *testing.T) {
	members := []entities.MemberSnapshot{
		snapshot("m-1", "0"),
		snapshot("m-2", "0"),
		snapshot("m-3", "0"),
	}

	allocations, err := Reallocate(members, decimal.NewFromInt(100), nil)
	require.NoError(t, err)
	require.True(t, allocations[0].Adjustment.Equal(decimal.RequireFromString("33.3333")), "got %s", allocations[0].Adjustment)
	require.True(t, allocations[2].Adjustment.Equal(decimal.RequireFromString("33.3334")), "got %s", allocations[2].Adjustment)
	require.True(t, adjustmentSum(allocations).Equal(decimal.NewFromInt(100)))
}

func TestReallocateExcludedMembersGetNothing(t *testing.T) {
	members := []entities.MemberSnapshot{
		snapshot("m-1", "50"),
		snapshot("m-2", "30"),
		snapshot("m-3", "20"),
	}

	allocations, err := Reallocate(members, decimal.NewFromInt(10), []string{"m-2"})
	require.NoError(t, err)
	require.Len(t, allocations, 3)
	for _, allocation := range allocations {
		if allocation.MemberID == "m-2" {
			require.True(t, allocation.Adjustment.IsZero(), "excluded member received %s", allocation.Adjustment)
			require.True(t, allocation.Final.Equal(decimal.NewFromInt(30)))
		}
	}
	require.True(t, adjustmentSum(allocations).Equal(decimal.NewFromInt(10)))
}

func TestReallocateClampsNegativeBelowZero(t *testing.T) {
	members := []entities.MemberSnapshot{
		snapshot("m-1", "10"),
		snapshot("m-2", "90"),
	}

	// Removing more than the members hold clamps each share at the member's
	// current stake instead of driving the final below zero.
	allocations, err := Reallocate(members, decimal.NewFromInt(-120), nil)
	require.NoError(t, err)
	for _, allocation := range allocations {
		require.False(t, allocation.Final.IsNegative(), "member %s went negative: %s", allocation.MemberID, allocation.Final)
		require.True(t, allocation.Final.IsZero())
		require.True(t, allocation.Adjustment.Equal(allocation.Current.Neg()))
	}
}

func TestReallocateEmptyEligibleSet(t *testing.T) {
	_, err := Reallocate(nil, decimal.NewFromInt(10), nil)
	require.ErrorIs(t, err, domainerrors.ErrNoEligibleMembers)

	members := []entities.MemberSnapshot{snapshot("m-1", "50")}
	_, err = Reallocate(members, decimal.NewFromInt(10), []string{"m-1"})
	require.ErrorIs(t, err, domainerrors.ErrNoEligibleMembers)
}

func TestAdjustToExactTotalAcceptsTinyDeviation(t *testing.T) {
	allocations := []ProRataAllocation{
		{MemberID: "m-1", Final: decimal.RequireFromString("60.00002")},
		{MemberID: "m-2", Final: decimal.RequireFromString("39.99999")},
	}

	adjusted := AdjustToExactTotal(allocations, decimal.NewFromInt(100))
	require.True(t, adjusted[0].Final.Equal(allocations[0].Final))
	require.True(t, adjusted[1].Final.Equal(allocations[1].Final))
}

func TestAdjustToExactTotalLargestAbsorbsDelta(t *testing.T) {
	allocations := []ProRataAllocation{
		{MemberID: "m-1", Final: decimal.RequireFromString("59.99")},
		{MemberID: "m-2", Final: decimal.RequireFromString("39.99")},
	}

	adjusted := AdjustToExactTotal(allocations, decimal.NewFromInt(100))
	require.True(t, adjusted[0].Final.Equal(decimal.RequireFromString("60.01")), "got %s", adjusted[0].Final)
	require.True(t, adjusted[1].Final.Equal(decimal.RequireFromString("39.99")))

	sum := decimal.Zero
	for _, allocation := range adjusted {
		sum = sum.Add(allocation.Final)
	}
	require.True(t, sum.Equal(decimal.NewFromInt(100)))
}
