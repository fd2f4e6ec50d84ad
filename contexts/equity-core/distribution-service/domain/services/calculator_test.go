package services

import (
	"testing"

	"equitas/contexts/equity-core/distribution-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/distribution-service/domain/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func stake(id string, percentage string, taxRate string) entities.MemberStake {
	return entities.MemberStake{
		MemberID:   id,
		Percentage: decimal.RequireFromString(percentage),
		TaxRate:    decimal.RequireFromString(taxRate),
	}
}

func TestAllocateSplitsProportionally(t *testing.T) {
	stakes := []entities.MemberStake{
		stake("m-1", "40", "0"),
		stake("m-2", "35", "0"),
		stake("m-3", "25", "0"),
	}

	allocations, total, err := Allocate(decimal.NewFromInt(100000), stakes, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, allocations, 3)
	require.True(t, allocations[0].Gross.Equal(decimal.NewFromInt(40000)), "got %s", allocations[0].Gross)
	require.True(t, allocations[1].Gross.Equal(decimal.NewFromInt(35000)), "got %s", allocations[1].Gross)
	require.True(t, allocations[2].Gross.Equal(decimal.NewFromInt(25000)), "got %s", allocations[2].Gross)
	require.True(t, total.Equal(decimal.NewFromInt(100000)))
}

func TestAllocateSingleFullOwner(t *testing.T) {
	allocations, total, err := Allocate(decimal.NewFromInt(50000), []entities.MemberStake{stake("m-1", "100", "0")}, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	require.True(t, allocations[0].Gross.Equal(decimal.NewFromInt(50000)))
	require.True(t, total.Equal(decimal.NewFromInt(50000)))
}

func TestAllocateRoundsGrossDown(t *testing.T) {
	stakes := []entities.MemberStake{
		stake("m-1", "33.33", "0"),
		stake("m-2", "33.33", "0"),
		stake("m-3", "33.34", "0"),
	}

	allocations, total, err := Allocate(decimal.NewFromInt(10000), stakes, decimal.Zero)
	require.NoError(t, err)
	require.True(t, allocations[0].Gross.Equal(decimal.RequireFromString("3333.00")), "got %s", allocations[0].Gross)
	require.True(t, allocations[1].Gross.Equal(decimal.RequireFromString("3333.00")), "got %s", allocations[1].Gross)
	require.True(t, allocations[2].Gross.Equal(decimal.RequireFromString("3334.00")), "got %s", allocations[2].Gross)
	require.True(t, total.Equal(decimal.NewFromInt(10000)))
}

func TestAllocateTaxRoundsUp(t *testing.T) {
	allocations, _, err := Allocate(decimal.NewFromInt(10000), []entities.MemberStake{stake("m-1", "100", "15.555")}, decimal.Zero)
	require.NoError(t, err)

	// 10000 * 15.555% = 1555.50; ceil keeps it, net = gross - tax.
	require.True(t, allocations[0].TaxWithholding.Equal(decimal.RequireFromString("1555.50")), "got %s", allocations[0].TaxWithholding)
	require.True(t, allocations[0].Net.Equal(decimal.RequireFromString("8444.50")), "got %s", allocations[0].Net)

	allocations, _, err = Allocate(decimal.RequireFromString("999.99"), []entities.MemberStake{stake("m-1", "100", "7")}, decimal.Zero)
	require.NoError(t, err)
	// 999.99 * 7% = 69.9993, rounds up to 70.00.
	require.True(t, allocations[0].TaxWithholding.Equal(decimal.RequireFromString("70.00")), "got %s", allocations[0].TaxWithholding)
}

func TestAllocateGrossNeverExceedsPool(t *testing.T) {
	stakes := []entities.MemberStake{
		stake("m-1", "33.3333", "0"),
		stake("m-2", "33.3333", "0"),
		stake("m-3", "33.3334", "0"),
	}

	_, total, err := Allocate(decimal.RequireFromString("100.01"), stakes, decimal.Zero)
	require.NoError(t, err)
	require.True(t, total.LessThanOrEqual(decimal.RequireFromString("100.01")), "sum %s exceeds pool", total)
}

func TestAllocateRejectsReconciliationDrift(t *testing.T) {
	// A single near-zero stake swallows almost the whole pool through
	// floor rounding; the reconciliation check must refuse it.
	stakes := []entities.MemberStake{stake("m-1", "0.0001", "0")}

	_, _, err := Allocate(decimal.NewFromInt(10000), stakes, decimal.Zero)
	require.ErrorIs(t, err, domainerrors.ErrReconciliationFailed)
}

func TestAllocateDeterministicOrder(t *testing.T) {
	shuffled := []entities.MemberStake{
		stake("m-3", "25", "0"),
		stake("m-1", "40", "0"),
		stake("m-2", "35", "0"),
	}

	allocations, _, err := Allocate(decimal.NewFromInt(100000), shuffled, decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, "m-1", allocations[0].MemberID)
	require.Equal(t, "m-2", allocations[1].MemberID)
	require.Equal(t, "m-3", allocations[2].MemberID)
}

func TestAllocateInputValidation(t *testing.T) {
	_, _, err := Allocate(decimal.NewFromInt(1000), nil, decimal.Zero)
	require.ErrorIs(t, err, domainerrors.ErrNoEligibleMembers)

	_, _, err = Allocate(decimal.Zero, []entities.MemberStake{stake("m-1", "100", "0")}, decimal.Zero)
	require.ErrorIs(t, err, domainerrors.ErrInvalidDistributionInput)
}
