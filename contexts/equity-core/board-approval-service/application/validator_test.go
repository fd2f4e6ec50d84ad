package application

import (
	"testing"

	"equitas/contexts/equity-core/board-approval-service/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func member(id, percentage, status string) entities.MemberSnapshot {
	return entities.MemberSnapshot{
		ID:         id,
		Name:       "Member " + id,
		Percentage: decimal.RequireFromString(percentage),
		Status:     status,
	}
}

func update(memberID, newPercentage, reason string) UpdateInput {
	return UpdateInput{
		MemberID:      memberID,
		NewPercentage: decimal.RequireFromString(newPercentage),
		ChangeReason:  reason,
	}
}

func issueCodes(issues []entities.ValidationIssue) []string {
	codes := make([]string, 0, len(issues))
	for _, issue := range issues {
		codes = append(codes, issue.Code)
	}
	return codes
}

func TestValidateCleanUpdateSet(t *testing.T) {
	members := []entities.MemberSnapshot{
		member("m-1", "60", "ACTIVE"),
		member("m-2", "40", "ACTIVE"),
	}
	updates := []UpdateInput{
		update("m-1", "55", "performance rebalance"),
		update("m-2", "45", "performance rebalance"),
	}

	result := Validator{}.Validate(updates, members)
	require.True(t, result.Valid)
	require.Empty(t, result.Errors)
	require.Empty(t, result.Warnings)
	require.True(t, result.TotalBefore.Equal(decimal.NewFromInt(100)))
	require.True(t, result.TotalAfter.Equal(decimal.NewFromInt(100)))
}

func TestValidateUnknownAndDuplicateMembers(t *testing.T) {
	members := []entities.MemberSnapshot{member("m-1", "100", "ACTIVE")}
	updates := []UpdateInput{
		update("ghost", "10", "x"),
		update("m-1", "50", "x"),
		update("m-1", "50", "x"),
	}

	result := Validator{}.Validate(updates, members)
	require.False(t, result.Valid)
	require.Contains(t, issueCodes(result.Errors), "member_not_found")
	require.Contains(t, issueCodes(result.Errors), "duplicate_member")
}

func TestValidatePercentageOutOfRange(t *testing.T) {
	members := []entities.MemberSnapshot{
		member("m-1", "60", "ACTIVE"),
		member("m-2", "40", "ACTIVE"),
	}
	updates := []UpdateInput{
		update("m-1", "101", "x"),
		update("m-2", "-1", "x"),
	}

	result := Validator{}.Validate(updates, members)
	require.False(t, result.Valid)
	require.Equal(t, []string{"percentage_out_of_range", "percentage_out_of_range"}, issueCodes(result.Errors))
}

func TestValidateLargeChangeAndMissingReasonWarn(t *testing.T) {
	members := []entities.MemberSnapshot{
		member("m-1", "60", "ACTIVE"),
		member("m-2", "40", "ACTIVE"),
	}
	updates := []UpdateInput{
		update("m-1", "45", ""),
		update("m-2", "55", "promotion"),
	}

	result := Validator{}.Validate(updates, members)
	require.False(t, result.Valid, "warnings alone make the set invalid")
	require.Empty(t, result.Errors)
	codes := issueCodes(result.Warnings)
	require.Contains(t, codes, "large_change")
	require.Contains(t, codes, "missing_reason")
}

func TestValidateInactiveMemberHoldingEquityWarns(t *testing.T) {
	members := []entities.MemberSnapshot{
		member("m-1", "95", "ACTIVE"),
		member("m-2", "5", "RETIRED"),
	}
	updates := []UpdateInput{
		update("m-1", "95", ""),
		update("m-2", "5", ""),
	}

	result := Validator{}.Validate(updates, members)
	require.Contains(t, issueCodes(result.Warnings), "inactive_member_equity")
}

func TestValidateOmittedMemberFoldsIntoTotals(t *testing.T) {
	members := []entities.MemberSnapshot{
		member("m-1", "50", "ACTIVE"),
		member("m-2", "30", "ACTIVE"),
		member("m-3", "20", "ACTIVE"),
	}
	// m-3 is left out; its 20% carries over so the totals still balance.
	updates := []UpdateInput{
		update("m-1", "45", "rebalance"),
		update("m-2", "35", "rebalance"),
	}

	result := Validator{}.Validate(updates, members)
	require.Empty(t, result.Errors)
	require.Equal(t, []string{"member_omitted"}, issueCodes(result.Warnings))
	require.True(t, result.TotalBefore.Equal(decimal.NewFromInt(100)))
	require.True(t, result.TotalAfter.Equal(decimal.NewFromInt(100)), "got %s", result.TotalAfter)
}

func TestValidateOmittedIneligibleMemberIgnored(t *testing.T) {
	members := []entities.MemberSnapshot{
		member("m-1", "100", "ACTIVE"),
		member("m-2", "0", "RETIRED"),
	}
	updates := []UpdateInput{update("m-1", "100", "")}

	result := Validator{}.Validate(updates, members)
	require.True(t, result.Valid)
	require.Empty(t, result.Warnings)
}

func TestValidateTotalDeviationIsHardError(t *testing.T) {
	members := []entities.MemberSnapshot{
		member("m-1", "60", "ACTIVE"),
		member("m-2", "40", "ACTIVE"),
	}
	updates := []UpdateInput{
		update("m-1", "60", ""),
		update("m-2", "45", "raise"),
	}

	result := Validator{}.Validate(updates, members)
	require.False(t, result.Valid)
	require.Contains(t, issueCodes(result.Errors), "total_deviation")
	require.True(t, result.TotalAfter.Equal(decimal.NewFromInt(105)))
}

func TestValidateCustomThresholds(t *testing.T) {
	members := []entities.MemberSnapshot{
		member("m-1", "60", "ACTIVE"),
		member("m-2", "40", "ACTIVE"),
	}
	updates := []UpdateInput{
		update("m-1", "58", "drift"),
		update("m-2", "40", ""),
	}

	custom := Validator{
		LargeChangePoints:    decimal.NewFromInt(1),
		TotalDeviationPoints: decimal.NewFromInt(2),
	}
	result := custom.Validate(updates, members)
	require.Empty(t, result.Errors, "2 point total drift is inside the widened deviation band")
	require.Contains(t, issueCodes(result.Warnings), "large_change")
}
