package application

import (
	"fmt"
	"strings"

	"equitas/contexts/equity-core/board-approval-service/domain/entities"

	"github.com/shopspring/decimal"
)

// Default validation thresholds, in percentage points. Deployments override
// them through the platform config.
var (
	DefaultLargeChangePoints    = decimal.NewFromInt(10)
	DefaultTotalDeviationPoints = decimal.NewFromInt(1)
)

var oneHundred = decimal.NewFromInt(100)

// UpdateInput is one proposed per-member change as submitted by a caller.
type UpdateInput struct {
	MemberID      string
	NewPercentage decimal.Decimal
	ChangeReason  string
}

// Validator checks a proposed update set against the current member
// population. Warnings flag anything a board should look at twice; errors
// make the set unacceptable regardless of force flags.
type Validator struct {
	// LargeChangePoints is the absolute per-member change above which a
	// warning is raised.
	LargeChangePoints decimal.Decimal
	// TotalDeviationPoints is how far the post-update total may drift from
	// 100 before validation hard-fails.
	TotalDeviationPoints decimal.Decimal
}

// Validate checks every update and the whole-population totals. Eligible
// members omitted from the update set are folded into both totals so the
// deviation check always covers the full company, not just the submitted
// subset.
func (v Validator) Validate(updates []UpdateInput, members []entities.MemberSnapshot) entities.ValidationResult {
	largeChange := v.LargeChangePoints
	if largeChange.IsZero() {
		largeChange = DefaultLargeChangePoints
	}
	maxDeviation := v.TotalDeviationPoints
	if maxDeviation.IsZero() {
		maxDeviation = DefaultTotalDeviationPoints
	}

	byID := make(map[string]entities.MemberSnapshot, len(members))
	for _, member := range members {
		byID[member.ID] = member
	}

	result := entities.ValidationResult{}
	updated := make(map[string]struct{}, len(updates))
	totalBefore := decimal.Zero
	totalAfter := decimal.Zero

	for _, update := range updates {
		memberID := strings.TrimSpace(update.MemberID)
		member, known := byID[memberID]
		if !known {
			result.Errors = append(result.Errors, entities.ValidationIssue{
				Severity: entities.SeverityError,
				Code:     "member_not_found",
				MemberID: memberID,
				Message:  fmt.Sprintf("member %s does not exist in this company", memberID),
			})
			continue
		}
		if _, seen := updated[memberID]; seen {
			result.Errors = append(result.Errors, entities.ValidationIssue{
				Severity: entities.SeverityError,
				Code:     "duplicate_member",
				MemberID: memberID,
				Message:  fmt.Sprintf("member %s appears more than once in the update set", memberID),
			})
			continue
		}
		updated[memberID] = struct{}{}
		totalBefore = totalBefore.Add(member.Percentage)
		totalAfter = totalAfter.Add(update.NewPercentage)

		if update.NewPercentage.IsNegative() || update.NewPercentage.GreaterThan(oneHundred) {
			result.Errors = append(result.Errors, entities.ValidationIssue{
				Severity: entities.SeverityError,
				Code:     "percentage_out_of_range",
				MemberID: memberID,
				Message:  fmt.Sprintf("target percentage %s is outside [0, 100]", update.NewPercentage.String()),
			})
			continue
		}

		change := update.NewPercentage.Sub(member.Percentage)
		if change.Abs().GreaterThan(largeChange) {
			result.Warnings = append(result.Warnings, entities.ValidationIssue{
				Severity: entities.SeverityWarning,
				Code:     "large_change",
				MemberID: memberID,
				Message:  fmt.Sprintf("change of %s points exceeds %s", change.String(), largeChange.String()),
			})
		}
		if !change.IsZero() && strings.TrimSpace(update.ChangeReason) == "" {
			result.Warnings = append(result.Warnings, entities.ValidationIssue{
				Severity: entities.SeverityWarning,
				Code:     "missing_reason",
				MemberID: memberID,
				Message:  "nonzero change submitted without a change reason",
			})
		}
		if !member.Eligible() && update.NewPercentage.IsPositive() {
			result.Warnings = append(result.Warnings, entities.ValidationIssue{
				Severity: entities.SeverityWarning,
				Code:     "inactive_member_equity",
				MemberID: memberID,
				Message:  fmt.Sprintf("member %s is %s but would hold %s%%", memberID, member.Status, update.NewPercentage.String()),
			})
		}
	}

	for _, member := range members {
		if _, seen := updated[member.ID]; seen {
			continue
		}
		if !member.Eligible() {
			continue
		}
		// Omitted eligible members keep their stake; fold it into both
		// totals so the deviation check compares whole populations.
		totalBefore = totalBefore.Add(member.Percentage)
		totalAfter = totalAfter.Add(member.Percentage)
		result.Warnings = append(result.Warnings, entities.ValidationIssue{
			Severity: entities.SeverityWarning,
			Code:     "member_omitted",
			MemberID: member.ID,
			Message:  fmt.Sprintf("eligible member %s is not in the update set, current %s%% kept", member.ID, member.Percentage.String()),
		})
	}

	if totalAfter.Sub(oneHundred).Abs().GreaterThan(maxDeviation) {
		result.Errors = append(result.Errors, entities.ValidationIssue{
			Severity: entities.SeverityError,
			Code:     "total_deviation",
			Message:  fmt.Sprintf("post-update total %s%% deviates from 100%% by more than %s points", totalAfter.String(), maxDeviation.String()),
		})
	}

	result.TotalBefore = totalBefore
	result.TotalAfter = totalAfter
	result.Valid = len(result.Errors) == 0 && len(result.Warnings) == 0
	return result
}
