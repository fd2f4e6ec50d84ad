package errors

import "errors"

var (
	ErrInvalidApprovalInput = errors.New("invalid board approval input")
	ErrValidationFailed     = errors.New("equity update validation failed")
	ErrTotalDeviation       = errors.New("equity total deviates beyond tolerance")
	ErrApprovalNotFound     = errors.New("board approval not found")
	ErrIllegalTransition    = errors.New("illegal approval status transition")
	ErrNoEligibleMembers    = errors.New("no eligible members for reallocation")
	ErrMemberNotFound       = errors.New("member not found")
)
