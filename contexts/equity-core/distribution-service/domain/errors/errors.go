package errors

import "errors"

var (
	ErrInvalidDistributionInput = errors.New("distribution input is invalid")
	ErrProfitNotFound           = errors.New("profit record not found")
	ErrCompanyMismatch          = errors.New("profit record belongs to a different company")
	ErrNoEligibleMembers        = errors.New("no active members with positive equity")
	ErrReconciliationFailed     = errors.New("allocated total deviates from pool beyond tolerance")
	ErrDistributionNotFound     = errors.New("distribution not found")
	ErrMemberShareNotFound      = errors.New("member distribution row not found")
	ErrAlreadyPaid              = errors.New("member distribution already marked paid")
)
