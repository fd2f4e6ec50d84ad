package errors

import "errors"

var (
	ErrInvalidMemberInput  = errors.New("member input is invalid")
	ErrPercentageOutOfRange = errors.New("equity percentage must be between 0 and 100")
	ErrMemberExists        = errors.New("member already exists")
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberNotActive     = errors.New("member is not active")
	ErrMemberRetired       = errors.New("member is already retired")
	ErrVersionConflict     = errors.New("member was modified concurrently")
	ErrMissingReason       = errors.New("equity change requires a reason")
)
