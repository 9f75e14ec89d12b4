package domain

import "errors"

// Common domain errors
var (
	ErrStageNotFound    = errors.New("stage not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrPolicyEvalFailed = errors.New("policy evaluation failed")
)
