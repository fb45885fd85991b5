package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrRunActive       = errors.New("a run is already active")
	ErrResetRequired   = errors.New("reset required before a new submission")
	ErrStaleResult     = errors.New("result belongs to a stale run")
	ErrArchiveDisabled = errors.New("run archive is not configured")
)
