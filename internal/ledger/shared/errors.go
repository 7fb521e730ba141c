package shared

import "errors"

var (
	// ErrAccountNotFound indicates a missing chart-of-accounts entry.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrDuplicateAccount indicates the (owner, code) pair already exists.
	ErrDuplicateAccount = errors.New("ledger: account code already exists")
	// ErrInvalidCodeFormat indicates the code does not match the type range.
	ErrInvalidCodeFormat = errors.New("ledger: invalid account code format")
	// ErrNonZeroBalance blocks deactivation of accounts with a balance.
	ErrNonZeroBalance = errors.New("ledger: account balance must be zero")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrInvalidStatus indicates a forbidden state transition.
	ErrInvalidStatus = errors.New("ledger: invalid status transition")
	// ErrPlanNotFound indicates a missing pending account plan.
	ErrPlanNotFound = errors.New("ledger: plan not found")
	// ErrRateUnavailable indicates no conversion rate could be obtained.
	ErrRateUnavailable = errors.New("ledger: conversion rate unavailable")
)

// ValidationFailedError carries the full error list from journal entry
// validation so callers can present every problem at once.
type ValidationFailedError struct {
	Errors []string
}

func (e *ValidationFailedError) Error() string {
	if len(e.Errors) == 0 {
		return "ledger: validation failed"
	}
	return "ledger: validation failed: " + e.Errors[0]
}
