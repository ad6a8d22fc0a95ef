package amo

import "errors"

var (
	// ErrNilState is returned when the ledger is used before its state, pool
	// or token ledger have been wired.
	ErrNilState = errors.New("amo: state not configured")
	// ErrUnauthorized is returned when a non-owner calls an owner-gated
	// operation.
	ErrUnauthorized = errors.New("amo: caller is not the owner")
	// ErrAmoDisabled is returned when the target AMO is not in the enabled
	// set.
	ErrAmoDisabled = errors.New("amo: strategy not enabled")
	// ErrBorrowCapExceeded is returned when a give would push the total
	// borrowed balance over the cap.
	ErrBorrowCapExceeded = errors.New("amo: borrow cap exceeded")
	// ErrInvalidAmount is returned for nil or non-positive amounts.
	ErrInvalidAmount = errors.New("amo: amount must be positive")
	// ErrZeroAddress is returned for zero-address inputs.
	ErrZeroAddress = errors.New("amo: zero address")
)
