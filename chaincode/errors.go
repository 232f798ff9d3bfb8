package main

import "errors"

// Failure taxonomy for marketplace operations. Every handler checks its
// preconditions before writing any state, so a returned error always means
// the transaction had no effect. Wrapped with fmt.Errorf("%w: ...") so
// callers can match with errors.Is.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotRegistered       = errors.New("farmer not registered")
	ErrDuplicateID         = errors.New("duplicate product id")
	ErrUnknownProduct      = errors.New("unknown product")
	ErrNoVerifierAssigned  = errors.New("no verifier assigned")
	ErrNotAssignedVerifier = errors.New("not the assigned verifier")
	ErrAlreadySold         = errors.New("product already sold")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrOverPayment         = errors.New("overpayment")
	ErrProductExpired      = errors.New("product expired")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)
