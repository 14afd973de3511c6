package services

import "errors"

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrUnauthorized      = errors.New("caller is not allowed to perform this operation")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateDeposit  = errors.New("deposit already credited")
)
