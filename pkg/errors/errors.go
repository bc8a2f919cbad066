package errors

import "errors"

// Ledger.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientSpendable = errors.New("insufficient spendable balance")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrAccountNotFound       = errors.New("account not found")
)

// Bets and rounds.
var (
	ErrInvalidStake    = errors.New("stake outside allowed range")
	ErrBetNotFound     = errors.New("bet not found")
	ErrUnknownGame     = errors.New("unknown game type")
	ErrInvalidChoice   = errors.New("invalid bet choice")
	ErrRoundNotActive  = errors.New("round is not active")
	ErrDuplicateEffect = errors.New("effect already applied")
	ErrSessionNotFound = errors.New("game session not found")
	ErrRateLimited     = errors.New("too many bets, slow down")
)

// Withdrawals and state transitions.
var (
	ErrInvalidState       = errors.New("invalid state for this operation")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
)

// Auth and admin.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrAdminNotFound        = errors.New("admin not found")
	ErrAdminDisabled        = errors.New("admin account disabled")
	ErrInvalidAdminPassword = errors.New("invalid admin credentials")
)

// Payments.
var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrGatewayDisabled = errors.New("payment gateway not configured")
)
