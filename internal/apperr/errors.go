package apperr

import (
	"errors"
	"strings"
)

// Kind groups errors by what the caller did wrong.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthorization
	KindState
	KindResource
	KindArithmetic
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindResource:
		return "resource"
	case KindArithmetic:
		return "arithmetic"
	default:
		return "internal"
	}
}

// Error is a typed domain error. Two errors match under errors.Is when their codes match.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches by code so wrapped copies compare equal to the sentinel
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NotFound reports whether the error names a missing record.
func (e *Error) NotFound() bool {
	return strings.HasSuffix(e.Code, "_not_found")
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation errors
var (
	ErrInvalidAmount        = newErr(KindValidation, "invalid_amount", "amount must be positive")
	ErrInvalidRecipient     = newErr(KindValidation, "invalid_recipient", "recipient is the null identity")
	ErrInvalidAddress       = newErr(KindValidation, "invalid_address", "invalid address")
	ErrInvalidPeriod        = newErr(KindValidation, "invalid_period", "invalid report period")
	ErrInvalidHash          = newErr(KindValidation, "invalid_hash", "reference hash is required")
	ErrInvalidProposal      = newErr(KindValidation, "invalid_proposal", "invalid proposal")
	ErrInvalidChoice        = newErr(KindValidation, "invalid_choice", "invalid vote choice")
	ErrInvalidDelegate      = newErr(KindValidation, "invalid_delegate", "invalid delegate")
	ErrInvalidAction        = newErr(KindValidation, "invalid_action", "invalid proposal action")
	ErrInvalidParams        = newErr(KindValidation, "invalid_params", "invalid governance parameters")
	ErrReportNotFound       = newErr(KindValidation, "report_not_found", "report not found")
	ErrDistributionNotFound = newErr(KindValidation, "distribution_not_found", "distribution not found")
	ErrProposalNotFound     = newErr(KindValidation, "proposal_not_found", "proposal not found")
)

// Authorization errors
var (
	ErrUnauthorized = newErr(KindAuthorization, "unauthorized", "caller is not permitted to perform this operation")
)

// State errors
var (
	ErrPaused             = newErr(KindState, "paused", "operations are paused")
	ErrAlreadyPaused      = newErr(KindState, "already_paused", "already paused")
	ErrNotPaused          = newErr(KindState, "not_paused", "not paused")
	ErrAlreadyApproved    = newErr(KindState, "already_approved", "report already approved")
	ErrReportNotApproved  = newErr(KindState, "report_not_approved", "report is not approved")
	ErrAlreadyDistributed = newErr(KindState, "already_distributed", "report already has a distribution")
	ErrAlreadyClaimed     = newErr(KindState, "already_claimed", "distribution already claimed")
	ErrVotingClosed       = newErr(KindState, "voting_closed", "voting period has ended")
	ErrVotingOpen         = newErr(KindState, "voting_open", "voting period has not ended")
	ErrAlreadyVoted       = newErr(KindState, "already_voted", "caller already voted")
	ErrAlreadyExecuted    = newErr(KindState, "already_executed", "proposal already executed")
	ErrProposalCancelled  = newErr(KindState, "proposal_cancelled", "proposal is cancelled")
	ErrNotDelegated       = newErr(KindState, "not_delegated", "caller has no delegation")
	ErrSaleClosed         = newErr(KindState, "sale_closed", "unit sale is closed")
	ErrNothingToWithdraw  = newErr(KindState, "nothing_to_withdraw", "nothing to withdraw")
)

// Resource errors
var (
	ErrInsufficientBalance   = newErr(KindResource, "insufficient_balance", "insufficient balance")
	ErrInsufficientAllowance = newErr(KindResource, "insufficient_allowance", "insufficient allowance")
	ErrInsufficientPayment   = newErr(KindResource, "insufficient_payment", "payment below cost")
	ErrInsufficientTreasury  = newErr(KindResource, "insufficient_treasury", "insufficient treasury")
	ErrSupplyCapExceeded     = newErr(KindResource, "supply_cap_exceeded", "supply cap exceeded")
	ErrBelowThreshold        = newErr(KindResource, "below_threshold", "voting weight below proposal threshold")
	ErrNoVotingPower         = newErr(KindResource, "no_voting_power", "caller has no voting power")
)

// Arithmetic errors
var (
	ErrZeroSupply = newErr(KindArithmetic, "zero_supply", "snapshot supply is zero")
	ErrOverflow   = newErr(KindArithmetic, "overflow", "arithmetic overflow")
)

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// As returns the typed error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
