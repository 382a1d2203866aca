package lotto

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so transports can map them onto their own
// status codes without matching individual errors.
type ErrorKind uint8

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthorization
	KindState
	KindArithmetic
	KindResource
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindArithmetic:
		return "arithmetic"
	case KindResource:
		return "resource"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a stable, coded lottery failure.
type Error struct {
	Code    uint32
	Kind    ErrorKind
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("lotto: %s", e.Message)
}

func newError(code uint32, kind ErrorKind, name, msg string) *Error {
	return &Error{Code: code, Kind: kind, Name: name, Message: msg}
}

// Program failures. Codes are stable and shared with clients.
var (
	ErrInvalidTicketPrice    = newError(6000, KindValidation, "InvalidTicketPrice", "ticket price must be greater than zero")
	ErrInvalidRetainedBps    = newError(6001, KindValidation, "InvalidRetainedBps", "retained basis points must not exceed 10000")
	ErrMissingBump           = newError(6002, KindValidation, "MissingBump", "missing derivation bump")
	ErrInvalidAuthority      = newError(6003, KindAuthorization, "InvalidAuthority", "signer is not the round authority")
	ErrInvalidTreasuryBump   = newError(6004, KindAuthorization, "InvalidTreasuryBump", "treasury bump does not match derivation")
	ErrInvalidTreasuryVault  = newError(6005, KindAuthorization, "InvalidTreasuryVault", "treasury vault does not match derivation")
	ErrRetainedBpsMismatch   = newError(6006, KindValidation, "RetainedBpsMismatch", "retained basis points differ from treasury configuration")
	ErrRoundNotOpen          = newError(6007, KindState, "RoundNotOpen", "round is not open")
	ErrRoundClosed           = newError(6008, KindState, "RoundClosed", "round is closed")
	ErrMaxEntriesReached     = newError(6009, KindState, "MaxEntriesReached", "round has reached max entries")
	ErrMathOverflow          = newError(6010, KindArithmetic, "MathOverflow", "math overflow")
	ErrRoundNotReadyToSettle = newError(6011, KindState, "RoundNotReadyToSettle", "round is not ready to settle")
	ErrRoundAlreadySettled   = newError(6012, KindState, "RoundAlreadySettled", "round already settled")
	ErrRoundStillRunning     = newError(6013, KindState, "RoundStillRunning", "round is still running")
	ErrRoundNotSettled       = newError(6014, KindState, "RoundNotSettled", "round has not been settled")
	ErrEmptyPot              = newError(6015, KindState, "EmptyPot", "pot is empty")
	ErrEntryRoundMismatch    = newError(6016, KindAuthorization, "EntryRoundMismatch", "entry does not belong to round")
	ErrWinnerNotSet          = newError(6017, KindState, "WinnerNotSet", "winner not set")
	ErrInvalidWinner         = newError(6018, KindAuthorization, "InvalidWinner", "signer is not the round winner")
	ErrInvalidEntrant        = newError(6019, KindAuthorization, "InvalidEntrant", "entry does not belong to signer")
	ErrEntryAlreadyClaimed   = newError(6020, KindState, "EntryAlreadyClaimed", "entry already claimed")
	ErrRefundUnavailable     = newError(6021, KindState, "RefundUnavailable", "refund unavailable")
	ErrRoundNotCancellable   = newError(6022, KindState, "RoundNotCancellable", "round cannot be cancelled")
	ErrInvalidTicketCount    = newError(6023, KindValidation, "InvalidTicketCount", "ticket count must be greater than zero")
)

// Host failures raised while resolving accounts rather than by instruction
// logic.
var (
	ErrAccountAlreadyInUse   = newError(3000, KindState, "AccountAlreadyInUse", "account already in use")
	ErrAccountNotInitialized = newError(3001, KindNotFound, "AccountNotInitialized", "account not initialized")
	ErrConstraintSeeds       = newError(3002, KindAuthorization, "ConstraintSeeds", "address does not match derivation seeds")
	ErrInsufficientFunds     = newError(3003, KindResource, "InsufficientFunds", "insufficient lamports")
	ErrInvalidAccountData    = newError(3004, KindInternal, "InvalidAccountData", "invalid account data")
)

var registry = func() map[uint32]*Error {
	all := []*Error{
		ErrInvalidTicketPrice, ErrInvalidRetainedBps, ErrMissingBump, ErrInvalidAuthority,
		ErrInvalidTreasuryBump, ErrInvalidTreasuryVault, ErrRetainedBpsMismatch, ErrRoundNotOpen,
		ErrRoundClosed, ErrMaxEntriesReached, ErrMathOverflow, ErrRoundNotReadyToSettle,
		ErrRoundAlreadySettled, ErrRoundStillRunning, ErrRoundNotSettled, ErrEmptyPot,
		ErrEntryRoundMismatch, ErrWinnerNotSet, ErrInvalidWinner, ErrInvalidEntrant,
		ErrEntryAlreadyClaimed, ErrRefundUnavailable, ErrRoundNotCancellable, ErrInvalidTicketCount,
		ErrAccountAlreadyInUse, ErrAccountNotInitialized, ErrConstraintSeeds, ErrInsufficientFunds,
		ErrInvalidAccountData,
	}
	out := make(map[uint32]*Error, len(all))
	for _, err := range all {
		out[err.Code] = err
	}
	return out
}()

// ErrorByCode resolves a stable error code back to its sentinel.
func ErrorByCode(code uint32) (*Error, bool) {
	err, ok := registry[code]
	return err, ok
}

// AsError extracts the coded lottery error from err, if any.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the classification of err. Errors not raised by this package
// are reported as internal.
func KindOf(err error) ErrorKind {
	if coded, ok := AsError(err); ok {
		return coded.Kind
	}
	return KindInternal
}
