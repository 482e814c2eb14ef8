// Package apperrors defines the typed error taxonomy shared by the service
// and repository layers. Every business-rule failure is raised as an *AppError
// carrying a stable machine-readable code; raw persistence errors never cross
// the repository boundary uninterpreted.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes into the four externally observable failure classes
// plus Internal for non-retryable infrastructure failures.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

type ErrorCode string

const (
	UserNotFound        ErrorCode = "user_not_found"
	AccountNotFound     ErrorCode = "account_not_found"
	DuplicateUser       ErrorCode = "duplicate_user"
	DuplicateAccount    ErrorCode = "duplicate_account"
	InsufficientFunds   ErrorCode = "insufficient_funds"
	AccountHasHistory   ErrorCode = "account_has_history"
	LockTimeout         ErrorCode = "lock_timeout"
	NotAccountOwner     ErrorCode = "not_account_owner"
	WrongPassword       ErrorCode = "wrong_password"
	InvalidAmount       ErrorCode = "invalid_amount"
	SameAccountTransfer ErrorCode = "same_account_transfer"
	InvalidInput        ErrorCode = "invalid_input"
	InternalError       ErrorCode = "internal_error"
)

type AppError struct {
	Kind    Kind      `json:"-"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	// Retryable marks transient contention failures the caller may retry.
	Retryable bool `json:"-"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(kind Kind, code ErrorCode, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

func Newf(kind Kind, code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy carrying extra diagnostic context, so the
// predefined errors below stay immutable.
func (e *AppError) WithDetails(details string) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

// HTTPStatus maps the taxonomy to protocol status codes. Insufficient funds is
// a Conflict kind but keeps the 422 the boundary has always answered with.
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == InsufficientFunds:
		return http.StatusUnprocessableEntity
	case e.Kind == KindNotFound:
		return http.StatusNotFound
	case e.Kind == KindConflict:
		return http.StatusConflict
	case e.Kind == KindForbidden:
		return http.StatusForbidden
	case e.Kind == KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsKind reports whether err is an *AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// Predefined errors for the common failure modes.
var (
	ErrUserNotFound      = New(KindNotFound, UserNotFound, "user not found")
	ErrAccountNotFound   = New(KindNotFound, AccountNotFound, "account not found")
	ErrDuplicateUser     = New(KindConflict, DuplicateUser, "username already taken")
	ErrDuplicateAccount  = New(KindConflict, DuplicateAccount, "account number already exists")
	ErrInsufficientFunds = New(KindConflict, InsufficientFunds, "insufficient funds")
	ErrAccountHasHistory = New(KindConflict, AccountHasHistory, "account still has ledger entries")
	ErrNotAccountOwner   = New(KindForbidden, NotAccountOwner, "caller does not own this account")
	ErrWrongPassword     = New(KindForbidden, WrongPassword, "withdrawal password does not match")
	ErrInvalidAmount     = New(KindValidation, InvalidAmount, "amount must be a positive whole number")
	ErrSameAccount       = New(KindValidation, SameAccountTransfer, "cannot transfer to the same account")

	ErrLockTimeout = &AppError{
		Kind:      KindConflict,
		Code:      LockTimeout,
		Message:   "account is busy, try again",
		Retryable: true,
	}
)
