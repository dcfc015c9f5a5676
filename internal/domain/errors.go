package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCurrency    = errors.New("invalid currency")
	ErrNonPositiveAmount  = errors.New("amount must be greater than zero")
	ErrBalanceOutOfRange  = errors.New("balance out of range")
	ErrNoOwners           = errors.New("account must have at least one owner")
	ErrUnknownAccountKind = errors.New("unknown account kind")
	ErrUnknownCategory    = errors.New("unknown transaction category")
	ErrStateConflict      = errors.New("transaction is not unprocessed")
	ErrVersionConflict    = errors.New("optimistic lock conflict")
	ErrAccountReferenced  = errors.New("account is referenced by transactions")

	// ErrInvalidStatus carries the exact text expected at the storage boundary.
	ErrInvalidStatus = errors.New("Invalid status")
)

// ValidationError holds the violation messages of a rejected transaction in
// the order they were found.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, "\n")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransactionError is what the processing pipeline hands back to callers
// once the outcome of a transaction has been persisted.
type TransactionError struct {
	Category      Category
	Action        string
	Status        TransactionStatus
	TransactionID int64
	Err           error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s transaction: %s %s - %s\nTransaction id:%d\nError:%s",
		e.Category.Title(), e.Action, e.Status, Cause(e.Err), e.TransactionID, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// Cause names the taxonomy bucket an error falls into.
func Cause(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return ErrValidation.Error()
	case errors.Is(err, ErrNotFound):
		return "entity " + ErrNotFound.Error()
	case errors.Is(err, ErrNonPositiveAmount):
		return "non-positive amount"
	case errors.Is(err, ErrBalanceOutOfRange):
		return ErrBalanceOutOfRange.Error()
	case errors.Is(err, ErrInvalidCurrency):
		return ErrInvalidCurrency.Error()
	case errors.Is(err, ErrStateConflict):
		return "state conflict"
	default:
		return "unexpected failure"
	}
}

// IsRefusal reports whether err is a business-rule failure, as opposed to a
// missing reference or an unexpected fault.
func IsRefusal(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrBalanceOutOfRange) ||
		errors.Is(err, ErrInvalidCurrency) ||
		errors.Is(err, ErrNoOwners)
}
