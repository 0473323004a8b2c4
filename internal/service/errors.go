package service

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure; the HTTP layer maps each kind to a status code.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindInsufficientFunds
	KindInvalidAmount
	KindNoOp
	KindInvalidPlan
	KindInvalidCurrency
	KindPaymentMethodUnavailable
	KindInvalidTransition
)

var kindNames = map[Kind]string{
	KindValidation:               "validation",
	KindAuth:                     "auth",
	KindForbidden:                "forbidden",
	KindNotFound:                 "not_found",
	KindConflict:                 "conflict",
	KindInsufficientFunds:        "insufficient_funds",
	KindInvalidAmount:            "invalid_amount",
	KindNoOp:                     "no_op",
	KindInvalidPlan:              "invalid_plan",
	KindInvalidCurrency:          "invalid_currency",
	KindPaymentMethodUnavailable: "payment_method_unavailable",
	KindInvalidTransition:        "invalid_transition",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a user-correctable failure. Its message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a domain error, or 0 for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
