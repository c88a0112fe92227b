// Package errors defines the typed error kinds returned by the settlement core.
// Transport code maps a Kind to a response without parsing messages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindBusinessRule      Kind = "business_rule"
	KindNotFound          Kind = "not_found"
	KindExternalProvider  Kind = "external_provider"
	KindPartialSettlement Kind = "partial_settlement"
	KindInternal          Kind = "internal"
)

// Business-rule codes.
const (
	CodeSelfPurchase         = "self_purchase"
	CodeItemUnavailable      = "item_unavailable"
	CodeInsufficientBalance  = "insufficient_balance"
	CodeEmailNotVerified     = "email_not_verified"
	CodeAccountBanned        = "account_banned"
	CodeActiveDispute        = "active_dispute"
	CodeAmountOutOfBounds    = "amount_out_of_bounds"
	CodeWithdrawalInFlight   = "withdrawal_in_flight"
	CodeInvalidTransition    = "invalid_transition"
	CodeDestinationNotOwned  = "destination_not_owned"
	CodeOrderNotPayable      = "order_not_payable"
	CodeForbidden            = "forbidden"
	CodePaymentFailed        = "payment_failed"
	CodePaymentAmountInvalid = "payment_amount_mismatch"
)

// Error is the concrete error type carried through the service layer.
type Error struct {
	Kind    Kind              `json:"kind"`
	Code    string            `json:"code,omitempty"`
	Field   string            `json:"field,omitempty"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) match any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t == e || (t.Kind == e.Kind && t.Message == "")
}

// WithDetail returns e with an extra detail entry.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// ErrNotFound matches every not-found error.
var ErrNotFound = &Error{Kind: KindNotFound}

func NewValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func NewBusinessRuleError(code, message string) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: message}
}

func NewNotFoundError(resource, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: map[string]string{"id": id},
	}
}

func NewProviderError(provider string, err error) *Error {
	return &Error{
		Kind:    KindExternalProvider,
		Code:    CodePaymentFailed,
		Message: fmt.Sprintf("payment provider %s failed", provider),
		Err:     err,
	}
}

// NewPartialSettlementError reports a downstream settlement step that failed
// after the order was already marked paid.
func NewPartialSettlementError(orderID, step string, err error) *Error {
	return &Error{
		Kind:    KindPartialSettlement,
		Message: fmt.Sprintf("order %s paid but settlement step %s failed", orderID, step),
		Details: map[string]string{"order_id": orderID, "step": step},
		Err:     err,
	}
}

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the business-rule code of err, if any.
func CodeOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// As is errors.As re-exported so callers need only one errors import.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Is is errors.Is re-exported.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// New is errors.New re-exported.
func New(text string) error { return stderrors.New(text) }
