package storefront

import "fmt"

// Error represents a storefront-specific error
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is a storefront error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
const (
	ErrCodeNotPurchasable      = "not_purchasable"
	ErrCodeNoSelection         = "no_selection"
	ErrCodeFlowBusy            = "flow_busy"
	ErrCodeTransactionFailed   = "transaction_failed"
	ErrCodeTransactionReverted = "transaction_reverted"
	ErrCodeReadFailed          = "read_failed"
	ErrCodeInvalidRequest      = "invalid_request"
	ErrCodeNotFound            = "not_found"
	ErrCodeInvalidTheme        = "invalid_theme"
)

// Sentinels for errors.Is comparisons. Compared by code only.
var (
	ErrNotPurchasable = &Error{Code: ErrCodeNotPurchasable, Message: "item has no active listing"}
	ErrNoSelection    = &Error{Code: ErrCodeNoSelection, Message: "no item selected"}
	ErrBusy           = &Error{Code: ErrCodeFlowBusy, Message: "a transaction is already in flight"}
	ErrNotFound       = &Error{Code: ErrCodeNotFound, Message: "not found"}
	ErrReverted       = &Error{Code: ErrCodeTransactionReverted, Message: "transaction reverted"}
	ErrInvalidTheme   = &Error{Code: ErrCodeInvalidTheme, Message: "theme must be light or dark"}
)

// NewError creates a new storefront error
func NewError(code, message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}
