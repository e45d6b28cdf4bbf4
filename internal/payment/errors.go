package payment

import "fmt"

// Error is a payment-specific error with a machine-readable code.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes raised by the payment package.
const (
	ErrCodeFacilitatorError  = "facilitator_error"
	ErrCodeUnsupportedScheme = "unsupported_scheme"
)

// NewError creates a payment error.
func NewError(code, message string, details map[string]interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details}
}
