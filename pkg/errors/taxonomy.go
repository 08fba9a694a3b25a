package errors

import "fmt"

// Domain-level constructors. Each one maps a marketplace failure kind onto a
// transport code so callers never pick HTTP statuses themselves.

// NotAuthenticated reports an operation that requires a signed-in identity.
func NotAuthenticated(message string) *Error {
	if message == "" {
		message = "sign in required"
	}
	return New(CodeUnauthorized, message)
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found", kind)).
		WithDetails(map[string]any{"kind": kind, "id": id})
}

// StoreUnavailable wraps a failure of a backing store (database, blob store,
// identity provider).
func StoreUnavailable(err error, message string) *Error {
	return Wrap(CodeDependency, err, message)
}

// InvalidInput reports a rejected field value.
func InvalidInput(field, message string) *Error {
	return New(CodeValidation, message).WithDetails(map[string]any{"field": field})
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
