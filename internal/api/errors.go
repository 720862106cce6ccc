package api

import (
	"context"
	"errors"

	"github.com/RNCC-Cubesat/kubos/internal/adapter"
	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/command"
	"github.com/RNCC-Cubesat/kubos/internal/resolver"
)

// Error codes reported in GraphQL error extensions.
const (
	CodeModuleNotConfigured = "MODULE_NOT_CONFIGURED"
	CodeFieldNotFound       = "FIELD_NOT_FOUND"
	CodeUnknownCommand      = "UNKNOWN_COMMAND"
	CodeInvalidRange        = "INVALID_RANGE"
	CodeBusy                = "BUSY"
	CodeUnavailable         = "UNAVAILABLE"
	CodeInternal            = "INTERNAL"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
)

// API error codes for security conditions
var (
	ErrUnauthorizedError = errors.New(CodeUnauthorized)
	ErrForbiddenError    = errors.New(CodeForbidden)
)

// GraphQLError is a resolver error that carries GraphQL extensions.
type GraphQLError struct {
	Code          string
	Message       string
	CorrelationID string
	Err           error
}

func (e *GraphQLError) Error() string {
	return e.Message
}

func (e *GraphQLError) Unwrap() error {
	return e.Err
}

// Extensions implements gqlerrors.ExtendedError.
func (e *GraphQLError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"code":          e.Code,
		"correlationId": e.CorrelationID,
	}
}

// ToGraphQLError converts an error to a GraphQL error with a stable code.
func ToGraphQLError(err error) *GraphQLError {
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) {
		return gqlErr
	}

	code := errorCode(err)
	return &GraphQLError{
		Code:          code,
		Message:       getErrorMessage(code, err),
		CorrelationID: generateCorrelationID(),
		Err:           err,
	}
}

// errorCode maps domain and adapter errors to an API error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, bus.ErrModuleNotConfigured):
		return CodeModuleNotConfigured
	case errors.Is(err, resolver.ErrFieldNotFound):
		return CodeFieldNotFound
	case errors.Is(err, resolver.ErrUnknownCommand):
		return CodeUnknownCommand
	case errors.Is(err, command.ErrInvalidParameter):
		return CodeBadRequest
	case errors.Is(err, ErrUnauthorizedError):
		return CodeUnauthorized
	case errors.Is(err, ErrForbiddenError):
		return CodeForbidden
	}
	return mapAdapterError(err)
}

// mapAdapterError maps adapter error codes to API error codes.
func mapAdapterError(err error) string {
	switch {
	case errors.Is(err, adapter.ErrInvalidRange):
		return CodeInvalidRange
	case errors.Is(err, adapter.ErrBusy), errors.Is(err, context.DeadlineExceeded):
		return CodeBusy
	case errors.Is(err, adapter.ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// getErrorMessage returns the client-facing message for an error code.
// Domain errors keep their own message since it names the offending input.
func getErrorMessage(code string, err error) string {
	switch code {
	case CodeBusy:
		return "Bus is busy, please retry with backoff"
	case CodeUnavailable:
		return "Bus is temporarily unavailable"
	case CodeInternal:
		return "Internal server error"
	case CodeForbidden:
		return "Insufficient permissions"
	case CodeUnauthorized:
		return "Authentication required"
	}
	if err != nil {
		return err.Error()
	}
	return "Unknown error"
}
