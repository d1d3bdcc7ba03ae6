package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"rocket-filter/internal/filter"
	"rocket-filter/internal/instrument"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Path    string `json:"path,omitempty"`
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// StatusCode is the HTTP status the error renders with.
func (e *AppError) StatusCode() int {
	return e.Status
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func UnknownEntityError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ENTITY",
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", name),
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func BadRequestError(msg string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Status: 400, Message: msg}
}

// FilterError converts a filter validation error into a 400 AppError whose
// code names the failure class. Errors that are not filter errors map to
// INVALID_FILTER with the raw message.
func FilterError(err error) *AppError {
	appErr := &AppError{Code: "INVALID_FILTER", Status: 400, Message: err.Error()}
	detail := ErrorDetail{Path: filter.PathOf(err), Message: err.Error()}

	var (
		unknownField *filter.UnknownFieldError
		unknownRel   *filter.UnknownRelationshipError
		mismatch     *filter.FieldTypeMismatchError
		empty        *filter.EmptyGroupError
		badOp        *filter.InvalidGroupOperatorError
		structural   *filter.StructuralError
	)
	switch {
	case errors.As(err, &unknownField):
		appErr.Code = "UNKNOWN_FIELD"
		detail.Field = unknownField.Field
		detail.Rule = "allowed_fields"
	case errors.As(err, &unknownRel):
		appErr.Code = "UNKNOWN_RELATIONSHIP"
		detail.Field = unknownRel.Relationship
		detail.Rule = "allowed_relationships"
	case errors.As(err, &mismatch):
		appErr.Code = "FIELD_TYPE_MISMATCH"
		detail.Field = mismatch.Field
		detail.Rule = string(mismatch.Declared)
	case errors.As(err, &empty):
		appErr.Code = "EMPTY_GROUP"
		detail.Rule = "non_empty"
	case errors.As(err, &badOp):
		appErr.Code = "INVALID_GROUP_OPERATOR"
		detail.Rule = "and_or_not"
	case errors.As(err, &structural):
		detail.Rule = "structure"
	}
	appErr.Details = []ErrorDetail{detail}
	return appErr
}

// ErrorHandler renders AppErrors with their status and hides everything else
// behind a generic 500, logging the cause.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Error: &AppError{Code: httpCode(fiberErr.Code), Message: fiberErr.Message},
			})
		}

		log.Error().Err(err).
			Str("trace_id", instrument.GetTraceID(c.UserContext())).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error"},
		})
	}
}

func httpCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "BAD_REQUEST"
}
