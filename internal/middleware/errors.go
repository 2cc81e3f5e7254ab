package middleware

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/labstack/echo/v4"
)

const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeValidation   = "VALIDATION_FAILED"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL"
)

// APIError builds the envelope every handler responds with.
func APIError(message string, category goerrors.Category, status int, textCode string) *goerrors.Error {
	return goerrors.New(message, category).
		WithCode(status).
		WithTextCode(textCode)
}

func BadRequest(message string) *goerrors.Error {
	return APIError(message, goerrors.CategoryBadInput, http.StatusBadRequest, CodeBadRequest)
}

func Unauthorized(message string) *goerrors.Error {
	return APIError(message, goerrors.CategoryAuth, http.StatusUnauthorized, CodeUnauthorized)
}

func Forbidden(message string) *goerrors.Error {
	return APIError(message, goerrors.CategoryAuthz, http.StatusForbidden, CodeForbidden)
}

func NotFound(message string) *goerrors.Error {
	return APIError(message, goerrors.CategoryNotFound, http.StatusNotFound, CodeNotFound)
}

func Internal(message string) *goerrors.Error {
	return APIError(message, goerrors.CategoryInternal, http.StatusInternalServerError, CodeInternal)
}

// RespondError renders {"error", "code"} plus field errors for validation failures.
// Anything that is not a *goerrors.Error is reported as an internal error.
func RespondError(c echo.Context, err error) error {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		rich = Internal("internal error")
	}
	status := rich.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := echo.Map{
		"error": rich.Message,
		"code":  rich.TextCode,
	}
	if fields := rich.AllValidationErrors(); len(fields) > 0 {
		body["details"] = fields
	}
	return c.JSON(status, body)
}
