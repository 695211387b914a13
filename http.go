package auth

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Msg         string       `json:"msg"`
	Code        string       `json:"code,omitempty"`
	LockedUntil *time.Time   `json:"lockedUntil,omitempty"`
	Errors      []FieldIssue `json:"errors,omitempty"`
	Detail      string       `json:"detail,omitempty"`
}

// FieldIssue is a single input validation failure.
type FieldIssue struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

const genericServerMessage = "server error"

// ErrorHandler returns a fiber.ErrorHandler that renders errors as
// ErrorResponse. Anything that is not a client error is logged and answered
// with AUTH_ERROR. When production is false the response carries the
// underlying error text.
func ErrorHandler(logger Logger, production bool) fiber.ErrorHandler {
	_, logger = ResolveLogger("auth.http", nil, logger)

	return func(c *fiber.Ctx, err error) error {
		status, body := renderError(err)

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"request_id", c.Locals("requestid"),
				"error", internalDetail(err),
				"details", errorDetails(err),
			)
			if !production {
				body.Detail = internalDetail(err)
			}
		}

		return c.Status(status).JSON(body)
	}
}

// HTTPStatus returns the status code ErrorHandler answers err with.
func HTTPStatus(err error) int {
	status, _ := renderError(err)
	return status
}

func renderError(err error) (int, ErrorResponse) {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		if fiberErr.Code >= http.StatusInternalServerError {
			return http.StatusInternalServerError, ErrorResponse{Msg: genericServerMessage, Code: CodeAuthError}
		}
		return fiberErr.Code, ErrorResponse{Msg: fiberErr.Message}
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return http.StatusInternalServerError, ErrorResponse{Msg: genericServerMessage, Code: CodeAuthError}
	}

	status := statusOf(richErr)

	if len(richErr.ValidationErrors) > 0 {
		return http.StatusBadRequest, ErrorResponse{
			Msg:    richErr.Message,
			Errors: fieldIssues(richErr.ValidationErrors),
		}
	}

	if status >= http.StatusInternalServerError {
		return http.StatusInternalServerError, ErrorResponse{Msg: genericServerMessage, Code: CodeAuthError}
	}

	body := ErrorResponse{Msg: richErr.Message}
	if IsPublicCode(richErr.TextCode) {
		body.Code = richErr.TextCode
	}

	if until, ok := LockedUntil(richErr); ok {
		body.LockedUntil = &until
	}

	return status, body
}

func statusOf(richErr *goerrors.Error) int {
	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	}

	return http.StatusInternalServerError
}

func fieldIssues(verrs goerrors.ValidationErrors) []FieldIssue {
	out := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldIssue{Field: fe.Field, Msg: fe.Message})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Field < out[j].Field
	})
	return out
}

func internalDetail(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Source != nil {
			return richErr.Message + ": " + richErr.Source.Error()
		}
		return richErr.Message
	}
	return err.Error()
}

// errorDetails renders the metadata of a rich error for the log line.
func errorDetails(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || len(richErr.Metadata) == 0 {
		return ""
	}
	return print.MaybePrettyJSON(richErr.Metadata)
}
