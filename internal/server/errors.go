package server

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/adbilling/pkg/errs"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errs.NotFound("not_found")
	ErrInvalidRequest = errs.Validation("invalid_request")
)

var kindStatus = map[errs.Kind]int{
	errs.KindValidation:         http.StatusBadRequest,
	errs.KindNotFound:           http.StatusNotFound,
	errs.KindForbidden:          http.StatusForbidden,
	errs.KindConflict:           http.StatusConflict,
	errs.KindInvariantViolation: http.StatusUnprocessableEntity,
	errs.KindInternal:           http.StatusInternalServerError,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError(cause error) error {
	return ErrInvalidRequest.WithFields(map[string]string{"request": "invalid_request"}).Wrap(cause)
}

func mapError(err error) (int, errorPayload) {
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Code:    "unauthorized",
			Message: "unauthorized",
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrNotFound
	}

	e, ok := errs.As(err)
	if !ok || e.Kind == errs.KindInternal {
		return http.StatusInternalServerError, errorPayload{
			Type:    string(errs.KindInternal),
			Code:    string(errs.KindInternal),
			Message: "internal server error",
		}
	}

	status, ok := kindStatus[e.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return status, errorPayload{
		Type:    string(e.Kind),
		Code:    e.Code,
		Message: e.Message(),
		Errors:  fieldErrors(e),
	}
}

func fieldErrors(e *errs.Error) []ValidationError {
	if e.Kind != errs.KindValidation {
		return nil
	}
	if len(e.Fields) > 0 {
		out := make([]ValidationError, 0, len(e.Fields))
		for field, code := range e.Fields {
			out = append(out, ValidationError{Field: field, Code: code, Message: "invalid value"})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
		return out
	}
	if e.Field != "" {
		return []ValidationError{{Field: e.Field, Code: e.Code, Message: e.Message()}}
	}
	return nil
}

// classifyErrorForLog feeds the request logger with the error type and code.
func classifyErrorForLog(err error) (string, string) {
	if errors.Is(err, ErrUnauthorized) {
		return "unauthorized", "unauthorized"
	}
	if e, ok := errs.As(err); ok {
		return string(e.Kind), e.Code
	}
	return string(errs.KindInternal), string(errs.KindInternal)
}
