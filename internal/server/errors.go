package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ledgercore/internal/errs"
	"go.uber.org/zap"
)

type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
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
		if errors.Is(lastErr.Err, errs.ErrConsistency) {
			log.Error("ledger consistency violation",
				zap.String("path", c.Request.URL.Path),
				zap.String("code", payload.Code),
				zap.Error(lastErr.Err),
			)
		}
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var domainErr *errs.Error
	if !errors.As(err, &domainErr) || domainErr == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	switch domainErr.Kind {
	case errs.KindValidation:
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    domainErr.Code,
			Message: domainErr.Message,
			Errors: []ValidationError{
				{Code: domainErr.Code, Message: domainErr.Message},
			},
		}
	case errs.KindNotFound:
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    domainErr.Code,
			Message: domainErr.Message,
		}
	case errs.KindConflict:
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    domainErr.Code,
			Message: domainErr.Message,
		}
	default:
		// Consistency failures keep their code but never leak detail.
		return http.StatusInternalServerError, errorPayload{
			Type:    "consistency_error",
			Code:    domainErr.Code,
			Message: "ledger consistency check failed",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
