/*
errors.go - HTTP rendering of engine errors

PURPOSE:
  Maps the engine error taxonomy onto status codes so handlers never
  switch on individual failures:

    Validation  400
    Forbidden   403
    NotFound    404
    Conflict    409
    Exhausted   400  (points, stock, allowance)
    anything    500  (details logged, not returned)

  Request body validation failures from go-playground/validator are
  rendered field by field.

SEE ALSO:
  - engine/errors.go: Kinds and codes
*/
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/recognition-engine/engine"
)

func statusFor(kind engine.Kind) int {
	switch kind {
	case engine.KindValidation, engine.KindExhausted:
		return http.StatusBadRequest
	case engine.KindForbidden:
		return http.StatusForbidden
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail renders a workflow error. Internal errors are logged and replaced
// by a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := engine.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, status, "Internal server error", nil)
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: engine.CodeOf(err)})
}

// invalidBody renders decode and struct validation failures.
func invalidBody(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "invalid_request",
			Details: formatValidationError(ve),
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Code:    "invalid_request",
		Details: err.Error(),
	})
}

func formatValidationError(ve validator.ValidationErrors) string {
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		case "len":
			msgs = append(msgs, fmt.Sprintf("%s must be %s characters long", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}
