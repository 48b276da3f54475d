package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"trade-settlement/internal/auth"
	"trade-settlement/internal/session"
	"trade-settlement/internal/trade"
	"trade-settlement/internal/workflow"
)

type errorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code"`
	Field   string           `json:"field,omitempty"`
	Detail  string           `json:"detail,omitempty"`
	Session *sessionResponse `json:"session,omitempty"`
}

// classify maps err onto a status code and response body.
func classify(err error) (int, errorResponse) {
	var fe *fiber.Error
	switch {
	case errors.Is(err, auth.ErrMissingCredential),
		errors.Is(err, auth.ErrCredentialExpired),
		errors.Is(err, auth.ErrInvalidCredential):
		return fiber.StatusUnauthorized, errorResponse{Error: "Unauthorized", Code: "unauthorized", Detail: err.Error()}
	case errors.Is(err, trade.ErrInvalidRequest):
		field, _ := trade.FieldOf(err)
		return fiber.StatusBadRequest, errorResponse{Error: "Invalid trade request", Code: "invalid_request", Field: field, Detail: err.Error()}
	case errors.Is(err, trade.ErrRateUnavailable):
		return fiber.StatusServiceUnavailable, errorResponse{Error: "Trade processing failed", Code: "rate_unavailable"}
	case errors.Is(err, trade.ErrExecutionFailed):
		return fiber.StatusInternalServerError, errorResponse{Error: "Trade processing failed", Code: "execution_failed"}
	case errors.Is(err, workflow.ErrInvalidTransition):
		return fiber.StatusConflict, errorResponse{Error: "Action not allowed", Code: "invalid_transition", Detail: err.Error()}
	case errors.Is(err, workflow.ErrQuoteStale):
		return fiber.StatusConflict, errorResponse{Error: "Quote is stale", Code: "quote_stale", Detail: err.Error()}
	case errors.Is(err, workflow.ErrFallbackDisabled), errors.Is(err, workflow.ErrFallbackUnavailable):
		return fiber.StatusConflict, errorResponse{Error: "Fallback not available", Code: "fallback_unavailable", Detail: err.Error()}
	case errors.Is(err, workflow.ErrCorruptSnapshot):
		return fiber.StatusInternalServerError, errorResponse{Error: "Session cannot be restored", Code: "session_corrupt"}
	case errors.Is(err, session.ErrNotFound):
		return fiber.StatusNotFound, errorResponse{Error: "Session not found", Code: "session_not_found"}
	case errors.As(err, &fe):
		return fe.Code, errorResponse{Error: fe.Message, Code: "http_error"}
	default:
		return fiber.StatusInternalServerError, errorResponse{Error: "Internal server error", Code: "internal_error"}
	}
}

func writeError(c *fiber.Ctx, err error, sess *sessionResponse) error {
	status, body := classify(err)
	body.Session = sess
	return c.Status(status).JSON(body)
}
