package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/condenserhq/condenser/pkg/provider"
)

// statusForKind maps the provider error taxonomy to HTTP status codes.
func statusForKind(kind provider.Kind) int {
	switch kind {
	case provider.KindInvalidInput:
		return http.StatusBadRequest
	case provider.KindTimeout:
		return http.StatusRequestTimeout
	case provider.KindUnavailable:
		return http.StatusServiceUnavailable
	case provider.KindProtocol:
		return http.StatusBadGateway
	case provider.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func severityForKind(kind provider.Kind) string {
	switch kind {
	case provider.KindInvalidInput, provider.KindCancelled:
		return "warning"
	case provider.KindTimeout, provider.KindUnavailable, provider.KindProtocol:
		return "error"
	default:
		return "critical"
	}
}

func suggestedActions(kind provider.Kind) []string {
	switch kind {
	case provider.KindInvalidInput:
		return []string{"Check the request body and retry with valid input."}
	case provider.KindTimeout:
		return []string{"Retry the request.", "Reduce the input size or increase the timeout."}
	case provider.KindUnavailable:
		return []string{"Retry later.", "Check that the summarization backend is running."}
	case provider.KindProtocol:
		return []string{"Retry the request.", "Check backend logs for malformed responses."}
	case provider.KindCancelled:
		return []string{"Resubmit the request if the cancellation was unintended."}
	default:
		return []string{"Contact the operator with the correlation id."}
	}
}

// respondError writes the failure envelope for a classified error.
func respondError(c *gin.Context, err error, message string) {
	kind := provider.Classify(err)
	if message == "" {
		message = err.Error()
	}
	respondErrorKind(c, kind, message)
}

// respondErrorKind writes the failure envelope for a known error kind.
func respondErrorKind(c *gin.Context, kind provider.Kind, message string) {
	respondErrorStatus(c, statusForKind(kind), string(kind), message,
		severityForKind(kind), provider.Retryable(kind), suggestedActions(kind))
}

// respondErrorStatus writes the failure envelope with an explicit status and
// code, for failures outside the provider taxonomy.
func respondErrorStatus(c *gin.Context, status int, code, message, severity string, recoverable bool, actions []string) {
	if actions == nil {
		actions = []string{}
	}
	c.JSON(status, ErrorResponse{
		Success:          false,
		Error:            message,
		ErrorCode:        code,
		CorrelationID:    correlationID(c),
		Timestamp:        time.Now().UTC(),
		Severity:         severity,
		IsRecoverable:    recoverable,
		SuggestedActions: actions,
	})
}

func respondNotFound(c *gin.Context, message string) {
	respondErrorStatus(c, http.StatusNotFound, "not_found", message, "warning", false,
		[]string{"Check the batch id."})
}
