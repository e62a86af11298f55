package analysisapi

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/email-analyzer/internal/core/domain"
	"github.com/kirillkom/email-analyzer/internal/infrastructure/resilience"
)

func classifyError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var subErr *domain.SubmissionError
	if errors.As(err, &subErr) && subErr.StatusCode > 0 {
		if isRetryableHTTPStatus(subErr.StatusCode) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// normalizeError guarantees callers a *domain.SubmissionError.
func normalizeError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsCircuitOpen(err) {
		return domain.NewTransportError("", domain.WrapError(domain.ErrTemporary, operation, err))
	}
	var subErr *domain.SubmissionError
	if errors.As(err, &subErr) {
		return err
	}
	return domain.NewTransportError("", err)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
