package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/infrastructure/resilience"
)

const maxErrorBodyBytes = 2048

// errorBody covers both FastAPI ({"detail": ...}) and structured
// ({"message", "code", "details"}) error payloads.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func codeForStatus(status int) domain.ErrorCode {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return domain.CodeValidation
	case status == http.StatusUnauthorized:
		return domain.CodeAuthentication
	case status == http.StatusForbidden:
		return domain.CodeAuthorization
	case status == http.StatusNotFound:
		return domain.CodeNotFound
	case status == http.StatusRequestTimeout:
		return domain.CodeTimeout
	case status == http.StatusRequestEntityTooLarge:
		return domain.CodeFileTooLarge
	case status == http.StatusUnsupportedMediaType:
		return domain.CodeInvalidFileType
	case status == http.StatusTooManyRequests:
		return domain.CodeRateLimited
	case status >= 500:
		return domain.CodeServer
	default:
		return domain.CodeUnknown
	}
}

// failureFromResponse turns a non-2xx response into a Failure, preferring
// the server-provided message and code.
func (c *Client) failureFromResponse(resp *Response) *domain.Failure {
	message := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	code := codeForStatus(resp.StatusCode)

	var details json.RawMessage
	body := resp.Body
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		details = body
		if parsed.Code != "" {
			code = domain.ErrorCode(parsed.Code)
		}
		switch {
		case parsed.Message != "":
			message = parsed.Message
		case len(parsed.Detail) > 0:
			var detail string
			if json.Unmarshal(parsed.Detail, &detail) == nil && detail != "" {
				message = detail
			}
		}
		if len(parsed.Details) > 0 {
			details = parsed.Details
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		message = fmt.Sprintf("%s: %s", message, text)
	}

	retryable := c.policy.Retryable(resp.StatusCode, string(code))
	failure := domain.NewFailure(code, resp.StatusCode, message, retryable)
	if len(details) > 0 {
		failure = failure.WithDetails(details)
	}
	return failure
}

// transportFailure classifies errors raised before a response arrived.
// parent is the caller context, which distinguishes caller cancellation
// from the per-attempt timeout.
func (c *Client) transportFailure(parent context.Context, err error) *domain.Failure {
	if parentErr := parent.Err(); parentErr != nil {
		return domain.AsFailure(parentErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewFailure(domain.CodeTimeout, http.StatusRequestTimeout, "request timeout", true).WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewFailure(domain.CodeTimeout, http.StatusRequestTimeout, "request timeout", true).WithCause(err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return domain.NewFailure(domain.CodeConnection, 0, "connection failed", true).WithCause(err)
	}
	return domain.NewFailure(domain.CodeNetwork, 0, "network error", true).WithCause(err)
}

func (c *Client) classify(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	failure := domain.AsFailure(err)
	if failure.Code == domain.CodeCanceled {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	retryable := c.policy.Retryable(failure.HTTPStatus, string(failure.Code))
	return resilience.ErrorClassification{
		Retryable:     retryable,
		RecordFailure: retryable,
	}
}

// finalFailure normalizes what the executor returns.
func finalFailure(err error) *domain.Failure {
	if resilience.IsCircuitOpen(err) {
		return domain.NewFailure(domain.CodeCircuitOpen, 0, "backend temporarily unavailable", true).WithCause(err)
	}
	return domain.AsFailure(err)
}
