package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/infrastructure/resilience"
)

// publishFailure maps a broker error onto the client's failure codes.
func publishFailure(err error) *domain.Failure {
	if err == nil {
		return nil
	}
	var failure *domain.Failure
	if errors.As(err, &failure) {
		return failure
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.AsFailure(err)
	case resilience.IsCircuitOpen(err):
		return domain.NewFailure(domain.CodeCircuitOpen, 0, "status broker temporarily unavailable", true).WithCause(err)
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting):
		return domain.NewFailure(domain.CodeConnection, 0, "status broker unreachable", true).WithCause(err)
	case errors.Is(err, nats.ErrTimeout):
		return domain.NewFailure(domain.CodeTimeout, 0, "status broker timeout", true).WithCause(err)
	}
	return domain.NewFailure(domain.CodeUnknown, 0, err.Error(), false).WithCause(err)
}

// classify retries the codes the policy lists as retryable. Caller
// cancellation neither retries nor counts against the breaker.
func (p *Publisher) classify(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	failure := publishFailure(err)
	retryable := p.policy.Retryable(failure.HTTPStatus, string(failure.Code))
	return resilience.ErrorClassification{
		Retryable:     retryable,
		RecordFailure: true,
	}
}
