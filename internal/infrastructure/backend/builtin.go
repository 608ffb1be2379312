package backend

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/core/ports"
)

const ClientVersion = "1.0.0"

func LoggingInterceptor(logger *slog.Logger) Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return Interceptor{
		Name: "logging",
		Request: func(ctx context.Context, cfg RequestConfig) (RequestConfig, error) {
			logger.DebugContext(ctx, "api_request",
				"method", cfg.Method,
				"path", cfg.Path,
				"operation", cfg.operation(),
				"attempt", cfg.Metadata["attempt"],
			)
			return cfg, nil
		},
		Response: func(ctx context.Context, resp *Response) (*Response, error) {
			logger.InfoContext(ctx, "api_response",
				"method", resp.Request.Method,
				"path", resp.Request.Path,
				"status", resp.StatusCode,
				"bytes", len(resp.Body),
			)
			return resp, nil
		},
		Error: func(ctx context.Context, failure *domain.Failure) (*Response, *domain.Failure) {
			logger.WarnContext(ctx, "api_error",
				"code", string(failure.Code),
				"status", failure.HTTPStatus,
				"retryable", failure.Retryable,
				"error", failure.Message,
			)
			return nil, nil
		},
	}
}

func RequestIDInterceptor() Interceptor {
	return Interceptor{
		Name: "request_id",
		Request: func(_ context.Context, cfg RequestConfig) (RequestConfig, error) {
			if cfg.Header.Get("X-Request-Id") == "" {
				cfg.Header.Set("X-Request-Id", uuid.NewString())
			}
			return cfg, nil
		},
	}
}

func ClientVersionInterceptor(version string) Interceptor {
	if version == "" {
		version = ClientVersion
	}
	return Interceptor{
		Name: "client_version",
		Request: func(_ context.Context, cfg RequestConfig) (RequestConfig, error) {
			cfg.Header.Set("X-Client-Version", version)
			return cfg, nil
		},
	}
}

// AuthInterceptor sets a bearer token on every attempt so refreshed
// credentials are picked up by retries.
func AuthInterceptor(provider ports.TokenProvider) Interceptor {
	return Interceptor{
		Name: "auth",
		Request: func(ctx context.Context, cfg RequestConfig) (RequestConfig, error) {
			token, err := provider.Token(ctx)
			if err != nil {
				return cfg, domain.NewFailure(domain.CodeAuthentication, 0, "obtain auth token", false).WithCause(err)
			}
			if token == "" {
				return cfg, nil
			}
			if !strings.HasPrefix(token, "Bearer ") {
				token = "Bearer " + token
			}
			cfg.Header.Set("Authorization", token)
			return cfg, nil
		},
	}
}
