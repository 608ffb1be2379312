package httpadapter

import (
	"net/http"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

type errorResponse struct {
	Error string           `json:"error"`
	Code  domain.ErrorCode `json:"code"`
}

func mapErrorToHTTPStatus(err error) int {
	f := domain.AsFailure(err)
	if f == nil {
		return http.StatusOK
	}
	switch f.Code {
	case domain.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeCircuitOpen, domain.CodeNetwork, domain.CodeConnection:
		return http.StatusServiceUnavailable
	}
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTaskFailed):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	}
	if f.HTTPStatus > 0 {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	f := domain.AsFailure(err)
	writeJSON(w, mapErrorToHTTPStatus(f), errorResponse{
		Error: rt.service.UserMessage(f),
		Code:  f.Code,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message, Code: domain.CodeValidation})
}
