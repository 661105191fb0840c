package httpadapter

import (
	"net/http"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		// Includes ErrTemporary: 503 is reserved for the not-initialized
		// window, a failed backend call surfaces as a plain 500.
		return http.StatusInternalServerError
	}
}
