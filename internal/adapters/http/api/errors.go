package api

import (
	"errors"
	"net/http"

	"github.com/okian/rankboard/internal/adapters/repository"
	service "github.com/okian/rankboard/internal/app"
	"github.com/okian/rankboard/internal/domain/keys"
	"github.com/okian/rankboard/internal/domain/model"
	"github.com/okian/rankboard/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
)

// classify maps an error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, keys.ErrInvalidKey),
		errors.Is(err, types.ErrUnknownAction),
		errors.Is(err, model.ErrInvalidPath),
		errors.Is(err, service.ErrInvalidRange):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}
