package api

import (
	"errors"

	"StagAlgo/internal/search"
	"StagAlgo/internal/services/remote"
	"StagAlgo/internal/usecase"
	xhttp "StagAlgo/pkg/http"
)

// Handler mounts every API route group under /api.
type Handler struct {
	xhttp.Handler
}

func NewHandler(market *MarketHandler, trades *TradeHandler, search *SearchHandler) *Handler {
	return &Handler{Handler: xhttp.Mount("/api", market, trades, search)}
}

var (
	_ xhttp.RouteGroup = (*MarketHandler)(nil)
	_ xhttp.RouteGroup = (*TradeHandler)(nil)
	_ xhttp.RouteGroup = (*SearchHandler)(nil)
)

// appError maps use case errors to API errors.
func appError(err error) *xhttp.AppError {
	var ae *xhttp.AppError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, usecase.ErrBadRequest), errors.Is(err, usecase.ErrNoPrice), errors.Is(err, search.ErrInvalid):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, search.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, remote.ErrNotConfigured), errors.Is(err, usecase.ErrUnavailable):
		return xhttp.UnavailableError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}

func rateLimitedError() *xhttp.AppError {
	return xhttp.RateLimitedError("too many trade submissions", 1)
}
