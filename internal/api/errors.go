package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"BreakoutScreener/internal/calculator"
	"BreakoutScreener/internal/collector"
	"BreakoutScreener/internal/scanner"
	"BreakoutScreener/internal/session"
	"BreakoutScreener/internal/universe"
)

var errBadParam = errors.New("bad parameter")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		cfgErr    *calculator.ConfigError
		lookupErr *universe.LookupError
		dataErr   *collector.DataUnavailableError
	)
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, scanner.ErrInvalidRequest), errors.Is(err, errBadParam):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrNoData):
		return http.StatusNotFound
	case errors.As(err, &lookupErr), errors.As(err, &dataErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
