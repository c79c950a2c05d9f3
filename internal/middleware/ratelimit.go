package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"StreamCast/internal/service/ratelimit"
	xhttp "StreamCast/pkg/http"
)

// RateLimit rejects clients that exceed rps requests per second with bursts up
// to burst. Clients are keyed by their real IP.
func RateLimit(l *ratelimit.Limiter, rps float64, burst int) echo.MiddlewareFunc {
	if burst <= 0 {
		burst = 1
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP(), float64(burst), rps) {
				c.Response().Header().Set("Retry-After", retryAfter(rps))
				return xhttp.DataResponse(c, http.StatusTooManyRequests, []*xhttp.AppError{
					xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many requests", http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}

// retryAfter is the wait for one token, in whole seconds.
func retryAfter(rps float64) string {
	if rps <= 0 || rps >= 1 {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(1 / rps)))
}
