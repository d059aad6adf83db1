package http

import (
	"net/http"

	"github.com/pulsemon/pulsemon/internal/monerr"
)

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch monerr.KindOf(err) {
	case monerr.KindValidation, monerr.KindFormat:
		return http.StatusBadRequest
	case monerr.KindNotFound:
		return http.StatusNotFound
	case monerr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
