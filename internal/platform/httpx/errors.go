package httpx

import (
	"errors"
	"net/http"
)

// ErrUpstream marks a platform API call that failed at the transport level.
var ErrUpstream = errors.New("upstream unavailable")

// RespondError maps console errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUpstream):
		Problem(w, http.StatusBadGateway, "Upstream Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
