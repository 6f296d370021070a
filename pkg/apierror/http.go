package apierror

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ServerError hides err from the caller; the original error stays reachable for logging.
func ServerError(err error) *APIError {
	return &APIError{
		Code:        CodeServerError,
		Description: "an unexpected error occurred",
		HTTPStatus:  http.StatusInternalServerError,
		Err:         err,
	}
}

// From returns err as an *APIError, mapping anything untyped to ServerError.
func From(err error) *APIError {
	if apiErr, ok := As(err); ok {
		return apiErr
	}
	return ServerError(err)
}

// Write sends e as a JSON error body. 401 responses always carry WWW-Authenticate and 429
// responses always carry Retry-After.
func Write(w http.ResponseWriter, e *APIError) {
	status := e.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	switch status {
	case http.StatusUnauthorized:
		challenge := e.Challenge
		if challenge == "" {
			challenge = Challenge("Bearer", DefaultRealm)
		}
		h.Set("WWW-Authenticate", challenge)
	case http.StatusTooManyRequests:
		retryAfter := e.RetryAfter
		if retryAfter < 1 {
			retryAfter = 1
		}
		h.Set("Retry-After", strconv.Itoa(retryAfter))
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}
