package middleware

import (
	"log/slog"
	"net/http"

	"go-auth-server/pkg/apierror"
)

func writeError(w http.ResponseWriter, r *http.Request, e *apierror.APIError) {
	if e.HTTPStatus >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", e.Err)
	}
	apierror.Write(w, e)
}
