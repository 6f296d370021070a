package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, model.APIResponse{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeCredentials writes a response that carries tokens or codes, which must not be cached.
func writeCredentials(w http.ResponseWriter, status int, body any) {
	h := w.Header()
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	writeJSON(w, status, body)
}

// writeError maps err to its status and body. Untyped errors become 500 server_error and
// are only logged.
func writeError(w http.ResponseWriter, err error) {
	apiErr := apierror.From(err)
	if apiErr.HTTPStatus >= http.StatusInternalServerError {
		slog.Error("unhandled error in writeError", "error", err.Error())
	}
	apierror.Write(w, apiErr)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apierror.Validation("invalid JSON body")
	}
	return nil
}
