package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DoyleJ11/island-duel-backend/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status through its apperr kind.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.StatusCode(err), errorResponse{
		Error: apperr.Message(err),
		Code:  apperr.CodeOf(err),
	})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.ErrBadRequest
	}
	return nil
}
