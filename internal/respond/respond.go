package respond

import (
	"encoding/json"
	"net/http"

	"github.com/stanstork/opsdesk-api/internal/apperr"
)

type errorBody struct {
	Error   apperr.Kind       `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Status maps an error kind onto its HTTP status code.
func Status(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindAlreadyAccepted, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes err as a JSON error body. Internal messages are never exposed.
func Error(w http.ResponseWriter, err error) {
	body := errorBody{Error: apperr.KindInternal, Message: "internal server error"}
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		body = errorBody{Error: e.Kind, Message: e.Message, Fields: e.Fields}
	}
	if body.Message == "" {
		body.Message = string(body.Error)
	}
	JSON(w, Status(body.Error), body)
}
