package http

import (
	"encoding/json"
	"net/http"

	"github.com/NamanBalaji/vodbatch/internal/errors"
	"github.com/NamanBalaji/vodbatch/internal/logger"
)

type errorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Status string    `json:"status"`
	Error  errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders err as the JSON error envelope. Server-side failures
// are logged in full and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	body := errorBody{
		Code:      errorCode(err),
		Message:   clientMessage(err),
		RequestID: requestIDFromContext(r.Context()),
	}

	var miss *errors.MissingFilesError
	if errors.As(err, &miss) {
		body.Details = map[string]any{"missing": miss.Missing}
	}

	var e *errors.Error
	if errors.As(err, &e) && len(e.Details) > 0 && status < http.StatusInternalServerError {
		if body.Details == nil {
			body.Details = make(map[string]any, len(e.Details))
		}
		for k, v := range e.Details {
			body.Details[k] = v
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s failed (req %s): %v", r.Method, r.URL.Path, body.RequestID, err)
		body.Message = http.StatusText(status)
	}

	writeJSON(w, status, errorResponse{Status: "error", Error: body})
}

func errorCode(err error) string {
	var miss *errors.MissingFilesError
	if errors.As(err, &miss) {
		return "MISSING_FILES"
	}

	var e *errors.Error
	if errors.As(err, &e) {
		return string(e.Category)
	}

	return string(errors.CategoryUnknown)
}

// clientMessage drops the category prefix that *errors.Error adds.
func clientMessage(err error) string {
	var miss *errors.MissingFilesError
	if errors.As(err, &miss) {
		return miss.Error()
	}

	var e *errors.Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}

	return err.Error()
}
