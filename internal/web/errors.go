package web

// errors.go provides unified error responses for the JSON API.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls s.respondError(w, r, err)
//  3. statusFor picks the HTTP status from the error chain
//  4. core.MapError turns the error into a coded user message
//  5. The technical error is logged with request and session IDs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/logging"
	"github.com/JonMunkholm/importwizard/internal/wizard"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps an error chain to an HTTP status. Order matters: the
// wizard's own errors are checked before the backend call errors they
// may wrap.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	var callErr *core.CallError

	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrParse), errors.Is(err, core.ErrNoMapping):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wizard.ErrUnknownTemplate):
		return http.StatusNotFound
	case errors.Is(err, core.ErrBusy),
		errors.Is(err, wizard.ErrWrongStage),
		errors.Is(err, wizard.ErrStale),
		errors.Is(err, wizard.ErrOutOfRange):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrInvalid), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrConnectivity):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	case errors.As(err, &callErr) && callErr.Status >= 400 && callErr.Status < 500:
		// The backend refused the request content, e.g. a duplicate template name.
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrServer):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// badRequest wraps err as a REQ001 user error.
func badRequest(err error) error {
	return &core.UserError{
		Technical: errors.Join(errBadRequest, err),
		User: core.UserMessage{
			Message: "The request could not be read: " + err.Error(),
			Action:  "Check the request body and parameters",
			Code:    "REQ001",
		},
	}
}

// respondError logs the technical error and writes its user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	writeJSONStatus(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// writeJSON encodes v as a 200 JSON response.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}

// maxJSONBody bounds the JSON bodies the API accepts.
const maxJSONBody = 1 << 20

// decodeJSON reads a small JSON body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest(err)
	}
	return nil
}
