package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/textract/docpipe"
	"github.com/hazyhaar/textract/shield"
)

// requestError is a transport-level rejection with a fixed status.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func unprocessable(msg string) error { return &requestError{status: http.StatusUnprocessableEntity, msg: msg} }
func badRequest(msg string) error    { return &requestError{status: http.StatusBadRequest, msg: msg} }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: write response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}

// writeFailure maps an error to its status code and a {"detail"} body:
// pipeline input errors are 400, oversized bodies 413, everything else 500.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	logger := shield.GetLogger(r.Context())

	var re *requestError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &re):
		writeDetail(w, re.status, re.msg)
	case errors.As(err, &mbe):
		writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
	case docpipe.IsClientError(err):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "error", err)
		writeDetail(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		logger.Info("request cancelled by client")
	default:
		logger.Error("internal error", "error", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads the request body into v. Malformed JSON is 422.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return unprocessable("invalid JSON body: " + err.Error())
	}
	return nil
}
