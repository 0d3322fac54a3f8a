package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/pkg/models"
)

// maxBody caps request bodies, notifications included.
const maxBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

func errUnauthorized(msg string) error {
	return apperr.New(apperr.ErrUnauthorized, "%s", msg)
}

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrSignature):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the error's status. Unexpected errors are logged
// and their details kept from the caller.
func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := apperr.Message(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("err", err))
		msg = "internal error"
	} else if msg == "" {
		msg = err.Error()
	}
	writeJSON(w, errorResponse{Error: msg}, status)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperr.New(apperr.ErrValidation, "invalid request body: %v", err)
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, apperr.New(apperr.ErrValidation, "read body: %v", err)
	}
	return b, nil
}

// actor returns the authenticated caller or writes a 401.
func actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	a, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, errUnauthorized("authentication required"))
	}
	return a, ok
}
