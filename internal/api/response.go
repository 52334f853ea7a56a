package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/NamePlay/internal/flow"
	"github.com/BTreeMap/NamePlay/internal/leaderboard"
	"github.com/BTreeMap/NamePlay/internal/models"
	"github.com/BTreeMap/NamePlay/internal/nameapi"
	"github.com/BTreeMap/NamePlay/internal/share"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeError maps err onto a status code and writes the error envelope.
func writeError(w http.ResponseWriter, err error) {
	writeJSONResponse(w, statusFor(err), models.Error(err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrMissingAge), errors.Is(err, models.ErrInvalidAge),
		errors.Is(err, models.ErrMissingGender), errors.Is(err, models.ErrInvalidGender),
		errors.Is(err, models.ErrEmptyInput), errors.Is(err, models.ErrInvalidRating),
		errors.Is(err, models.ErrMissingRecipient), errors.Is(err, models.ErrRecipientTooLong),
		errors.Is(err, models.ErrInvalidPageNumber), errors.Is(err, flow.ErrFormIncomplete),
		errors.Is(err, leaderboard.ErrPageOutOfRange), errors.Is(err, errInvalidJSON):
		return http.StatusBadRequest
	case errors.Is(err, flow.ErrNotInForm), errors.Is(err, flow.ErrNotInChat),
		errors.Is(err, flow.ErrBusy), errors.Is(err, flow.ErrNotAwaitingInput),
		errors.Is(err, flow.ErrNotInResult), errors.Is(err, flow.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, share.ErrNotConfigured):
		return http.StatusNotImplemented
	case errors.Is(err, nameapi.ErrTransport), errors.Is(err, nameapi.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errInvalidJSON is reported for undecodable request bodies.
var errInvalidJSON = errors.New("invalid JSON format")

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Server.decodeJSON: failed to decode JSON", "path", r.URL.Path, "error", err)
		return errInvalidJSON
	}
	return nil
}
