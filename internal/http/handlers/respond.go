package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/familyassistant/server/internal/apperr"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

// respondJSON writes v with the given status
func respondJSON(w http.ResponseWriter, log zerolog.Logger, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}

// statusFor maps an error kind to its HTTP status. Auth handlers override NotFound per action.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrDuplicateIdentifier),
		errors.Is(err, apperr.ErrInvalidOrExpiredCode),
		errors.Is(err, apperr.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrInvalidCredential), errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotInFamily):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondWithAppError writes err with its mapped status and public message
func respondWithAppError(w http.ResponseWriter, err error) {
	respondWithError(w, statusFor(err), apperr.Message(err))
}

// readBody reads a bounded request body. An empty body reads as "{}".
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, apperr.Validation("invalid request body")
	}
	if len(body) > maxBodyBytes {
		return nil, apperr.Validation("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("{}"), nil
	}
	return body, nil
}

// decodeInto unmarshals a JSON object body into each destination
func decodeInto(body []byte, dst ...any) error {
	for _, d := range dst {
		if err := json.Unmarshal(body, d); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				if typeErr.Field == "" {
					return apperr.Validation("request body must be a JSON object")
				}
				return apperr.Validation("invalid value for %s", typeErr.Field)
			}
			return apperr.Validation("invalid JSON body: %s", syntaxHint(err))
		}
	}
	return nil
}

// decodeJSON reads the body and unmarshals it into dst
func decodeJSON(r *http.Request, dst ...any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	return decodeInto(body, dst...)
}

func syntaxHint(err error) string {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("syntax error at offset %d", syntaxErr.Offset)
	}
	return err.Error()
}
