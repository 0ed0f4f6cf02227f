// Package handler serves the analytics over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/fredphp/yunwei/internal/apierrors"
	"github.com/fredphp/yunwei/internal/correlation"
)

// maxBodyBytes bounds request bodies, batch ingestion included.
const maxBodyBytes = 8 << 20

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err onto the error envelope. Unexpected errors are logged with the
// request's correlation id; their text never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierrors.FromError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		correlation.Logger(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	apiErr.Write(w, r)
}

// decodeJSON reads a bounded JSON body into dest.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apierrors.NewBadRequestError("request body too large")
		case errors.Is(err, io.EOF):
			return apierrors.NewBadRequestError("request body is empty")
		default:
			return apierrors.NewBadRequestError("invalid request body: " + err.Error())
		}
	}
	return nil
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, apierrors.NewValidationError("invalid "+name, map[string]string{
			"field":  name,
			"value":  s,
			"reason": "must be a positive integer",
		})
	}
	return n, nil
}

type statusRequest struct {
	Status string `json:"status"`
}
