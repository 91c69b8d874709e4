// Package httpx holds the JSON response helpers shared by the HTTP handlers
// and the mapping from store errors to status codes.
package httpx

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/ayush/favorites-app/internal/store"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteStoreError translates a store error into its status code and message.
// Unexpected errors become 500 with a generic message.
func WriteStoreError(w http.ResponseWriter, err error) {
	status := StoreStatus(err)
	msg := http.StatusText(status)
	switch status {
	case http.StatusBadRequest:
		msg = "invalid id"
		if errors.Is(err, store.ErrTooLong) {
			msg = "value too long"
		}
	case http.StatusNotFound:
		msg = "not found"
	case http.StatusConflict:
		msg = "already exists"
	case http.StatusServiceUnavailable:
		msg = "storage unavailable"
	case http.StatusInternalServerError:
		msg = "internal error"
	}
	WriteError(w, status, msg)
}

// StoreStatus maps store sentinel errors to HTTP status codes.
func StoreStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, store.ErrInvalidID), errors.Is(err, store.ErrTooLong):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// IsJSON reports whether the request body is declared as JSON.
func IsJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// Fields reads string fields from either a JSON object body or a
// form-encoded body. Missing keys map to "".
func Fields(r *http.Request, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if IsJSON(r) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, err
		}
		for _, k := range keys {
			out[k], _ = body[k].(string)
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for _, k := range keys {
		out[k] = r.PostForm.Get(k)
	}
	return out, nil
}
