package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const apiVersion = "v1"

// envelope wraps every JSON body the server writes.
type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	Meta      meta      `json:"meta"`
	RequestID string    `json:"request_id,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type meta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func send(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	body.Meta = meta{Timestamp: time.Now().UTC(), Version: apiVersion}
	body.RequestID = requestIDFrom(r.Context())

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respond writes data; Success follows the status class.
func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	send(w, r, status, envelope{Success: status >= 200 && status < 300, Data: data})
}

// fail writes an error body. At most one details string is used.
func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, details ...string) {
	e := &apiError{Code: code, Message: message}
	if len(details) > 0 {
		e.Details = details[0]
	}
	send(w, r, status, envelope{Error: e})
}

// intParam returns def when key is absent.
func intParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
