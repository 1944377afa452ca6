// Package httputil provides JSON response helpers and bounded body reads.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bookmate/bookmate/internal/logging"
)

// MaxRequestBody caps JSON request bodies accepted by handlers.
const MaxRequestBody = 1 << 20

// Envelope is the JSON shape of every API response.
type Envelope struct {
	OK      bool                   `json:"ok"`
	Data    interface{}            `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes a success envelope around data.
func WriteData(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, Envelope{OK: true, Data: data})
}

// WriteErrorResponse writes a failure envelope carrying the request trace ID.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	env := Envelope{OK: false, Error: message, Code: code, Details: details}
	if r != nil {
		env.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, env)
}

// DecodeJSON decodes a bounded request body into target, rejecting unknown fields.
func DecodeJSON(r io.Reader, target interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r, MaxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// ReadAllWithLimit reads at most limit bytes and reports whether the body was longer.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads the body and fails if it exceeds limit.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return data, nil
}

// Snippet shortens a body for error messages.
func Snippet(body []byte, max int) string {
	s := strings.TrimSpace(string(body))
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:max] + "...(truncated)"
	}
	return s
}
