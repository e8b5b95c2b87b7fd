package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// NonFieldKey is the conventional key for errors not bound to a form field.
const NonFieldKey = "non_field_errors"

// APIError is a classified non-2xx response with the parsed error envelope.
type APIError struct {
	Status  int
	Fields  map[string][]string // field name -> messages
	Message string              // detail / error / first non-field message
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("http %d: %s", e.Status, e.FieldSummary())
	}
	return fmt.Sprintf("http %d: %s", e.Status, http.StatusText(e.Status))
}

// Unwrap maps the status onto the taxonomy so callers can use errors.Is.
func (e *APIError) Unwrap() error { return ForStatus(e.Status) }

// FieldSummary renders field errors as "field: msg; field: msg" in stable order.
func (e *APIError) FieldSummary() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+strings.Join(e.Fields[n], ", "))
	}
	return strings.Join(parts, "; ")
}

// ForStatus returns the sentinel for an HTTP status, or nil for 2xx/3xx.
func ForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusBadRequest:
		return ErrValidation
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusGone:
		return ErrExpired
	case status >= 500:
		return ErrServer
	case status >= 400:
		return ErrValidation
	default:
		return nil
	}
}

// Parse builds an APIError from a status and raw response body.
// Unknown bodies (HTML error pages, empty) keep only the status.
func Parse(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	if len(body) == 0 {
		return e
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return e
	}

	for _, key := range []string{"detail", "error", "message"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		delete(raw, key)
		var s string
		if e.Message == "" && json.Unmarshal(v, &s) == nil && s != "" {
			e.Message = s
		}
	}

	if nested, ok := raw["errors"]; ok {
		var m map[string]json.RawMessage
		if json.Unmarshal(nested, &m) == nil {
			for k, v := range m {
				e.addField(k, v)
			}
		}
		delete(raw, "errors")
	}
	for k, v := range raw {
		e.addField(k, v)
	}

	if e.Message == "" {
		if msgs := e.Fields[NonFieldKey]; len(msgs) > 0 {
			e.Message = msgs[0]
		}
	}
	return e
}

func (e *APIError) addField(name string, v json.RawMessage) {
	var list []string
	if json.Unmarshal(v, &list) != nil {
		var one string
		if json.Unmarshal(v, &one) != nil || one == "" {
			return
		}
		list = []string{one}
	}
	if len(list) == 0 {
		return
	}
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[name] = append(e.Fields[name], list...)
}

// FieldErrors returns the per-field messages of err if it is an APIError.
func FieldErrors(err error) map[string][]string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}

// Transient reports whether a read may be retried.
func Transient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer)
}
