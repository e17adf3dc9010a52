package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Kind tags an Error with the failure class the caller should react to.
// Classification happens in exactly one place (classifyResponse); call sites
// switch on Kind instead of sniffing message text.
type Kind int

const (
	// KindNetwork: the request produced no response. Transient; never a
	// reason to discard local state or force logout.
	KindNetwork Kind = iota
	// KindAuth: a 401 that survived the refresh cycle.
	KindAuth
	// KindValidation: a 4xx whose detail describes a user-fixable input.
	KindValidation
	// KindNotFound: the addressed resource does not exist (anymore).
	KindNotFound
	// KindServer: a 5xx or an unclassifiable failure.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "server"
	}
}

// Error is the tagged failure result for every backend interaction.
// Field is set for validation errors that belong next to a specific input.
type Error struct {
	Kind   Kind
	Status int
	Field  string
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
}

func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// networkError wraps a transport-level failure (no response received).
func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Detail: "backend unreachable", cause: err}
}

// errorBody is the FastAPI error envelope. Detail is usually a string but
// arrives as an array of objects for schema validation failures.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// classifyResponse turns a non-2xx response into a tagged *Error. It is the
// single place response status and detail are interpreted.
func classifyResponse(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	detail := ""
	var envelope errorBody
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		if err := json.Unmarshal(envelope.Detail, &detail); err != nil {
			// Array-form validation detail; keep the raw text for the log,
			// callers only need the kind and field.
			detail = string(envelope.Detail)
		}
	}

	apiErr := &Error{Status: resp.StatusCode, Detail: detail}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Kind = KindAuth
	case resp.StatusCode == http.StatusNotFound:
		apiErr.Kind = KindNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		apiErr.Kind = KindValidation
		apiErr.Field = fieldForDetail(detail)
	default:
		apiErr.Kind = KindServer
	}
	return apiErr
}

// fieldForDetail maps the backend's known validation messages to the input
// they belong to, so the UI can surface them next to the right field.
func fieldForDetail(detail string) string {
	switch {
	case strings.EqualFold(detail, "Email already registered"):
		return "email"
	case strings.EqualFold(detail, "Username already taken"):
		return "username"
	case strings.Contains(strings.ToLower(detail), "password"):
		return "password"
	case strings.Contains(strings.ToLower(detail), "token"):
		return "token"
	default:
		return ""
	}
}
