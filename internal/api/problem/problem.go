package problem

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/json"

// Envelope is the failure body every endpoint returns: {success:false, error}.
type Envelope struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	URL     string         `json:"url,omitempty"`
	Detail  string         `json:"detail,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

type Option func(*Envelope)

func WithURL(url string) Option {
	return func(e *Envelope) {
		e.URL = url
	}
}

func WithDetail(detail string) Option {
	return func(e *Envelope) {
		e.Detail = detail
	}
}

func WithFields(fields map[string]any) Option {
	return func(e *Envelope) {
		e.Fields = fields
	}
}

// Write renders a failure envelope. Underlying error text is only exposed in
// development and test; elsewhere the message alone is returned. 5xx errors
// log at error, 4xx at warn, through the request logger.
func Write(w http.ResponseWriter, r *http.Request, status int, code, message string, err error, env string, opts ...Option) {
	body := Envelope{
		Success: false,
		Error:   message,
		Code:    code,
	}
	for _, opt := range opts {
		opt(&body)
	}
	if body.Detail == "" && err != nil && (env == "development" || env == "test") {
		body.Detail = err.Error()
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.
			Err(err).
			Int("status", status).
			Str("code", code).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(message)
	}

	WriteEnvelope(w, status, body)
}

func WriteEnvelope(w http.ResponseWriter, status int, body Envelope) {
	payload, err := json.Marshal(body)
	if err != nil {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

const (
	CodeBadRequest   = "bad_request"
	CodeValidation   = "validation_failed"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeTooLarge     = "payload_too_large"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
