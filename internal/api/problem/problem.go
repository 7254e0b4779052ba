// Package problem writes RFC 7807 problem+json error responses.
package problem

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

const typeBase = "https://breederhq.com/problems/"

// Problem type URIs returned in the "type" member.
const (
	TypeBadRequest        = typeBase + "bad-request"
	TypeValidation        = typeBase + "validation-error"
	TypeUnauthorized      = typeBase + "unauthorized"
	TypeForbidden         = typeBase + "forbidden"
	TypeNotFound          = typeBase + "not-found"
	TypeConflict          = typeBase + "conflict"
	TypeInvalidTransition = typeBase + "invalid-transition"
	TypeInvalidReference  = typeBase + "invalid-reference"
	TypePayloadTooLarge   = typeBase + "payload-too-large"
	TypeRateLimited       = typeBase + "rate-limited"
	TypeSignature         = typeBase + "invalid-signature"
	TypeBadGateway        = typeBase + "upstream-error"
	TypeServerError       = typeBase + "server-error"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate limited")
)

type ProblemDetails struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Status    int            `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	Instance  string         `json:"instance,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Errors    map[string]any `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) { p.Detail = detail }
}

// WithErrors attaches per-field messages.
func WithErrors(fields map[string]any) Option {
	return func(p *ProblemDetails) { p.Errors = fields }
}

// Write logs err against the request logger and renders the problem. Raw
// error text becomes the detail only in development and test; elsewhere the
// detail falls back to the status text unless an option supplied one.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	p := ProblemDetails{Type: typ, Title: title, Status: status}
	for _, opt := range opts {
		opt(&p)
	}
	if p.Detail == "" && err != nil {
		p.Detail = http.StatusText(status)
		if env == "development" || env == "test" {
			p.Detail = err.Error()
		}
	}
	p.RequestID = w.Header().Get("X-Request-ID")
	if r != nil {
		if p.Instance == "" {
			p.Instance = r.URL.Path
		}
		if err != nil {
			logProblem(r, p, err)
		}
	}
	WriteProblem(w, p)
}

func logProblem(r *http.Request, p ProblemDetails, err error) {
	logger := zerolog.Ctx(r.Context())
	event := logger.Warn()
	if p.Status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).
		Int("status", p.Status).
		Str("type", p.Type).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(p.Title)
}

const marshalFallback = `{"type":"about:blank","title":"Internal Server Error","status":500}`

func WriteProblem(w http.ResponseWriter, p ProblemDetails) {
	body, err := json.Marshal(p)
	status := p.Status
	if err != nil {
		body, status = []byte(marshalFallback), http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
