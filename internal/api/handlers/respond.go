package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/api/middleware"
	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/api/problem"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pathParam(r *http.Request, key string) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.PathValue(key))
}

// idParam reads a ULID path value and answers 400 when it is malformed.
func idParam(w http.ResponseWriter, r *http.Request, key, env string) (string, bool) {
	value := ids.Normalize(pathParam(r, key))
	if err := ids.ValidateULID(value); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", errs.Invalid(key, "must be a valid ULID"), env,
			problem.WithErrors(map[string]interface{}{key: "must be a valid ULID"}))
		return "", false
	}
	return value, true
}

// decodeJSON reads a JSON body into dst. Unknown fields are rejected so typos
// in partial updates do not silently no-op.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, env string) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypePayloadTooLarge, "Request body too large", err, env)
		case errors.Is(err, io.EOF):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeBadRequest, "Request body required", err, env)
		default:
			problem.Write(w, r, http.StatusBadRequest, problem.TypeBadRequest, "Malformed JSON body", err, env)
		}
		return false
	}
	return true
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// readBody reads a raw body, mapping oversize bodies to 413.
func readBody(w http.ResponseWriter, r *http.Request, env string) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypePayloadTooLarge, "Request body too large", err, env)
			return nil, false
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeBadRequest, "Unreadable request body", err, env)
		return nil, false
	}
	return body, true
}

// writeDomainError maps domain error kinds to problem responses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, env string) {
	if list, ok := errs.AsValidation(err); ok {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, env, problem.WithErrors(list.Fields()))
		return
	}

	var opts []problem.Option
	if msg, ok := errs.Message(err); ok {
		opts = append(opts, problem.WithDetail(msg))
	}

	switch {
	case errors.Is(err, errs.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, env, opts...)
	case errors.Is(err, errs.ErrInvalidTransition):
		problem.Write(w, r, http.StatusConflict, problem.TypeInvalidTransition, "Invalid state transition", err, env, opts...)
	case errors.Is(err, errs.ErrConflict):
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Conflict", err, env, opts...)
	case errors.Is(err, errs.ErrInvalidReference):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeInvalidReference, "Invalid reference", err, env, opts...)
	case errors.Is(err, errs.ErrForbidden):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, env, opts...)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, env)
	}
}

func writeBadQuery(w http.ResponseWriter, r *http.Request, field string, err error, env string) {
	problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid query parameter", err, env,
		problem.WithErrors(map[string]interface{}{field: err.Error()}))
}

// pageParams parses ?limit= and ?after=.
func pageParams(w http.ResponseWriter, r *http.Request, env string) (pagination.Page, bool) {
	page, err := pagination.ParsePage(r.URL.Query())
	if err != nil {
		field := "after"
		if errors.Is(err, pagination.ErrInvalidLimit) {
			field = "limit"
		}
		writeBadQuery(w, r, field, err, env)
		return page, false
	}
	return page, true
}

// timeParam parses an optional RFC 3339 timestamp or YYYY-MM-DD date.
func timeParam(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("must be an RFC 3339 timestamp or YYYY-MM-DD date")
	}
	return &t, nil
}

func boolParam(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

// scope returns the tenant scope set by middleware.TenantScope. Routes are
// only mounted behind that middleware, so a missing scope is a wiring bug.
func scope(w http.ResponseWriter, r *http.Request, env string) (middleware.Scope, bool) {
	s, ok := middleware.ScopeFrom(r.Context())
	if !ok {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", errors.New("tenant scope missing"), env)
		return s, false
	}
	return s, true
}
