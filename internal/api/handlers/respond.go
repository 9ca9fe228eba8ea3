package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Togather-Foundation/recipes/internal/api/problem"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeBody reads a single JSON object into dst and validates it. On failure
// the error response has already been written and false is returned.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, env string) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.CodeTooLarge, "Request body too large", err, env)
		case errors.Is(err, io.EOF):
			problem.Write(w, r, http.StatusBadRequest, problem.CodeBadRequest, "Request body is required", err, env)
		default:
			problem.Write(w, r, http.StatusBadRequest, problem.CodeBadRequest, "Invalid JSON body", err, env)
		}
		return false
	}
	if dec.More() {
		problem.Write(w, r, http.StatusBadRequest, problem.CodeBadRequest, "Request body must contain a single JSON object", nil, env)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.CodeValidation, "Request validation failed", err, env,
			problem.WithFields(validationFields(err)))
		return false
	}
	return true
}

func validationFields(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule = fmt.Sprintf("%s=%s", rule, fe.Param())
		}
		fields[lowerFirst(fe.Field())] = rule
	}
	return fields
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// optionalString turns "" into nil so storage sees NULL.
func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
