package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/internal/validation"
)

// apiCSP forbids every resource; API responses are never rendered.
const apiCSP = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"

// SecurityHeaders adds the standard security headers to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", apiCSP)
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware sets CORS headers. With no allowed origins every origin
// is allowed; otherwise requests from other origins get no CORS headers
// and their preflight requests are refused.
func CORSMiddleware(allowedOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowOrigin := "*"
		if len(allowedOrigins) > 0 {
			origin := r.Header.Get("Origin")
			if !isOriginAllowed(origin, allowedOrigins) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			allowOrigin = origin
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed matches origin against exact entries, "*" and
// "*.example.com" subdomain patterns.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range allowedOrigins {
		switch {
		case allowed == "*", origin == allowed:
			return true
		case strings.HasPrefix(allowed, "*."):
			if strings.HasSuffix(origin, allowed[1:]) {
				return true
			}
		}
	}
	return false
}

// ValidateID checks a job ID or template name taken from a URL path. It
// must be a single safe filename component.
func ValidateID(id string) error {
	if id == "" {
		return errors.NewValidation("id", "ID cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) {
		return errors.NewValidation("id", "ID cannot contain path separators")
	}
	if err := validation.ValidateFilename(id); err != nil {
		return errors.NewValidation("id", err.Error())
	}
	if filepath.Base(filepath.Clean(id)) != id {
		return errors.NewValidation("id", fmt.Sprintf("%q is not a canonical name", id))
	}
	return nil
}
