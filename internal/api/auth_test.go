package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	enabled := AuthConfig{Enabled: true, APIKey: testAPIKey}

	tests := []struct {
		name       string
		cfg        AuthConfig
		path       string
		key        string
		wantStatus int
		wantCalled bool
	}{
		{"disabled", AuthConfig{}, "/convert", "", http.StatusOK, true},
		{"valid key", enabled, "/convert", testAPIKey, http.StatusOK, true},
		{"missing key", enabled, "/convert", "", http.StatusUnauthorized, false},
		{"wrong key", enabled, "/convert", "wrong-key-123456789", http.StatusUnauthorized, false},
		{"public root", enabled, "/", "", http.StatusOK, true},
		{"public health", enabled, "/health", "", http.StatusOK, true},
		{"websocket authenticates itself", enabled, "/ws", "", http.StatusOK, true},
		{"templates protected", enabled, "/templates/memo", "", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := AuthMiddleware(tt.cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestValidateAuthConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AuthConfig
		wantErr bool
	}{
		{"disabled", AuthConfig{}, false},
		{"disabled ignores key", AuthConfig{APIKey: "x"}, false},
		{"valid", AuthConfig{Enabled: true, APIKey: testAPIKey}, false},
		{"empty key", AuthConfig{Enabled: true}, true},
		{"short key", AuthConfig{Enabled: true, APIKey: "0123456789abcde"}, true},
		{"minimum length", AuthConfig{Enabled: true, APIKey: "0123456789abcdef"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateAuthConfig(tt.cfg); (err != nil) != tt.wantErr {
				t.Errorf("ValidateAuthConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConstantTimeCompare(t *testing.T) {
	if !constantTimeCompare("abc", "abc") {
		t.Error("equal strings reported different")
	}
	if constantTimeCompare("abc", "abd") || constantTimeCompare("abc", "abcd") || constantTimeCompare("", "a") {
		t.Error("different strings reported equal")
	}
}
