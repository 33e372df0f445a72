package api

import "github.com/FocuswithJustin/LegacyBridge/internal/config"

// Config holds server configuration.
type Config struct {
	Port              int
	RateLimitRequests int        // Requests per minute (0 = disabled)
	RateLimitBurst    int        // Burst size
	Auth              AuthConfig // Authentication configuration
	TLS               TLSConfig  // TLS configuration
	AllowedOrigins    []string   // CORS and WebSocket allowed origins (empty = allow all)
	MaxJobs           int        // Jobs kept in memory; finished jobs are evicted first
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   // Enable HTTPS
	CertFile string // Path to TLS certificate file
	KeyFile  string // Path to TLS private key file
}

// ConfigFrom converts the server section of a configuration file. An API
// key turns authentication on; a certificate and key turn TLS on.
func ConfigFrom(s config.ServerConfig) Config {
	return Config{
		Port:              s.Port,
		RateLimitRequests: s.RateLimitRequests,
		RateLimitBurst:    s.RateLimitBurst,
		Auth:              AuthConfig{Enabled: s.APIKey != "", APIKey: s.APIKey},
		TLS:               TLSConfig{Enabled: s.TLSCert != "", CertFile: s.TLSCert, KeyFile: s.TLSKey},
		AllowedOrigins:    s.AllowedOrigins,
		MaxJobs:           s.MaxJobs,
	}
}
