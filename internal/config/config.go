// Package config loads the LegacyBridge configuration file. The file is YAML
// with four sections:
//
//	pipeline:
//	  strict_validation: false
//	  auto_recovery: true
//	  limits:
//	    max_file_size: 10485760
//	    processing_timeout: 30s
//	server:
//	  port: 8080
//	templates:
//	  store: templates.db
//	  files: [letter.yaml, invoice.xml]
//	log:
//	  level: info
//	  format: json
//
// Omitted keys keep their defaults.
package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/pipeline"
	"github.com/FocuswithJustin/LegacyBridge/core/template"
	"github.com/FocuswithJustin/LegacyBridge/internal/logging"
)

// EnvPath names the environment variable holding the configuration file
// path for hosts without a command line.
const EnvPath = "LEGACYBRIDGE_CONFIG"

// Config is the whole configuration file.
type Config struct {
	Pipeline  pipeline.Config `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`
	Templates TemplatesConfig `yaml:"templates"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Port              int      `yaml:"port"`
	APIKey            string   `yaml:"api_key"`
	RateLimitRequests int      `yaml:"rate_limit_requests"` // per minute, 0 disables
	RateLimitBurst    int      `yaml:"rate_limit_burst"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	TLSCert           string   `yaml:"tls_cert"`
	TLSKey            string   `yaml:"tls_key"`
	MaxJobs           int      `yaml:"max_jobs"`
}

// TemplatesConfig lists template sources loaded at startup. Files are YAML
// or XML definitions; Store is a SQLite database that also receives
// templates created at run time.
type TemplatesConfig struct {
	Store string   `yaml:"store"`
	Files []string `yaml:"files"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used without a file.
func Default() Config {
	return Config{
		Pipeline: pipeline.DefaultConfig(),
		Server:   ServerConfig{Port: 8080, RateLimitBurst: 10, MaxJobs: 1000},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewIO("read", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv loads the file named by EnvPath, or returns the defaults when the
// variable is unset.
func FromEnv() (Config, error) {
	path := os.Getenv(EnvPath)
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes a configuration over the defaults. Unknown keys are errors.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.NewParse("yaml", "", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the decoder cannot.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidation("log.level", err.Error())
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return errors.NewValidation("log.format", err.Error())
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.NewValidation("server.port", fmt.Sprintf("%d is out of range", c.Server.Port))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.NewValidation("server.tls_cert", "tls_cert and tls_key must be set together")
	}
	if c.Pipeline.Template != "" && len(c.Templates.Files) == 0 && c.Templates.Store == "" {
		if _, err := template.Default().Get(c.Pipeline.Template); err != nil {
			return errors.NewValidation("pipeline.template", fmt.Sprintf("unknown template %q", c.Pipeline.Template))
		}
	}
	return nil
}

// InitLogging configures the global logger from the log section.
func (c Config) InitLogging() {
	level, _ := logging.ParseLevel(c.Log.Level)
	format, _ := logging.ParseFormat(c.Log.Format)
	logging.InitLogger(level, format)
}

// LoadTemplates registers the configured template files into r, replacing
// templates of the same name, then opens the store, if any, and registers
// its templates. The caller closes the returned store; it is nil without a
// configured store.
func (c Config) LoadTemplates(ctx context.Context, r *template.Registry) (*template.Store, error) {
	for _, path := range c.Templates.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewIO("read", path, err)
		}
		def, err := template.Load(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := r.Register(def, true); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if c.Templates.Store == "" {
		return nil, nil
	}

	store, err := template.OpenStore(c.Templates.Store)
	if err != nil {
		return nil, err
	}
	n, err := store.LoadInto(ctx, r)
	if err != nil {
		store.Close()
		return nil, err
	}
	logging.Debug("templates loaded", "store", c.Templates.Store, "count", n)
	return store, nil
}
