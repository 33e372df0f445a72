package pipeline

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/security"
)

// Config controls a Pipeline. Zero limits and a zero pool size take their
// defaults.
type Config struct {
	// StrictValidation aborts on forbidden control words and on script
	// injection in Markdown instead of skipping or flagging them.
	StrictValidation bool `yaml:"strict_validation" json:"strict_validation"`
	// AutoRecovery repairs malformed input and invalid documents. Without
	// it any validation error fails the conversion.
	AutoRecovery bool `yaml:"auto_recovery" json:"auto_recovery"`
	// Template names a registered template applied to every document.
	Template string `yaml:"template" json:"template,omitempty"`
	// TemplateVars override the template's default variables.
	TemplateVars map[string]string `yaml:"template_vars" json:"template_vars,omitempty"`
	// PreserveFormatting keeps run attributes. When false, runs are reset
	// to plain text before generation.
	PreserveFormatting bool `yaml:"preserve_formatting" json:"preserve_formatting"`
	// LegacyCompatibility writes cp1252 hex escapes and CRLF line endings.
	LegacyCompatibility bool `yaml:"legacy_compatibility_mode" json:"legacy_compatibility_mode"`

	Limits security.Limits `yaml:"limits" json:"limits"`
	// Denied replaces the default control-word deny-list when non-nil.
	Denied []string `yaml:"denied_control_words" json:"denied_control_words,omitempty"`
	// Allowed, when non-nil, rejects every control word not listed.
	Allowed []string `yaml:"allowed_control_words" json:"allowed_control_words,omitempty"`

	// Workers sizes the batch worker pool.
	Workers int `yaml:"workers" json:"workers"`
}

// DefaultConfig returns the shipped configuration: lenient validation with
// automatic recovery and formatting preserved.
func DefaultConfig() Config {
	return Config{
		AutoRecovery:       true,
		PreserveFormatting: true,
		Limits:             security.DefaultLimits(),
		Workers:            runtime.NumCPU(),
	}
}

// defaults fills zero-valued limits and pool size.
func (c *Config) defaults() {
	c.Limits = c.Limits.Normalize()
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Workers > maxWorkers {
		c.Workers = maxWorkers
	}
}

// policy builds the control-word policy of c.
func (c *Config) policy() *security.Policy {
	denied := c.Denied
	if denied == nil {
		denied = security.DefaultDenied()
	}
	return security.NewPolicy(denied, c.Allowed)
}

// Host option keys, as used in "key=value&..." option strings.
const (
	OptStrictValidation    = "strict_validation"
	OptAutoRecovery        = "auto_recovery"
	OptTemplate            = "template"
	OptPreserveFormatting  = "preserve_formatting"
	OptLegacyCompatibility = "legacy_compatibility_mode"
)

// Set applies one host option. Boolean options accept the values
// strconv.ParseBool accepts. Keys starting with "var." set template
// variables.
func (c *Config) Set(key, value string) error {
	key = strings.TrimSpace(key)
	if name, ok := strings.CutPrefix(key, "var."); ok && name != "" {
		if c.TemplateVars == nil {
			c.TemplateVars = map[string]string{}
		}
		c.TemplateVars[name] = value
		return nil
	}

	var dst *bool
	switch key {
	case OptTemplate:
		c.Template = strings.TrimSpace(value)
		return nil
	case OptStrictValidation:
		dst = &c.StrictValidation
	case OptAutoRecovery:
		dst = &c.AutoRecovery
	case OptPreserveFormatting:
		dst = &c.PreserveFormatting
	case OptLegacyCompatibility:
		dst = &c.LegacyCompatibility
	default:
		return errors.NewValidation(key, "unknown option")
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return errors.NewValidation(key, fmt.Sprintf("%q is not a boolean", value))
	}
	*dst = b
	return nil
}
