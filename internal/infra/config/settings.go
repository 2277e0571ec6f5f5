package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/gatechain/internal/app/config"
)

// SettingsFile is the settings file name inside the home directory
const SettingsFile = "settings.yaml"

// RawSettings represents the structure of settings.yaml.
// Nil fields are filled by applyDefaults.
type RawSettings struct {
	// Logging
	LogLevel  *string `yaml:"log_level" validate:"required,oneof=debug info warn warning error"`
	LogFormat *string `yaml:"log_format" validate:"required,oneof=console json"`

	// Session store
	SessionTimeout       *string `yaml:"session_timeout" validate:"required"`
	ReviewSessionTimeout *string `yaml:"review_session_timeout" validate:"required"`
	CleanupInterval      *string `yaml:"cleanup_interval" validate:"required"`
	MaxRunHistory        *int    `yaml:"max_run_history" validate:"required,gte=1"`
	ActiveSessionLimit   *int    `yaml:"active_session_limit" validate:"required,gte=1"`

	// Gate enforcement
	GateMode        *string `yaml:"gate_mode" validate:"required,oneof=blocking advisory informational"`
	GateMaxAttempts *int    `yaml:"gate_max_attempts" validate:"required,gte=1"`

	// Shell verification
	VerifyTimeout     *string `yaml:"verify_timeout" validate:"required"`
	VerifyMaxAttempts *int    `yaml:"verify_max_attempts" validate:"required,gte=1"`

	// Step results backend
	ResultsBackend *string `yaml:"results_backend" validate:"required,oneof=file sqlite s3"`
	S3Bucket       *string `yaml:"s3_bucket" validate:"required_if=ResultsBackend s3"`
	S3Prefix       *string `yaml:"s3_prefix"`
	S3Region       *string `yaml:"s3_region"`

	// Serving
	Catalog     *string `yaml:"catalog" validate:"required"`
	MetricsAddr *string `yaml:"metrics_addr"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadSettings loads configuration from <home>/settings.yaml.
// Priority: settings.yaml > defaults. A missing file yields defaults.
func LoadSettings(fsys afero.Fs, home string) (*config.AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	path := filepath.Join(home, SettingsFile)
	data, err := afero.ReadFile(fsys, path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		configSource = "yaml"
		settingPath = path
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyDefaults(settings)

	if err := validate.Struct(settings); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}

	return buildAppConfig(settings, home, configSource, settingPath)
}

// applyDefaults fills in default values for any nil fields
func applyDefaults(s *RawSettings) {
	setString(&s.LogLevel, "warn")
	setString(&s.LogFormat, "console")

	setString(&s.SessionTimeout, "24h")
	setString(&s.ReviewSessionTimeout, "1h")
	setString(&s.CleanupInterval, "5m")
	setInt(&s.MaxRunHistory, 10)
	setInt(&s.ActiveSessionLimit, 50)

	setString(&s.GateMode, "blocking")
	setInt(&s.GateMaxAttempts, 2)

	setString(&s.VerifyTimeout, "5m")
	setInt(&s.VerifyMaxAttempts, 5)

	setString(&s.ResultsBackend, "file")
	setString(&s.S3Bucket, "")
	setString(&s.S3Prefix, "")
	setString(&s.S3Region, "")

	setString(&s.Catalog, "prompts.yaml")
	setString(&s.MetricsAddr, "")
}

func setString(p **string, v string) {
	if *p == nil {
		*p = &v
	}
}

func setInt(p **int, v int) {
	if *p == nil {
		*p = &v
	}
}

// buildAppConfig converts RawSettings to AppConfig
func buildAppConfig(s *RawSettings, home, configSource, settingPath string) (*config.AppConfig, error) {
	durations := map[string]*string{
		"session_timeout":        s.SessionTimeout,
		"review_session_timeout": s.ReviewSessionTimeout,
		"cleanup_interval":       s.CleanupInterval,
		"verify_timeout":         s.VerifyTimeout,
	}
	parsed := make(map[string]time.Duration, len(durations))
	for key, raw := range durations {
		d, err := time.ParseDuration(*raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", key, *raw, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s %q: must be positive", key, *raw)
		}
		parsed[key] = d
	}

	if addr := *s.MetricsAddr; addr != "" {
		if err := validate.Var(addr, "hostname_port"); err != nil {
			return nil, fmt.Errorf("invalid metrics_addr %q: must be host:port", addr)
		}
	}
	if *s.ResultsBackend == "s3" && *s.S3Bucket == "" {
		return nil, fmt.Errorf("s3_bucket is required when results_backend is s3")
	}

	catalog := *s.Catalog
	if !filepath.IsAbs(catalog) {
		catalog = filepath.Join(home, catalog)
	}

	return config.NewAppConfig(config.Values{
		Home:                 home,
		LogLevel:             *s.LogLevel,
		LogFormat:            *s.LogFormat,
		SessionTimeout:       parsed["session_timeout"],
		ReviewSessionTimeout: parsed["review_session_timeout"],
		CleanupInterval:      parsed["cleanup_interval"],
		MaxRunHistory:        *s.MaxRunHistory,
		ActiveSessionLimit:   *s.ActiveSessionLimit,
		GateMode:             *s.GateMode,
		GateMaxAttempts:      *s.GateMaxAttempts,
		VerifyTimeout:        parsed["verify_timeout"],
		VerifyMaxAttempts:    *s.VerifyMaxAttempts,
		ResultsBackend:       *s.ResultsBackend,
		S3Bucket:             *s.S3Bucket,
		S3Prefix:             *s.S3Prefix,
		S3Region:             *s.S3Region,
		Catalog:              catalog,
		MetricsAddr:          *s.MetricsAddr,
	}, configSource, settingPath), nil
}

// CreateDefaultSettings renders a default settings.yaml
func CreateDefaultSettings() []byte {
	settings := &RawSettings{}
	applyDefaults(settings)

	data, _ := yaml.Marshal(settings)
	return data
}
