package config

import "time"

// Config provides read-only access to application configuration.
// The app layer depends on this interface, never on how settings were loaded.
type Config interface {
	// Core settings
	Home() string      // Base directory (GATECHAIN_HOME)
	LogLevel() string  // debug, info, warn or error
	LogFormat() string // console or json

	// Session store
	SessionTimeout() time.Duration
	ReviewSessionTimeout() time.Duration
	CleanupInterval() time.Duration
	MaxRunHistory() int
	ActiveSessionLimit() int

	// Gate enforcement
	GateMode() string // blocking, advisory or informational
	GateMaxAttempts() int

	// Shell verification
	VerifyTimeout() time.Duration
	VerifyMaxAttempts() int

	// Step results backend
	ResultsBackend() string // file, sqlite or s3
	S3Bucket() string
	S3Prefix() string
	S3Region() string

	// Serving
	Catalog() string     // Prompt catalog path, relative to Home unless absolute
	MetricsAddr() string // Empty disables the /metrics listener

	// Metadata
	ConfigSource() string // "yaml" or "default"
	SettingPath() string  // Path to settings.yaml if loaded from file
}

// Values is the resolved settings handed to NewAppConfig
type Values struct {
	Home                 string
	LogLevel             string
	LogFormat            string
	SessionTimeout       time.Duration
	ReviewSessionTimeout time.Duration
	CleanupInterval      time.Duration
	MaxRunHistory        int
	ActiveSessionLimit   int
	GateMode             string
	GateMaxAttempts      int
	VerifyTimeout        time.Duration
	VerifyMaxAttempts    int
	ResultsBackend       string
	S3Bucket             string
	S3Prefix             string
	S3Region             string
	Catalog              string
	MetricsAddr          string
}

// AppConfig is the concrete implementation of Config
type AppConfig struct {
	v            Values
	configSource string
	settingPath  string
}

// NewAppConfig creates an AppConfig. Called by the infrastructure layer after
// loading and defaulting settings.
func NewAppConfig(v Values, configSource, settingPath string) *AppConfig {
	return &AppConfig{v: v, configSource: configSource, settingPath: settingPath}
}

func (c *AppConfig) Home() string                        { return c.v.Home }
func (c *AppConfig) LogLevel() string                    { return c.v.LogLevel }
func (c *AppConfig) LogFormat() string                   { return c.v.LogFormat }
func (c *AppConfig) SessionTimeout() time.Duration       { return c.v.SessionTimeout }
func (c *AppConfig) ReviewSessionTimeout() time.Duration { return c.v.ReviewSessionTimeout }
func (c *AppConfig) CleanupInterval() time.Duration      { return c.v.CleanupInterval }
func (c *AppConfig) MaxRunHistory() int                  { return c.v.MaxRunHistory }
func (c *AppConfig) ActiveSessionLimit() int             { return c.v.ActiveSessionLimit }
func (c *AppConfig) GateMode() string                    { return c.v.GateMode }
func (c *AppConfig) GateMaxAttempts() int                { return c.v.GateMaxAttempts }
func (c *AppConfig) VerifyTimeout() time.Duration        { return c.v.VerifyTimeout }
func (c *AppConfig) VerifyMaxAttempts() int              { return c.v.VerifyMaxAttempts }
func (c *AppConfig) ResultsBackend() string              { return c.v.ResultsBackend }
func (c *AppConfig) S3Bucket() string                    { return c.v.S3Bucket }
func (c *AppConfig) S3Prefix() string                    { return c.v.S3Prefix }
func (c *AppConfig) S3Region() string                    { return c.v.S3Region }
func (c *AppConfig) Catalog() string                     { return c.v.Catalog }
func (c *AppConfig) MetricsAddr() string                 { return c.v.MetricsAddr }

// ConfigSource returns the source of configuration
func (c *AppConfig) ConfigSource() string { return c.configSource }

// SettingPath returns the path to settings.yaml if loaded from file
func (c *AppConfig) SettingPath() string { return c.settingPath }

// WithHome returns a copy pointing at a different home directory
func (c *AppConfig) WithHome(home string) *AppConfig {
	cp := *c
	cp.v.Home = home
	return &cp
}
