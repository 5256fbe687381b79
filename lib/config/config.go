// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// EnvConfigPath names the environment variable read by Load.
const EnvConfigPath = "LOGSHIP_CONFIG"

// Config is the configuration of one logship client.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// AppSecret identifies the application to the ingestion service.
	// Required.
	AppSecret string `yaml:"app_secret"`

	// LogURL is the base URL of the ingestion service. Production
	// requires https.
	LogURL string `yaml:"log_url"`

	// APIVersion is sent as the api_version query parameter.
	APIVersion string `yaml:"api_version"`

	// App describes the host application in device metadata.
	App AppConfig `yaml:"app"`

	// Storage configures the persistent log backlog.
	Storage StorageConfig `yaml:"storage"`

	// Transport configures sending.
	Transport TransportConfig `yaml:"transport"`

	// Session configures session tracking.
	Session SessionConfig `yaml:"session"`

	// Channel configures the delivery pipeline.
	Channel ChannelConfig `yaml:"channel"`

	// Groups lists the log groups to register, in order.
	Groups []GroupConfig `yaml:"groups"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	AppSecret string           `yaml:"app_secret,omitempty"`
	LogURL    string           `yaml:"log_url,omitempty"`
	Storage   *StorageConfig   `yaml:"storage,omitempty"`
	Transport *TransportConfig `yaml:"transport,omitempty"`
}

// AppConfig describes the application embedding the client.
type AppConfig struct {
	Version           string `yaml:"version"`
	Build             string `yaml:"build"`
	Namespace         string `yaml:"namespace"`
	WrapperSDKName    string `yaml:"wrapper_sdk_name"`
	WrapperSDKVersion string `yaml:"wrapper_sdk_version"`
}

// StorageConfig configures the SQLite backlog.
type StorageConfig struct {
	// Path is the database file. Its directory is created on open.
	// Default: ${HOME}/.local/share/logship/logship.db
	Path string `yaml:"path"`

	// CompressThreshold is the payload size in bytes from which stored
	// logs are compressed. Negative disables compression.
	// Default: 1024
	CompressThreshold int `yaml:"compress_threshold"`
}

// TransportConfig configures the HTTP transport.
type TransportConfig struct {
	// Compression is the request body encoding: none, gzip, or zstd.
	// Default: gzip
	Compression string `yaml:"compression"`

	// Timeout bounds one HTTP exchange.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// RetryIntervals is the base delay before each retry of a failed
	// batch. An empty list disables retries.
	// Default: [10s, 5m, 20m]
	RetryIntervals []time.Duration `yaml:"retry_intervals"`

	// Connectivity configures the network monitor.
	Connectivity ConnectivityConfig `yaml:"connectivity"`
}

// ConnectivityConfig configures the reachability probe.
type ConnectivityConfig struct {
	// ProbeAddress is a host:port dialed to decide whether the
	// network is up. Empty means always online.
	ProbeAddress string `yaml:"probe_address"`

	// ProbeInterval is the time between probes.
	// Default: 30s
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// SessionConfig configures the session tracker.
type SessionConfig struct {
	// Group receives start-session logs and is the group whose logs
	// are stamped with session ids. Empty disables session tracking.
	// Default: analytics
	Group string `yaml:"group"`

	// Timeout is the inactivity after which a new session starts.
	// Default: 20s
	Timeout time.Duration `yaml:"timeout"`

	// HistoryCapacity bounds the remembered past sessions.
	// Default: 10
	HistoryCapacity int `yaml:"history_capacity"`
}

// ChannelConfig configures the delivery pipeline.
type ChannelConfig struct {
	// RetryCooldown is how long sending stays suspended after a batch
	// exhausted its retries.
	// Default: 10m
	RetryCooldown time.Duration `yaml:"retry_cooldown"`
}

// GroupConfig is the batching policy of one named group. Zero values
// take the channel's defaults.
type GroupConfig struct {
	Name               string        `yaml:"name"`
	MaxLogsPerBatch    int           `yaml:"max_logs_per_batch"`
	BatchInterval      time.Duration `yaml:"batch_interval"`
	MaxParallelBatches int           `yaml:"max_parallel_batches"`
	MaxPersistedLogs   int           `yaml:"max_persisted_logs"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		APIVersion:  "1.0.0",
		Storage: StorageConfig{
			Path:              "${HOME}/.local/share/logship/logship.db",
			CompressThreshold: 1024,
		},
		Transport: TransportConfig{
			Compression:    "gzip",
			Timeout:        30 * time.Second,
			RetryIntervals: []time.Duration{10 * time.Second, 5 * time.Minute, 20 * time.Minute},
			Connectivity: ConnectivityConfig{
				ProbeInterval: 30 * time.Second,
			},
		},
		Session: SessionConfig{
			Group:           "analytics",
			Timeout:         20 * time.Second,
			HistoryCapacity: 10,
		},
		Channel: ChannelConfig{
			RetryCooldown: 10 * time.Minute,
		},
		Groups: []GroupConfig{{
			Name:               "analytics",
			MaxLogsPerBatch:    50,
			BatchInterval:      3 * time.Second,
			MaxParallelBatches: 3,
			MaxPersistedLogs:   10000,
		}},
	}
}

// Load loads configuration from the LOGSHIP_CONFIG environment variable.
//
// There are no fallbacks or defaults - if LOGSHIP_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your logship.yaml config file, or use --config flag", EnvConfigPath)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files ending
// in .json or .jsonc may contain comments and trailing commas.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.AppSecret != "" {
		c.AppSecret = overrides.AppSecret
	}
	if overrides.LogURL != "" {
		c.LogURL = overrides.LogURL
	}

	if overrides.Storage != nil {
		if overrides.Storage.Path != "" {
			c.Storage.Path = overrides.Storage.Path
		}
		if overrides.Storage.CompressThreshold != 0 {
			c.Storage.CompressThreshold = overrides.Storage.CompressThreshold
		}
	}

	if overrides.Transport != nil {
		if overrides.Transport.Compression != "" {
			c.Transport.Compression = overrides.Transport.Compression
		}
		if overrides.Transport.Timeout != 0 {
			c.Transport.Timeout = overrides.Transport.Timeout
		}
		// A present list replaces the base list, including an empty one.
		if overrides.Transport.RetryIntervals != nil {
			c.Transport.RetryIntervals = overrides.Transport.RetryIntervals
		}
		if overrides.Transport.Connectivity.ProbeAddress != "" {
			c.Transport.Connectivity.ProbeAddress = overrides.Transport.Connectivity.ProbeAddress
		}
		if overrides.Transport.Connectivity.ProbeInterval != 0 {
			c.Transport.Connectivity.ProbeInterval = overrides.Transport.Connectivity.ProbeInterval
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// secrets, URLs, and paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.AppSecret = expandVars(c.AppSecret, vars)
	c.LogURL = expandVars(c.LogURL, vars)
	c.Storage.Path = expandVars(c.Storage.Path, vars)
	c.Transport.Connectivity.ProbeAddress = expandVars(c.Transport.Connectivity.ProbeAddress, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.AppSecret == "" {
		errs = append(errs, fmt.Errorf("app_secret is required"))
	}

	if c.LogURL == "" {
		errs = append(errs, fmt.Errorf("log_url is required"))
	} else if parsed, err := url.Parse(c.LogURL); err != nil {
		errs = append(errs, fmt.Errorf("log_url: %w", err))
	} else if parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		errs = append(errs, fmt.Errorf("log_url must be an absolute http or https URL, got %q", c.LogURL))
	} else if c.Environment == Production && parsed.Scheme != "https" {
		errs = append(errs, fmt.Errorf("log_url must use https in production"))
	}

	if c.APIVersion == "" {
		errs = append(errs, fmt.Errorf("api_version is required"))
	}

	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	}

	compressions := []string{"none", "gzip", "zstd"}
	if !contains(compressions, c.Transport.Compression) {
		errs = append(errs, fmt.Errorf("transport.compression must be one of: %v", compressions))
	}
	if c.Transport.Timeout < 0 {
		errs = append(errs, fmt.Errorf("transport.timeout must not be negative"))
	}
	for i, interval := range c.Transport.RetryIntervals {
		if interval <= 0 {
			errs = append(errs, fmt.Errorf("transport.retry_intervals[%d] must be positive, got %s", i, interval))
		}
	}
	if c.Transport.Connectivity.ProbeInterval < 0 {
		errs = append(errs, fmt.Errorf("transport.connectivity.probe_interval must not be negative"))
	}

	if c.Session.Timeout < 0 {
		errs = append(errs, fmt.Errorf("session.timeout must not be negative"))
	}
	if c.Session.HistoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("session.history_capacity must not be negative"))
	}

	if c.Channel.RetryCooldown < 0 {
		errs = append(errs, fmt.Errorf("channel.retry_cooldown must not be negative"))
	}

	seen := make(map[string]bool)
	for i, group := range c.Groups {
		if group.Name == "" {
			errs = append(errs, fmt.Errorf("groups[%d].name is required", i))
			continue
		}
		if seen[group.Name] {
			errs = append(errs, fmt.Errorf("groups[%d]: duplicate group %q", i, group.Name))
		}
		seen[group.Name] = true
		if group.MaxLogsPerBatch < 0 || group.MaxParallelBatches < 0 || group.MaxPersistedLogs < 0 || group.BatchInterval < 0 {
			errs = append(errs, fmt.Errorf("groups[%d] (%s): limits must not be negative", i, group.Name))
		}
	}
	if c.Session.Group != "" && !seen[c.Session.Group] {
		errs = append(errs, fmt.Errorf("session.group %q is not a configured group", c.Session.Group))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the storage directory if it doesn't exist.
func (c *Config) EnsurePaths() error {
	if c.Storage.Path == "" {
		return nil
	}
	dir := filepath.Dir(c.Storage.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

// Group returns the configuration of the named group.
func (c *Config) Group(name string) (GroupConfig, bool) {
	for _, group := range c.Groups {
		if group.Name == name {
			return group, true
		}
	}
	return GroupConfig{}, false
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
