// Package config loads the service configuration from defaults, an optional
// YAML file, and environment variable overrides, in that order.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("ORGAGENT").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	// Server holds the HTTP serving settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// LLM holds the Azure OpenAI provider settings.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Identity holds the identity server settings.
	Identity IdentityConfig `yaml:"identity" env:"IDENTITY"`

	// Agent holds the orchestration loop settings.
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Audit holds the tool-invocation audit trail settings.
	Audit AuditConfig `yaml:"audit" env:"AUDIT"`

	// Log holds the logging settings.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ServerConfig holds the HTTP serving settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RateLimitRPS is the per-client request rate (0 disables limiting).
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the per-client burst allowance.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// LLMConfig holds the Azure OpenAI provider settings.
type LLMConfig struct {
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// Deployment is the chat model deployment name.
	Deployment string `yaml:"deployment" env:"DEPLOYMENT"`
	// APIVersion selects the Azure OpenAI API version.
	APIVersion string `yaml:"api_version" env:"API_VERSION"`
	// APIKey authenticates against the deployment.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Timeout bounds each completion call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// IdentityConfig holds the identity server settings.
type IdentityConfig struct {
	// BaseURL is the tenant-scoped API root, e.g. https://api.example.io/t
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// AppMgtSpecURL points at the application-management OpenAPI document.
	AppMgtSpecURL string `yaml:"app_mgt_spec_url" env:"APP_MGT_SPEC_URL"`
	// SCIM2SpecURL points at the SCIM2 OpenAPI document (optional).
	SCIM2SpecURL string `yaml:"scim2_spec_url" env:"SCIM2_SPEC_URL"`
	// Timeout bounds every downstream API call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AgentConfig holds the orchestration loop settings.
type AgentConfig struct {
	// MaxIterations caps the tool-calling loop.
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	// HistoryWindow is how many user/assistant exchanges are kept.
	HistoryWindow int `yaml:"history_window" env:"HISTORY_WINDOW"`
	// ToolTimeout bounds each tool execution.
	ToolTimeout time.Duration `yaml:"tool_timeout" env:"TOOL_TIMEOUT"`
}

// AuditConfig holds the tool-invocation audit trail settings.
type AuditConfig struct {
	// Enabled toggles the audit trail.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Path is the SQLite database file (":memory:" for ephemeral).
	Path string `yaml:"path" env:"PATH"`
	// QueueSize bounds the async write queue.
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths lists zap sinks (stdout, file paths).
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with the calling site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stack traces at error level.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// ===== Loader =====

// Loader loads configuration (builder pattern).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ORGAGENT",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the configuration file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a configuration validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration.
// Precedence: defaults, then YAML file, then environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv overrides configuration from environment variables.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct recursively and applies overrides.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue sets one field from its string form.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration wants "30s", not an integer
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// comma-separated string slices
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// ===== Helpers =====

// MustLoad loads configuration, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for serving.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	if c.LLM.Endpoint == "" {
		errs = append(errs, "llm endpoint is required")
	}
	if c.LLM.Deployment == "" {
		errs = append(errs, "llm deployment is required")
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "llm api_key is required")
	}

	if c.Identity.BaseURL == "" {
		errs = append(errs, "identity base_url is required")
	}
	if c.Identity.AppMgtSpecURL == "" {
		errs = append(errs, "identity app_mgt_spec_url is required")
	}

	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, "agent max_iterations must be positive")
	}
	if c.Agent.HistoryWindow <= 0 {
		errs = append(errs, "agent history_window must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
