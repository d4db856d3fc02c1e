// Package config provides unified configuration loading for the A2A client:
// defaults → YAML file → environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("a2aflow.yaml").
//	    WithEnvPrefix("A2AFLOW").
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

// Config is the complete configuration for a workflow run. There are no
// process-wide defaults or singletons: callers construct the workflow driver
// from an explicit Config value.
type Config struct {
	// API is the remote platform connection configuration.
	API APIConfig `yaml:"api" env:"API"`

	// Admin holds the operator identity used for the optional funding step.
	Admin AdminConfig `yaml:"admin" env:"ADMIN"`

	// Workflow tunes step behavior of the scenario drivers.
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// OpenServ configures the optional OpenSERV integration steps.
	OpenServ OpenServConfig `yaml:"openserv" env:"OPENSERV"`

	// Log is the zap logger configuration.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics configures the Prometheus collector.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// APIConfig configures the transport client.
type APIConfig struct {
	// BaseURL is the root of the remote API.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// RequestTimeout applies to registration, auth, and discovery calls.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// PaymentTimeout applies to transfer submission, which must allow for
	// provider-side confirmation latency.
	PaymentTimeout time.Duration `yaml:"payment_timeout" env:"PAYMENT_TIMEOUT"`
	// RateLimit caps outgoing requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	// RateBurst is the limiter burst size.
	RateBurst int `yaml:"rate_burst" env:"RATE_BURST"`
}

// AdminConfig holds the operator identity used for wallet funding. All
// fields are optional; when absent the funding step is skipped with a
// warning and the run continues with degraded expectations.
type AdminConfig struct {
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	// WalletAddress is the funding source wallet. Verified against the
	// provider wallets returned by the admin's authenticate response.
	WalletAddress string `yaml:"wallet_address" env:"WALLET_ADDRESS"`
	// FundingAmountSOL is sent to each agent wallet before the payment step.
	FundingAmountSOL float64 `yaml:"funding_amount_sol" env:"FUNDING_AMOUNT_SOL"`
}

// WorkflowConfig tunes the scenario drivers. The delays bridge two kinds of
// eventual consistency (discovery-index propagation and transaction
// settlement); they are configurable, not load-bearing constants.
type WorkflowConfig struct {
	// ServiceName is the capability the provider agent advertises and the
	// consumer agent discovers.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// PaymentAmountSOL is the amount of the agent-to-agent payment.
	PaymentAmountSOL float64 `yaml:"payment_amount_sol" env:"PAYMENT_AMOUNT_SOL"`
	// DiscoveryRetryDelay is waited before the single discovery retry.
	DiscoveryRetryDelay time.Duration `yaml:"discovery_retry_delay" env:"DISCOVERY_RETRY_DELAY"`
	// MessagePollDelay is waited between sending a message and polling for it.
	MessagePollDelay time.Duration `yaml:"message_poll_delay" env:"MESSAGE_POLL_DELAY"`
	// SettleDelay is waited after funding before the dependent transfer.
	SettleDelay time.Duration `yaml:"settle_delay" env:"SETTLE_DELAY"`
	// ParallelProvision runs Agent A and Agent B setup concurrently.
	ParallelProvision bool `yaml:"parallel_provision" env:"PARALLEL_PROVISION"`
}

// OpenServConfig configures registration of an OpenSERV agent and workflow
// execution through it. Endpoint being empty skips the OpenSERV steps.
type OpenServConfig struct {
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	AgentID  string `yaml:"agent_id" env:"AGENT_ID"`
	// WorkflowRequest is the free-text request routed to the OpenSERV agent.
	WorkflowRequest string `yaml:"workflow_request" env:"WORKFLOW_REQUEST"`
	// TargetAgentID optionally names an existing agent instead of registering.
	TargetAgentID string `yaml:"target_agent_id" env:"TARGET_AGENT_ID"`
}

// LogConfig is the zap logger configuration.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap sink URLs.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a configuration loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "A2AFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration. Precedence: defaults → YAML file → env.
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

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

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

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
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

// Validate checks the loaded configuration for values a run cannot start
// without. Admin and OpenSERV settings are deliberately not required: their
// absence downgrades the corresponding steps to skipped.
func (c *Config) Validate() error {
	var errs []string

	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url must be set")
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, "api.request_timeout must be positive")
	}
	if c.API.PaymentTimeout <= 0 {
		errs = append(errs, "api.payment_timeout must be positive")
	}
	if c.Workflow.ServiceName == "" {
		errs = append(errs, "workflow.service_name must be set")
	}
	if c.Workflow.PaymentAmountSOL <= 0 {
		errs = append(errs, "workflow.payment_amount_sol must be positive")
	}
	if c.Admin.Username != "" && c.Admin.FundingAmountSOL <= 0 {
		errs = append(errs, "admin.funding_amount_sol must be positive when funding is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// FundingEnabled reports whether the optional funding step can run.
func (c *Config) FundingEnabled() bool {
	return c.Admin.Username != "" && c.Admin.Password != ""
}

// OpenServEnabled reports whether the optional OpenSERV steps can run.
func (c *Config) OpenServEnabled() bool {
	return c.OpenServ.Endpoint != "" || c.OpenServ.TargetAgentID != ""
}
