package config

import "time"

// DefaultConfig returns the default configuration. The delays reproduce the
// demo scenario timings but remain configurable.
func DefaultConfig() *Config {
	return &Config{
		API:      DefaultAPIConfig(),
		Admin:    DefaultAdminConfig(),
		Workflow: DefaultWorkflowConfig(),
		OpenServ: OpenServConfig{},
		Log:      DefaultLogConfig(),
		Metrics:  DefaultMetricsConfig(),
	}
}

// DefaultAPIConfig returns the default API configuration.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		BaseURL:        "http://localhost:5003",
		RequestTimeout: 30 * time.Second,
		PaymentTimeout: 60 * time.Second,
		RateLimit:      10,
		RateBurst:      20,
	}
}

// DefaultAdminConfig returns the default admin configuration. Credentials
// intentionally default to empty: funding is skipped unless the operator
// supplies them via file or environment.
func DefaultAdminConfig() AdminConfig {
	return AdminConfig{
		FundingAmountSOL: 0.05,
	}
}

// DefaultWorkflowConfig returns the default workflow configuration.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		ServiceName:         "data-analysis",
		PaymentAmountSOL:    0.01,
		DiscoveryRetryDelay: 2 * time.Second,
		MessagePollDelay:    1 * time.Second,
		SettleDelay:         30 * time.Second,
		ParallelProvision:   true,
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "a2aflow",
	}
}
