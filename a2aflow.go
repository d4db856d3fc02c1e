// Package a2aflow provides a top-level convenience entry point for running
// the multi-agent workflow scenarios with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/a2aflow"
//
//	summary, err := a2aflow.RunPayment(ctx)
//	summary, err := a2aflow.RunPayment(ctx, a2aflow.WithConfigPath("a2aflow.yaml"))
//	summary, err := a2aflow.RunDiscovery(ctx, a2aflow.WithLogger(logger))
//
// Callers needing finer control should construct the scenario from the
// workflow package directly.
package a2aflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/a2aflow/config"
	"github.com/BaSui01/a2aflow/internal/metrics"
	"github.com/BaSui01/a2aflow/transport"
	"github.com/BaSui01/a2aflow/workflow"
)

// Option configures scenario construction.
type Option func(*options)

type options struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

// WithConfigPath loads configuration from a YAML file, with environment
// overrides applied on top.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithConfig supplies a fully constructed configuration, bypassing loading.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewProduction.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// RunPayment runs the two-agent payment scenario end to end.
func RunPayment(ctx context.Context, opts ...Option) (*workflow.Summary, error) {
	cfg, client, logger, collector, err := build(opts)
	if err != nil {
		return nil, err
	}
	return workflow.NewPaymentScenario(cfg, client, logger, collector).Run(ctx)
}

// RunDiscovery runs the single-agent discovery scenario.
func RunDiscovery(ctx context.Context, opts ...Option) (*workflow.Summary, error) {
	cfg, client, logger, collector, err := build(opts)
	if err != nil {
		return nil, err
	}
	return workflow.NewDiscoveryScenario(cfg, client, logger, collector).Run(ctx)
}

func build(opts []Option) (*config.Config, *transport.Client, *zap.Logger, *metrics.Collector, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loader := config.NewLoader()
		if o.configPath != "" {
			loader = loader.WithConfigPath(o.configPath)
		}
		loaded, err := loader.Load()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, nil, err
	}

	logger := o.logger
	if logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		logger = l
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	client := transport.NewClient(transport.ClientConfig{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.RequestTimeout,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, logger, collector)

	return cfg, client, logger, collector, nil
}
