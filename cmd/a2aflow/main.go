// a2aflow drives multi-agent demo scenarios against an A2A platform.
//
// Usage:
//
//	a2aflow pay                         # run the two-agent payment scenario
//	a2aflow pay --config a2aflow.yaml   # with a config file
//	a2aflow discover                    # run the discovery scenario
//	a2aflow health                      # probe the remote API
//	a2aflow version                     # show version information
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/a2aflow/config"
	"github.com/BaSui01/a2aflow/internal/metrics"
	"github.com/BaSui01/a2aflow/transport"
	"github.com/BaSui01/a2aflow/workflow"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "pay":
		runScenario(os.Args[2:], "pay", newPaymentRunner)
	case "discover":
		runScenario(os.Args[2:], "discover", newDiscoveryRunner)
	case "health":
		runHealthCheck(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// scenarioRunner abstracts the two scenario constructors for the shared
// command plumbing.
type scenarioRunner interface {
	Run(ctx context.Context) (*workflow.Summary, error)
}

func newPaymentRunner(cfg *config.Config, client *transport.Client, logger *zap.Logger, collector *metrics.Collector) scenarioRunner {
	return workflow.NewPaymentScenario(cfg, client, logger, collector)
}

func newDiscoveryRunner(cfg *config.Config, client *transport.Client, logger *zap.Logger, collector *metrics.Collector) scenarioRunner {
	return workflow.NewDiscoveryScenario(cfg, client, logger, collector)
}

func runScenario(args []string, name string, build func(*config.Config, *transport.Client, *zap.Logger, *metrics.Collector) scenarioRunner) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting a2aflow",
		zap.String("command", name),
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

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

	// Interruption aborts the run; committed remote side effects such as a
	// completed registration are not rolled back.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scenario := build(cfg, client, logger, collector)
	summary, err := scenario.Run(ctx)
	if summary != nil {
		fmt.Print(summary.String())
	}
	if err != nil {
		logger.Error("scenario failed", zap.Error(err))
		os.Exit(1)
	}
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "", "Remote API base URL (overrides config)")
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.API.BaseURL = *addr
	}

	client := transport.NewClient(transport.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.RequestTimeout,
	}, zap.NewNop(), nil)

	if err := client.Health(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func printVersion() {
	fmt.Printf("a2aflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`a2aflow - A2A multi-agent workflow client

Usage:
  a2aflow <command> [options]

Commands:
  pay       Run the two-agent payment scenario
  discover  Run the service discovery scenario
  health    Check remote API health
  version   Show version information
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)

Environment:
  A2AFLOW_API_BASE_URL          Remote API base URL
  A2AFLOW_ADMIN_USERNAME        Admin username for the optional funding step
  A2AFLOW_ADMIN_PASSWORD        Admin password
  A2AFLOW_ADMIN_WALLET_ADDRESS  Admin funding wallet
  A2AFLOW_WORKFLOW_SERVICE_NAME Advertised/discovered service name

Examples:
  a2aflow pay
  a2aflow pay --config /etc/a2aflow/config.yaml
  a2aflow discover
  a2aflow health --addr http://localhost:5003`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format != "console" {
		zapConfig.Encoding = "json"
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
