// Package app wires the FareWatch components shared by every entry point:
// configuration, logging, the Postgres pool, external clients, the trigger
// controller and the trigger queue.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"farewatch/internal/config"
	"farewatch/internal/db"
	"farewatch/internal/external"
	"farewatch/internal/metrics"
	"farewatch/internal/notifications/email"
	"farewatch/internal/queue"
	"farewatch/internal/trigger"
	"farewatch/internal/types"
)

// Container holds the long-lived dependencies of a process.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	AWS     aws.Config
	Pool    *pgxpool.Pool
	Watches *db.WatchRepository
	Clients *external.ClientRegistry

	Controller *trigger.Controller
	Queue      *queue.TriggerQueue
	Metrics    metrics.Recorder
}

// LoadConfig reads configuration. Outside the local environment _SSM_PARAM
// references are resolved from SSM, or from the process environment when
// SECRETS_PROVIDER=env (containers and CI without SSM access).
func LoadConfig() (*config.Config, error) {
	var provider config.SecretProvider
	switch {
	case os.Getenv("APP_ENV") == "local":
	case os.Getenv("SECRETS_PROVIDER") == "env":
		provider = config.NewEnvVarProvider()
	default:
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger creates a JSON slog.Logger for the given level name.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// New connects to Postgres and AWS and builds the trigger pipeline. The
// caller owns the returned Container and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Environment == "local" {
		if err := db.ApplySchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	clients, err := external.NewClientRegistry(cfg, logger, external.WithAWSConfig(awsCfg))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing external clients: %w", err)
	}

	renderer, err := email.NewRenderer(email.RendererConfig{AppBaseURL: cfg.Server.AppBaseURL})
	if err != nil {
		pool.Close()
		return nil, err
	}

	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.Observability.EnableMetrics {
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		recorder = metrics.NewCloudWatchRecorder(cw, cfg.Observability.MetricNamespace, types.NewSlogAdapter(logger))
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	watches := db.NewWatchRepository(pool)

	controller := trigger.NewController(trigger.ControllerConfig{
		Store:     watches,
		Providers: clients.Fares,
		Orchestrator: trigger.NewOrchestrator(trigger.OrchestratorConfig{
			CallTimeout: cfg.Search.CallTimeout,
			Logger:      logger.With("component", "orchestrator"),
		}),
		Links: clients.Links,
		Notifier: email.NewFallbackNotifier(email.FallbackNotifierConfig{
			Providers: clients.Email,
			From:      types.SenderIdentity{Name: cfg.Email.FromName, Address: cfg.Email.FromAddress},
			Logger:    types.NewSlogAdapter(logger.With("component", "notifier")),
		}),
		Renderer:         renderer,
		Metrics:          recorder,
		Logger:           logger.With("component", "trigger"),
		AppBaseURL:       cfg.Server.AppBaseURL,
		DefaultRecipient: cfg.Email.DefaultRecipient,
		EmailEnabled:     cfg.Feature.EnableEmail,
	})

	return &Container{
		Config:     cfg,
		Logger:     logger,
		AWS:        awsCfg,
		Pool:       pool,
		Watches:    watches,
		Clients:    clients,
		Controller: controller,
		Queue:      queue.NewTriggerQueue(sqsClient, cfg.AWS, logger.With("component", "queue")),
		Metrics:    recorder,
	}, nil
}

// Close releases the database pool.
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
