package external

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"farewatch/internal/config"
	"farewatch/internal/types"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// ---------------------------------------------------------------------------
// Client Registry
//
// Central factory that instantiates all external service clients based on
// configuration. In test/local mode, returns stub implementations that log
// actions without requiring real credentials.
// ---------------------------------------------------------------------------

// ClientRegistry holds all external service clients. It is the single point
// of access for the rest of the application to third-party services.
type ClientRegistry struct {
	Fares *ProviderRegistry
	Links types.BookingLinkBuilder
	// Email lists delivery providers in fallback order.
	Email []EmailProvider
}

// RegistryOption is a functional option for configuring a ClientRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	awsCfg *aws.Config
	clock  types.Clock
}

// WithAWSConfig provides the AWS SDK config used by the SES provider.
func WithAWSConfig(cfg aws.Config) RegistryOption {
	return func(rc *registryConfig) {
		rc.awsCfg = &cfg
	}
}

// WithClock overrides the clock used by the token and result caches.
func WithClock(c types.Clock) RegistryOption {
	return func(rc *registryConfig) {
		rc.clock = c
	}
}

// NewClientRegistry initializes all external service clients.
// If cfg.IsTestMode is true or cfg.Environment is "local", fare search and
// email are served by stubs. Otherwise real clients are built with strict
// timeouts per provider.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rc := &registryConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	if cfg.IsTestMode || cfg.Environment == "local" {
		logger.Info("initializing external clients in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		return newStubRegistry(logger), nil
	}

	logger.Info("initializing external clients in PRODUCTION mode",
		"environment", cfg.Environment,
		"default_fare_provider", cfg.Search.DefaultProvider,
	)
	return newProductionRegistry(cfg, logger, rc)
}

func newStubRegistry(logger *slog.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")
	stub := NewStubFareProvider(stubLogger)
	return &ClientRegistry{
		Fares: NewProviderRegistry(stub.Name(), stub),
		Links: NewLinkBuilder(),
		Email: []EmailProvider{NewStubEmailProvider(stubLogger)},
	}
}

func newProductionRegistry(cfg *config.Config, logger *slog.Logger, rc *registryConfig) (*ClientRegistry, error) {
	// Results are shared by both fare providers; keys are provider-scoped.
	results, err := NewResultCache(cfg.Search.ResultCacheTTL, cfg.Search.ResultCacheSize, rc.clock)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}

	// Fare search calls are bounded by the orchestrator's per-call timeout;
	// the client timeout is a backstop.
	fareHTTP := &http.Client{Timeout: cfg.Search.CallTimeout + 5*time.Second}

	amadeus := NewAmadeusClient(fareHTTP, NewTokenCache(rc.clock), results, AmadeusClientConfig{
		ClientID:     cfg.Amadeus.ClientID,
		ClientSecret: cfg.Amadeus.ClientSecret.Unmask(),
		BaseURL:      cfg.Amadeus.BaseURL,
		MaxOffers:    cfg.Amadeus.MaxOffers,
		Logger:       logger.With("client", "amadeus"),
	})
	serp := NewSerpAPIClient(fareHTTP, results, SerpAPIClientConfig{
		APIKey:  cfg.SerpAPI.APIKey.Unmask(),
		BaseURL: cfg.SerpAPI.BaseURL,
		Logger:  logger.With("client", "serpapi"),
	})

	reg := &ClientRegistry{
		Fares: NewProviderRegistry(cfg.Search.DefaultProvider, amadeus, serp),
		Links: NewLinkBuilder(),
	}

	for _, name := range cfg.Email.Providers {
		switch name {
		case "ses":
			if rc.awsCfg == nil {
				return nil, fmt.Errorf("email provider ses requires an AWS config")
			}
			reg.Email = append(reg.Email, NewSESClient(*rc.awsCfg, SESClientConfig{
				Logger: logger.With("client", "ses"),
			}))
		case "sendgrid":
			reg.Email = append(reg.Email, NewSendGridClient(&http.Client{Timeout: 10 * time.Second}, SendGridClientConfig{
				APIKey: cfg.Email.SendGridAPIKey.Unmask(),
				Logger: logger.With("client", "sendgrid"),
			}))
		case "smtp":
			reg.Email = append(reg.Email, NewSMTPClient(SMTPClientConfig{
				Host:     cfg.Email.SMTPHost,
				Port:     cfg.Email.SMTPPort,
				Username: cfg.Email.SMTPUsername,
				Password: cfg.Email.SMTPPassword.Unmask(),
				Logger:   logger.With("client", "smtp"),
			}))
		default:
			return nil, fmt.Errorf("unknown email provider %q", name)
		}
	}

	return reg, nil
}

// ProviderRegistry resolves a watch's preferred fare provider by name.
type ProviderRegistry struct {
	providers   map[string]FareProvider
	defaultName string
}

// NewProviderRegistry registers providers under their Name.
func NewProviderRegistry(defaultName string, providers ...FareProvider) *ProviderRegistry {
	m := make(map[string]FareProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &ProviderRegistry{providers: m, defaultName: defaultName}
}

// Resolve returns the provider registered as name when it is configured, and
// the default provider otherwise.
func (r *ProviderRegistry) Resolve(name string) (types.FareSearchProvider, error) {
	if p, ok := r.providers[name]; ok && p.Configured() {
		return p, nil
	}
	if p, ok := r.providers[r.defaultName]; ok && p.Configured() {
		return p, nil
	}
	return nil, types.NewAppError(
		types.ErrCodeUpstreamNotConfigured,
		fmt.Sprintf("no configured fare provider for %q (default %q)", name, r.defaultName),
		nil,
	)
}
