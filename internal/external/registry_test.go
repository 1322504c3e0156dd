package external

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farewatch/internal/config"
	"farewatch/internal/types"
)

type fakeFareProvider struct {
	name       string
	configured bool
}

func (f *fakeFareProvider) Name() string     { return f.name }
func (f *fakeFareProvider) Configured() bool { return f.configured }
func (f *fakeFareProvider) Search(context.Context, types.SearchRequest) ([]types.NormalizedOffer, error) {
	return nil, nil
}

func TestProviderRegistry_Resolve(t *testing.T) {
	amadeus := &fakeFareProvider{name: "amadeus", configured: true}
	serp := &fakeFareProvider{name: "serpapi", configured: false}
	reg := NewProviderRegistry("amadeus", amadeus, serp)

	p, err := reg.Resolve("amadeus")
	require.NoError(t, err)
	assert.Same(t, amadeus, p)

	// Unconfigured preference falls back to the default.
	p, err = reg.Resolve("serpapi")
	require.NoError(t, err)
	assert.Same(t, amadeus, p)

	p, err = reg.Resolve("")
	require.NoError(t, err)
	assert.Same(t, amadeus, p)
}

func TestProviderRegistry_NothingConfigured(t *testing.T) {
	reg := NewProviderRegistry("amadeus", &fakeFareProvider{name: "amadeus"})
	_, err := reg.Resolve("serpapi")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamNotConfigured, appErrorCode(t, err))
}

func productionConfig() *config.Config {
	cfg := &config.Config{Environment: "prod"}
	cfg.Search.DefaultProvider = "serpapi"
	cfg.SerpAPI.APIKey = "serp-key"
	cfg.Email.Providers = []string{"sendgrid", "smtp"}
	cfg.Email.SendGridAPIKey = "SG.key"
	cfg.Email.SMTPHost = "localhost"
	cfg.Email.SMTPPort = 1025
	return cfg
}

func TestNewClientRegistry_StubMode(t *testing.T) {
	reg, err := NewClientRegistry(&config.Config{Environment: "local"}, nil)
	require.NoError(t, err)

	p, err := reg.Fares.Resolve("amadeus")
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())
	require.Len(t, reg.Email, 1)
	assert.Equal(t, "stub", reg.Email[0].Name())
}

func TestNewClientRegistry_Production(t *testing.T) {
	reg, err := NewClientRegistry(productionConfig(), nil)
	require.NoError(t, err)

	// Amadeus has no credentials, so the serpapi default wins.
	p, err := reg.Fares.Resolve("amadeus")
	require.NoError(t, err)
	assert.Equal(t, "serpapi", p.Name())

	require.Len(t, reg.Email, 2)
	assert.Equal(t, "sendgrid", reg.Email[0].Name())
	assert.Equal(t, "smtp", reg.Email[1].Name())
	assert.NotNil(t, reg.Links)
}

func TestNewClientRegistry_SESNeedsAWSConfig(t *testing.T) {
	cfg := productionConfig()
	cfg.Email.Providers = []string{"ses"}

	_, err := NewClientRegistry(cfg, nil)
	require.Error(t, err)

	reg, err := NewClientRegistry(cfg, nil, WithAWSConfig(aws.Config{Region: "us-east-1"}))
	require.NoError(t, err)
	assert.Equal(t, "ses", reg.Email[0].Name())
}
