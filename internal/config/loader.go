package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError describes why LoadConfig failed.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(kind ConfigErrorType, err error, format string, args ...any) *ConfigError {
	return &ConfigError{Type: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ssmParamSuffix marks a pointer variable: DATABASE_URL_SSM_PARAM holds the
// parameter path whose value becomes DATABASE_URL.
const ssmParamSuffix = "_SSM_PARAM"

const localEnv = "local"

// secretResolveTimeout bounds the whole secret lookup at cold start.
const secretResolveTimeout = 30 * time.Second

// loaderDeps abstracts the process environment so tests can run the loader
// against a map.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// LoadConfig builds the service configuration from the process environment.
//
// Precedence is OS environment, then a .env file in the working directory,
// then _SSM_PARAM pointers resolved through provider. Pointers are ignored in
// the local environment, where provider may be nil. The process timezone is
// forced to UTC so fare dates never shift with the host zone.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables that are already set.
	_ = godotenv.Load()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, configErr(ErrParsing, err, "failed to process environment configuration")
	}
	cfg.Build = NewBuildInfo()

	if err := structValidator().Struct(cfg); err != nil {
		return nil, configErr(ErrValidation, err, "configuration validation failed")
	}
	if missing := missingCredentials(&cfg); len(missing) > 0 {
		return nil, configErr(ErrMissingEnv, nil, "provider credentials missing: %s", strings.Join(missing, ", "))
	}
	return &cfg, nil
}

// credentialCheck names the variable a provider needs and reports whether it
// is set.
type credentialCheck struct {
	env   string
	isSet func(*Config) bool
}

var fareProviderCredentials = map[string][]credentialCheck{
	"amadeus": {
		{"AMADEUS_CLIENT_ID", func(c *Config) bool { return c.Amadeus.ClientID != "" }},
		{"AMADEUS_CLIENT_SECRET", func(c *Config) bool { return c.Amadeus.ClientSecret.IsSet() }},
	},
	"serpapi": {
		{"SERPAPI_API_KEY", func(c *Config) bool { return c.SerpAPI.APIKey.IsSet() }},
	},
}

var emailProviderCredentials = map[string][]credentialCheck{
	"sendgrid": {
		{"SENDGRID_API_KEY", func(c *Config) bool { return c.Email.SendGridAPIKey.IsSet() }},
	},
	"smtp": {
		{"SMTP_HOST", func(c *Config) bool { return c.Email.SMTPHost != "" }},
	},
}

// missingCredentials lists unset variables for the default fare provider and
// every configured email provider. Providers that are not selected may stay
// unconfigured.
func missingCredentials(cfg *Config) []string {
	checks := slices.Clone(fareProviderCredentials[cfg.Search.DefaultProvider])
	for _, p := range cfg.Email.Providers {
		checks = append(checks, emailProviderCredentials[p]...)
	}

	var missing []string
	for _, c := range checks {
		if !c.isSet(cfg) {
			missing = append(missing, c.env)
		}
	}
	return missing
}

// secretRef binds a target variable to the parameter path that supplies it.
type secretRef struct {
	target string
	path   string
}

// collectSecretRefs finds _SSM_PARAM pointers whose target is not already
// set. Pointers with an empty path are ignored.
func collectSecretRefs(deps loaderDeps) []secretRef {
	var refs []secretRef
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || path == "" {
			continue
		}
		target, found := strings.CutSuffix(key, ssmParamSuffix)
		if !found {
			continue
		}
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		refs = append(refs, secretRef{target: target, path: path})
	}
	return refs
}

// resolveSSMParams fetches every pending pointer in one provider call and
// exports the values so envconfig picks them up.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	refs := collectSecretRefs(deps)
	if len(refs) == 0 {
		return nil
	}

	targets := make([]string, len(refs))
	paths := make([]string, len(refs))
	for i, r := range refs {
		targets[i] = r.target
		paths[i] = r.path
	}

	if provider == nil {
		return configErr(ErrSSMResolution, nil,
			"SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", "))
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretResolveTimeout)
	defer cancel()

	values, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return configErr(ErrSSMResolution, err, "failed to resolve %d SSM parameters", len(paths))
	}

	var missing []string
	for _, r := range refs {
		v, ok := values[r.path]
		if !ok {
			missing = append(missing, r.target)
			continue
		}
		if err := deps.setEnv(r.target, v); err != nil {
			return configErr(ErrSSMResolution, err, "failed to set resolved value for %s", r.target)
		}
	}
	if len(missing) > 0 {
		return configErr(ErrSSMResolution, nil, "SSM parameters not found for: %s", strings.Join(missing, ", "))
	}
	return nil
}
