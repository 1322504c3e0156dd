package config

import (
	"context"
	"os"
	"strings"
)

// SecretProvider resolves secret references (SSM parameter paths) to their
// plaintext values. Missing keys are either omitted or reported as an error,
// depending on the backend.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// EnvVarProvider resolves secret references from the process environment.
// A key is looked up verbatim first, then as its env-style name, so the path
// /dev/farewatch/database/url can be supplied as DEV_FAREWATCH_DATABASE_URL.
// Keys found under neither name are omitted.
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
			continue
		}
		if val, ok := os.LookupEnv(envName(key)); ok {
			result[key] = val
		}
	}
	return result, nil
}

var envNameReplacer = strings.NewReplacer("/", "_", "-", "_", ".", "_")

func envName(path string) string {
	return strings.ToUpper(envNameReplacer.Replace(strings.TrimPrefix(path, "/")))
}
