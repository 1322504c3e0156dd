package config

import (
	"context"
	"testing"
)

func TestEnvVarProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = NewEnvVarProvider()
}

func TestEnvVarProviderGetParametersBatch(t *testing.T) {
	t.Setenv("FAREWATCH_TEST_SECRET_A", "value-alpha")
	t.Setenv("FAREWATCH_TEST_EMPTY", "")
	t.Setenv("DEV_FAREWATCH_DATABASE_URL", "postgres://from-env")
	t.Setenv("STAGING_FARE_WATCH_SERPAPI_KEY", "serp")

	tests := []struct {
		name string
		keys []string
		want map[string]string
	}{
		{
			name: "verbatim name",
			keys: []string{"FAREWATCH_TEST_SECRET_A"},
			want: map[string]string{"FAREWATCH_TEST_SECRET_A": "value-alpha"},
		},
		{
			name: "empty value is still present",
			keys: []string{"FAREWATCH_TEST_EMPTY"},
			want: map[string]string{"FAREWATCH_TEST_EMPTY": ""},
		},
		{
			name: "ssm path mapped to env name",
			keys: []string{"/dev/farewatch/database/url", "/staging/fare-watch/serpapi.key"},
			want: map[string]string{
				"/dev/farewatch/database/url":     "postgres://from-env",
				"/staging/fare-watch/serpapi.key": "serp",
			},
		},
		{
			name: "missing keys omitted",
			keys: []string{"FAREWATCH_TEST_SECRET_A", "/nope/not/set"},
			want: map[string]string{"FAREWATCH_TEST_SECRET_A": "value-alpha"},
		},
		{
			name: "nil keys",
			keys: nil,
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEnvVarProvider().GetParametersBatch(context.Background(), tt.keys)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil {
				t.Fatal("expected non-nil map")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestEnvName(t *testing.T) {
	if got := envName("/prod/farewatch/amadeus/client-secret"); got != "PROD_FAREWATCH_AMADEUS_CLIENT_SECRET" {
		t.Errorf("envName = %q", got)
	}
}
