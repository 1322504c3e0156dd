package config

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// GetParameters accepts at most 10 names per call.
const ssmMaxBatchSize = 10

type ssmClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider resolves SecureString parameters from SSM Parameter Store in the
// process's own region. The SDK client is created on first use so cold starts
// that need no secrets skip credential loading.
type SSMProvider struct {
	region string
	client ssmClient
}

func NewSSMProvider(region string) *SSMProvider {
	return &SSMProvider{region: region}
}

func newSSMProviderWithClient(region string, client ssmClient) *SSMProvider {
	return &SSMProvider{region: region, client: client}
}

func (p *SSMProvider) sdkClient(ctx context.Context) (ssmClient, error) {
	if p.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
		if err != nil {
			return nil, fmt.Errorf("ssm: loading AWS config for %s: %w", p.region, err)
		}
		p.client = ssm.NewFromConfig(cfg)
	}
	return p.client, nil
}

// GetParametersBatch decrypts every key. Unknown parameters fail the whole
// call after all batches have been read, listing every missing name.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	client, err := p.sdkClient(ctx)
	if err != nil {
		return nil, err
	}

	var missing []string
	for batch := range slices.Chunk(keys, ssmMaxBatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ssm: resolution interrupted: %w", err)
		}

		out, err := client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          batch,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("ssm: GetParameters %s: %w", strings.Join(batch, ","), err)
		}
		for _, param := range out.Parameters {
			if param.Name != nil && param.Value != nil {
				result[*param.Name] = *param.Value
			}
		}
		missing = append(missing, out.InvalidParameters...)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("ssm: parameters not found: %s", strings.Join(missing, ", "))
	}
	return result, nil
}
