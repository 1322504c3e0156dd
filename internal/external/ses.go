package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"farewatch/internal/types"
)

// SESAPI is the part of the SES v2 client that SESClient calls.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClientConfig configures an SESClient.
type SESClientConfig struct {
	// ConfigSetName routes bounce and complaint events. Empty disables it.
	ConfigSetName string
	Logger        *slog.Logger
}

// SESClient delivers price alerts through SES v2, the default email
// provider. Credentials come from the Lambda execution role, and the SDK
// retries throttled calls itself, so it does not go through BaseClient.
type SESClient struct {
	api           SESAPI
	configSetName string
	logger        *slog.Logger
}

// NewSESClient creates an SESClient from an AWS config.
func NewSESClient(awsCfg aws.Config, cfg SESClientConfig) *SESClient {
	return NewSESClientWithAPI(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewSESClientWithAPI creates an SESClient around any SESAPI.
func NewSESClientWithAPI(api SESAPI, cfg SESClientConfig) *SESClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SESClient{api: api, configSetName: cfg.ConfigSetName, logger: logger}
}

func (s *SESClient) Name() string { return "ses" }

// Send delivers pre-rendered content as a simple SES message and returns the
// SES message ID.
func (s *SESClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	out, err := s.api.SendEmail(ctx, s.buildMessage(input))
	if err != nil {
		return "", mapSESError(err)
	}

	msgID := aws.ToString(out.MessageId)
	s.logger.DebugContext(ctx, "SES accepted message", "message_id", msgID, "reference_id", input.ReferenceID)
	return msgID, nil
}

func (s *SESClient) buildMessage(input types.SendInput) *sesv2.SendEmailInput {
	body := &sestypes.Body{
		Html: utf8Content(input.BodyHTML),
		Text: utf8Content(input.BodyText),
	}

	msg := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(formatSender(input.From)),
		Destination:      &sestypes.Destination{ToAddresses: []string{input.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(input.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
		EmailTags: []sestypes.MessageTag{
			{Name: aws.String("Category"), Value: aws.String("price_alert")},
		},
	}
	if s.configSetName != "" {
		msg.ConfigurationSetName = aws.String(s.configSetName)
	}
	// Bounces are traced back to the watch through this tag.
	if ref := sesTagValue(input.ReferenceID); ref != "" {
		msg.EmailTags = append(msg.EmailTags, sestypes.MessageTag{
			Name:  aws.String("WatchID"),
			Value: aws.String(ref),
		})
	}
	return msg
}

// utf8Content returns nil for an empty part so SES omits it.
func utf8Content(data string) *sestypes.Content {
	if data == "" {
		return nil
	}
	return &sestypes.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

// formatSender renders "Name <address>", or the bare address when no display
// name is configured.
func formatSender(from types.SenderIdentity) string {
	if from.Name == "" {
		return from.Address
	}
	return fmt.Sprintf("%s <%s>", from.Name, from.Address)
}

// sesTagValue keeps only the characters SES accepts in tag values:
// ASCII letters, digits, '_' and '-'.
func sesTagValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return -1
	}, v)
}

// mapSESError converts SES failures into AppErrors. A rejected message is
// permanent for that recipient; throttling and paused sending let the
// fallback notifier try the next provider.
func mapSESError(err error) error {
	var (
		rejected  *sestypes.MessageRejected
		throttled *sestypes.TooManyRequestsException
		paused    *sestypes.SendingPausedException
	)
	switch {
	case errors.As(err, &rejected):
		return types.NewAppError(types.ErrCodeEmailBlocked, fmt.Sprintf("SES rejected message: %v", err), err)
	case errors.As(err, &throttled):
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, fmt.Sprintf("SES rate limit exceeded: %v", err), err)
	case errors.As(err, &paused):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("SES account sending paused: %v", err), err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider, fmt.Sprintf("SES error: %v", err), err)
	}
}

var _ EmailProvider = (*SESClient)(nil)
