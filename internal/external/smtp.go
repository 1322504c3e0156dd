package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"

	"farewatch/internal/types"

	"gopkg.in/gomail.v2"
)

// SMTPDialer is the subset of *gomail.Dialer used by SMTPClient.
type SMTPDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPClientConfig holds the configuration for creating an SMTPClient.
type SMTPClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Logger   *slog.Logger
}

// SMTPClient implements EmailProvider over plain SMTP using gomail. It is
// mainly used for self-hosted relays and local development (MailHog).
type SMTPClient struct {
	dialer SMTPDialer
	logger *slog.Logger
}

// NewSMTPClient creates an SMTPClient that dials cfg.Host for every message.
func NewSMTPClient(cfg SMTPClientConfig) *SMTPClient {
	return NewSMTPClientWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.Logger)
}

// NewSMTPClientWithDialer creates an SMTPClient with an injected dialer.
func NewSMTPClientWithDialer(d SMTPDialer, logger *slog.Logger) *SMTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPClient{dialer: d, logger: logger}
}

// Name returns "smtp".
func (c *SMTPClient) Name() string { return "smtp" }

// Send builds a multipart/alternative message and hands it to the relay.
// SMTP has no provider message id, so the generated Message-ID header is
// returned instead.
func (c *SMTPClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "SMTP send aborted", err)
	}
	if _, err := mail.ParseAddress(input.To); err != nil {
		return "", types.NewAppError(types.ErrCodeValidationInvalidEmail, "invalid recipient address", err)
	}

	msgID := fmt.Sprintf("<%s@farewatch>", input.ReferenceID)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", input.From.Address, input.From.Name)
	m.SetHeader("To", input.To)
	m.SetHeader("Subject", input.Subject)
	if input.ReferenceID != "" {
		m.SetHeader("Message-ID", msgID)
	}
	switch {
	case input.BodyText != "" && input.BodyHTML != "":
		m.SetBody("text/plain", input.BodyText)
		m.AddAlternative("text/html", input.BodyHTML)
	case input.BodyHTML != "":
		m.SetBody("text/html", input.BodyHTML)
	default:
		m.SetBody("text/plain", input.BodyText)
	}

	if err := c.dialer.DialAndSend(m); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "SMTP delivery failed", err)
	}

	if input.ReferenceID == "" {
		return "", nil
	}
	return msgID, nil
}

var _ EmailProvider = (*SMTPClient)(nil)
