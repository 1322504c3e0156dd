package email

import (
	"context"
	"errors"
	"fmt"

	"farewatch/internal/external"
	"farewatch/internal/types"
)

// FallbackNotifier implements types.Notifier over an ordered list of email
// providers. A provider that is down or throttled is skipped in favour of the
// next; a refused or malformed recipient ends the attempt.
type FallbackNotifier struct {
	providers []external.EmailProvider
	from      types.SenderIdentity
	logger    types.Logger
}

// FallbackNotifierConfig holds the dependencies of a FallbackNotifier.
type FallbackNotifierConfig struct {
	Providers []external.EmailProvider
	From      types.SenderIdentity
	Logger    types.Logger
}

// NewFallbackNotifier creates a FallbackNotifier.
func NewFallbackNotifier(cfg FallbackNotifierConfig) *FallbackNotifier {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NewSlogAdapter(nil)
	}
	return &FallbackNotifier{providers: cfg.Providers, from: cfg.From, logger: logger}
}

// Send delivers msg with the first provider that accepts it. The returned
// error is the last provider error when every provider failed.
func (n *FallbackNotifier) Send(ctx context.Context, msg types.OutboundMessage) (types.DeliveryReport, error) {
	if len(n.providers) == 0 {
		return types.DeliveryReport{}, ErrNoProviders
	}

	input := types.SendInput{
		To:          msg.To,
		From:        n.from,
		Subject:     msg.Subject,
		BodyHTML:    msg.BodyHTML,
		BodyText:    msg.BodyText,
		ReferenceID: msg.ReferenceID,
	}

	var errs []error
	for _, p := range n.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		msgID, err := p.Send(ctx, input)
		if err == nil {
			n.logger.Info("email delivered",
				"provider", p.Name(),
				"dest", RedactEmail(msg.To),
				"message_id", msgID,
			)
			return types.DeliveryReport{Delivered: true, MessageID: msgID, ProviderName: p.Name()}, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if IsBlocklistError(err) || isInvalidRecipient(err) {
			n.logger.Warn("recipient refused, not trying other providers",
				"provider", p.Name(),
				"dest", RedactEmail(msg.To),
				"reference_id", msg.ReferenceID,
			)
			return types.DeliveryReport{ProviderName: p.Name()}, errors.Join(errs...)
		}
		n.logger.Warn("email provider failed, trying next",
			"provider", p.Name(),
			"error", err.Error(),
		)
	}

	return types.DeliveryReport{}, errors.Join(errs...)
}

var _ types.Notifier = (*FallbackNotifier)(nil)
