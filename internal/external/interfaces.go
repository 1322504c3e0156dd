package external

import (
	"context"

	"farewatch/internal/types"
)

// ---------------------------------------------------------------------------
// Fare Search
// ---------------------------------------------------------------------------

// FareProvider is a FareSearchProvider that can report whether it is usable
// with the credentials it was built with.
type FareProvider interface {
	types.FareSearchProvider

	// Configured reports whether the provider has the credentials it needs.
	Configured() bool
}

// ---------------------------------------------------------------------------
// Email Integration (SES, SendGrid, SMTP)
// ---------------------------------------------------------------------------

// EmailProvider abstracts a single email delivery backend.
// Implementations transmit pre-rendered email content (Subject, BodyHTML, BodyText).
type EmailProvider interface {
	// Name returns the provider identifier (e.g., "ses", "sendgrid", "smtp").
	Name() string

	// Send transmits an email with pre-rendered content.
	// Returns the provider's message ID for tracking and correlation.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
