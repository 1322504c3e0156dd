// Package email renders price-alert emails and delivers them through an
// ordered list of EmailProviders, falling back to the next provider when one
// is unavailable.
package email

import (
	"errors"

	"farewatch/internal/types"
)

// ErrNoProviders is returned by a FallbackNotifier built without providers.
var ErrNoProviders = errors.New("email: no delivery providers configured")

// IsBlocklistError reports whether the provider refused the recipient
// (suppression list, hard bounce history). Such failures are terminal: trying
// another provider would only repeat a send the recipient cannot receive.
func IsBlocklistError(err error) bool {
	return types.CodeOf(err) == types.ErrCodeEmailBlocked
}

// isInvalidRecipient reports whether the failure lies with the address itself.
func isInvalidRecipient(err error) bool {
	return types.CodeOf(err) == types.ErrCodeValidationInvalidEmail
}
