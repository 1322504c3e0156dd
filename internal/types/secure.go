package types

import (
	"encoding/json"
	"log/slog"
)

const redacted = "[redacted]"

// SecretString holds a credential. fmt, encoding/json and slog all print a
// placeholder; call Unmask where the raw value is actually needed.
type SecretString string

func (s SecretString) String() string { return redacted }

// LogValue keeps secrets out of structured logs, including slog.Any.
func (s SecretString) LogValue() slog.Value { return slog.StringValue(redacted) }

func (s SecretString) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

// IsSet reports whether a value was provided.
func (s SecretString) IsSet() bool { return s != "" }

// Unmask returns the plaintext.
func (s SecretString) Unmask() string { return string(s) }
