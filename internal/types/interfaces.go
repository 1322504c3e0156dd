package types

import (
	"context"
	"log/slog"
	"time"
)

// WatchStore is the keyed record store backing Watch records.
type WatchStore interface {
	// Get returns the Watch with the given id, or an AppError with
	// ErrCodeNotFoundWatch when it does not exist.
	Get(ctx context.Context, id string) (*Watch, error)

	// Update applies the non-nil fields of patch when the stored version
	// equals expectedVersion and returns the updated record. A version
	// mismatch yields ErrCodeConflictConcurrent.
	Update(ctx context.Context, id string, patch WatchPatch, expectedVersion int64) (*Watch, error)
}

// FareSearchProvider queries one fare-search backend for a single date
// combination. Implementations own their auth and caching.
//
// Errors carrying ErrCodeUpstreamRateLimited abort the remaining searches of a
// trigger run; ErrCodeUpstreamFareProvider and ErrCodeUpstreamUnavailable are
// treated as per-request failures.
type FareSearchProvider interface {
	Name() string
	Search(ctx context.Context, req SearchRequest) ([]NormalizedOffer, error)
}

// BookingLinkBuilder maps a selected offer to a human-followable booking link.
// It must be total and free of side effects.
type BookingLinkBuilder interface {
	Build(offer NormalizedOffer, route Route, dates DateCombination) string
}

// Notifier delivers a rendered message to a single destination.
type Notifier interface {
	Send(ctx context.Context, msg OutboundMessage) (DeliveryReport, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// SlogAdapter wraps *slog.Logger to implement Logger. slog.Logger satisfies
// the first three methods but its With returns *slog.Logger, so an adapter
// is necessary.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns a Logger backed by l, or by slog.Default when l is nil.
func NewSlogAdapter(l *slog.Logger) *SlogAdapter {
	if l == nil {
		l = slog.Default()
	}
	return &SlogAdapter{logger: l}
}

func (a *SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: a.logger.With(args...)}
}
