package trigger

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"farewatch/internal/types"
)

// DefaultCallTimeout bounds a single fare search when none is configured.
const DefaultCallTimeout = 20 * time.Second

// SearchResult is the reduction of all searches of one trigger run.
type SearchResult struct {
	BestOffer *types.NormalizedOffer
	BestDates *types.DateCombination

	// RateLimited is set when the provider reported an exhausted quota; the
	// remaining combinations were not searched.
	RateLimited bool
	// ProviderErrored is set when at least one search failed with a
	// provider-side error.
	ProviderErrored bool

	// Searched counts combinations for which the provider was called.
	Searched int
	// Failures counts searches that returned an error of any kind.
	Failures int
}

// Orchestrator runs the searches of one trigger run. Searches are strictly
// sequential so that a rate-limit answer stops the run before more quota is
// spent.
type Orchestrator struct {
	callTimeout time.Duration
	logger      *slog.Logger
}

// OrchestratorConfig holds the configuration for creating an Orchestrator.
type OrchestratorConfig struct {
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{callTimeout: timeout, logger: logger}
}

// Search queries provider for every combination in order and keeps the
// cheapest admissible offer. On equal prices the earlier combination wins.
//
// Per-combination failures are absorbed into the result. The only error
// returned is the parent context's, when it is cancelled mid-run.
func (o *Orchestrator) Search(ctx context.Context, provider types.FareSearchProvider, w *types.Watch, combos []types.DateCombination) (SearchResult, error) {
	var res SearchResult
	best := math.Inf(1)

	for i, dates := range combos {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		req := types.SearchRequest{
			Route:    w.Route(),
			Dates:    dates,
			Cabin:    w.Cabin,
			Adults:   w.Adults,
			Currency: w.Currency,
		}

		res.Searched++
		offers, err := o.searchOne(ctx, provider, req)
		if err != nil {
			res.Failures++
			// A cancelled parent is not a per-combination failure.
			if ctx.Err() != nil {
				return res, ctx.Err()
			}

			attrs := []any{
				"watch_id", w.ID,
				"provider", provider.Name(),
				"combination", i,
				"depart", dates.Depart.Format(types.DateLayout),
				"error", err,
			}
			switch {
			case types.IsRateLimited(err):
				res.RateLimited = true
				o.logger.WarnContext(ctx, "fare provider rate limited, stopping search", attrs...)
				return res, nil
			case types.IsProviderError(err):
				res.ProviderErrored = true
				o.logger.WarnContext(ctx, "fare provider error, skipping combination", attrs...)
			default:
				o.logger.ErrorContext(ctx, "fare search failed, skipping combination", attrs...)
			}
			continue
		}

		for j := range offers {
			offer := offers[j]
			if !Admissible(offer, w.MaxStops) {
				continue
			}
			if offer.TotalPrice < best {
				best = offer.TotalPrice
				d := dates
				res.BestOffer = &offer
				res.BestDates = &d
			}
		}
	}

	return res, nil
}

func (o *Orchestrator) searchOne(ctx context.Context, provider types.FareSearchProvider, req types.SearchRequest) ([]types.NormalizedOffer, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	offers, err := provider.Search(callCtx, req)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		// Per-call timeouts are generic failures, whatever the client made of them.
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "fare search timed out", err)
	}
	return offers, err
}

// Admissible reports whether offer respects the watch's stop limit on every
// leg it reports.
func Admissible(offer types.NormalizedOffer, maxStops int) bool {
	if offer.StopsOutbound > maxStops {
		return false
	}
	return offer.StopsReturn == nil || *offer.StopsReturn <= maxStops
}
