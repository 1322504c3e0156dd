package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"farewatch/internal/metrics"
	"farewatch/internal/notifications/email"
	"farewatch/internal/types"
)

// ProviderResolver picks the fare provider for a watch's preferred backend.
type ProviderResolver interface {
	Resolve(name string) (types.FareSearchProvider, error)
}

// AlertRenderer renders the price-alert email.
type AlertRenderer interface {
	Render(alert types.PriceAlert) (*email.RenderedEmail, error)
}

// Controller runs one trigger cycle for a watch.
type Controller struct {
	store        types.WatchStore
	providers    ProviderResolver
	orchestrator *Orchestrator
	links        types.BookingLinkBuilder
	notifier     types.Notifier
	renderer     AlertRenderer
	metrics      metrics.Recorder
	clock        types.Clock
	logger       *slog.Logger

	appBaseURL       string
	defaultRecipient string
	emailEnabled     bool
}

// ControllerConfig holds the dependencies of a Controller.
type ControllerConfig struct {
	Store        types.WatchStore
	Providers    ProviderResolver
	Orchestrator *Orchestrator
	Links        types.BookingLinkBuilder
	Notifier     types.Notifier
	Renderer     AlertRenderer
	Metrics      metrics.Recorder
	Clock        types.Clock
	Logger       *slog.Logger

	// AppBaseURL prefixes the deep link included in alerts.
	AppBaseURL string
	// DefaultRecipient receives alerts for watches without an email.
	DefaultRecipient string
	EmailEnabled     bool
}

// NewController creates a Controller. Nil Orchestrator, Metrics, Clock and
// Logger get defaults.
func NewController(cfg ControllerConfig) *Controller {
	c := &Controller{
		store:            cfg.Store,
		providers:        cfg.Providers,
		orchestrator:     cfg.Orchestrator,
		links:            cfg.Links,
		notifier:         cfg.Notifier,
		renderer:         cfg.Renderer,
		metrics:          cfg.Metrics,
		clock:            cfg.Clock,
		logger:           cfg.Logger,
		appBaseURL:       strings.TrimRight(cfg.AppBaseURL, "/"),
		defaultRecipient: cfg.DefaultRecipient,
		emailEnabled:     cfg.EmailEnabled,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.orchestrator == nil {
		c.orchestrator = NewOrchestrator(OrchestratorConfig{Logger: c.logger})
	}
	if c.metrics == nil {
		c.metrics = metrics.Noop{}
	}
	if c.clock == nil {
		c.clock = types.RealClock{}
	}
	return c
}

// Trigger evaluates the watch identified by watchID.
//
// Absence of a usable offer is reported as a NOOP outcome, never as an error.
// Errors are returned for an unknown watch (not_found_watch), an inactive
// watch (validation_watch_inactive), a lost concurrent update
// (conflict_concurrent_modification), an unresolvable provider and
// storage failures.
func (c *Controller) Trigger(ctx context.Context, watchID string) (*types.TriggerOutcome, error) {
	w, err := c.store.Get(ctx, watchID)
	if err != nil {
		return nil, err
	}
	if !w.Active {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationWatchInactive,
			"watch is paused",
			nil,
			map[string]any{"watch_id": w.ID},
		)
	}

	log := c.logger.With("watch_id", w.ID, "route", w.Origin+"-"+w.Destination)
	now := c.clock.Now()

	combos := GenerateCombinations(DateWindow{Start: w.Start, End: w.End}, w.FlexDays, w.TripType, now)
	if len(combos) == 0 {
		log.InfoContext(ctx, "no searchable date combinations", "trip_type", w.TripType, "flex_days", w.FlexDays)
		return c.finish(ctx, &types.TriggerOutcome{
			Action:      types.ActionNoop,
			Reason:      types.ReasonNoResults,
			EmailReason: types.EmailNotAttempted,
			Watch:       w,
		}), nil
	}

	provider, err := c.providers.Resolve(w.Provider)
	if err != nil {
		return nil, err
	}

	res, err := c.orchestrator.Search(ctx, provider, w, combos)
	if err != nil {
		return nil, fmt.Errorf("trigger: search aborted: %w", err)
	}

	outcome := &types.TriggerOutcome{
		Action:               types.ActionNoop,
		EmailReason:          types.EmailNotAttempted,
		SearchedCombinations: res.Searched,
		SearchFailures:       res.Failures,
		Provider:             provider.Name(),
		Watch:                w,
	}

	if res.BestOffer == nil {
		switch {
		case res.RateLimited:
			outcome.Reason = types.ReasonRateLimited
		case res.ProviderErrored:
			outcome.Reason = types.ReasonProviderError
		default:
			outcome.Reason = types.ReasonNoResults
		}
		log.InfoContext(ctx, "no admissible offer", "reason", outcome.Reason, "searched", res.Searched, "failures", res.Failures)
		return c.finish(ctx, outcome), nil
	}

	best, dates := *res.BestOffer, *res.BestDates
	link := c.links.Build(best, w.Route(), dates)
	decision := Decide(w, best.TotalPrice)

	patch := types.WatchPatch{
		LastBestUSD:    &best.TotalPrice,
		LastProvider:   &outcome.Provider,
		LastSourceLink: &link,
		UpdatedAt:      &now,
	}
	if decision.Action == types.ActionNotify {
		patch.LastNotifiedUSD = &best.TotalPrice
	}

	// Both writes go in one versioned update so a concurrent run cannot
	// interleave between recording the price and the notification.
	updated, err := c.store.Update(ctx, w.ID, patch, w.Version)
	if err != nil {
		return nil, err
	}

	outcome.Action = decision.Action
	outcome.Reason = decision.Reason
	outcome.BestOffer = &best
	outcome.DatesUsed = &dates
	outcome.BookingLink = link
	outcome.Watch = updated

	log.InfoContext(ctx, "best offer found",
		"price", best.TotalPrice,
		"carrier", best.CarrierCode,
		"depart", dates.Depart.Format(types.DateLayout),
		"action", decision.Action,
		"reason", decision.Reason,
	)

	if decision.Action == types.ActionNotify {
		outcome.NotificationSent, outcome.EmailReason = c.notify(ctx, log, updated, best, dates, link, decision.Reason)
		if outcome.NotificationSent {
			outcome.EmailReason = ""
		}
	}

	return c.finish(ctx, outcome), nil
}

func (c *Controller) finish(ctx context.Context, o *types.TriggerOutcome) *types.TriggerOutcome {
	c.metrics.RecordTriggerOutcome(ctx, o)
	return o
}

// notify renders and sends the alert. Failures are logged and reported
// through the returned reason only.
func (c *Controller) notify(ctx context.Context, log *slog.Logger, w *types.Watch, offer types.NormalizedOffer, dates types.DateCombination, link string, reason types.Reason) (bool, types.EmailSkipReason) {
	if !c.emailEnabled || c.notifier == nil || c.renderer == nil {
		return false, types.EmailDisabled
	}

	to := w.Email
	if to == "" {
		to = c.defaultRecipient
	}
	if to == "" {
		log.WarnContext(ctx, "no recipient for price alert")
		return false, types.EmailNoRecipient
	}

	rendered, err := c.renderer.Render(types.PriceAlert{
		WatchID:       w.ID,
		Route:         w.Route(),
		Dates:         dates,
		Price:         offer.TotalPrice,
		Currency:      offer.Currency,
		Carrier:       offer.CarrierCode,
		StopsOutbound: offer.StopsOutbound,
		StopsReturn:   offer.StopsReturn,
		TargetUSD:     w.TargetUSD,
		Reason:        reason,
		BookingLink:   link,
		DeepLink:      c.searchDeepLink(w, offer, dates),
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to render price alert", "error", err)
		return false, types.EmailRenderFailed
	}

	report, err := c.notifier.Send(ctx, types.OutboundMessage{
		To:          to,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: w.ID,
	})
	if err != nil || !report.Delivered {
		log.ErrorContext(ctx, "price alert delivery failed",
			"dest", email.RedactEmail(to),
			"provider", report.ProviderName,
			"error", err,
		)
		return false, types.EmailDeliveryError
	}
	return true, ""
}

// searchDeepLink links back into the web app with the found flight pre-filled.
func (c *Controller) searchDeepLink(w *types.Watch, offer types.NormalizedOffer, dates types.DateCombination) string {
	q := url.Values{}
	q.Set("from", strings.ToUpper(w.Origin))
	q.Set("to", strings.ToUpper(w.Destination))
	q.Set("depart", dates.Depart.Format(types.DateLayout))
	if dates.Return != nil {
		q.Set("return", dates.Return.Format(types.DateLayout))
	}
	q.Set("cabin", string(w.Cabin))
	q.Set("adults", strconv.Itoa(w.Adults))
	q.Set("maxStops", strconv.Itoa(w.MaxStops))
	if offer.CarrierCode != "" {
		q.Set("carrier", offer.CarrierCode)
	}
	q.Set("price", strconv.FormatFloat(offer.TotalPrice, 'f', 2, 64))
	q.Set("watch", w.ID)
	return c.appBaseURL + "/search?" + q.Encode()
}
