package types

// TripType distinguishes one-way watches from round trips.
type TripType string

const (
	TripOneWay    TripType = "oneway"
	TripRoundTrip TripType = "roundtrip"
)

// Cabin is the fare class requested from the search provider.
type Cabin string

const (
	CabinEconomy        Cabin = "ECONOMY"
	CabinPremiumEconomy Cabin = "PREMIUM_ECONOMY"
	CabinBusiness       Cabin = "BUSINESS"
	CabinFirst          Cabin = "FIRST"
)

// Action is the externally visible result of a trigger run.
type Action string

const (
	ActionNotify Action = "NOTIFY"
	ActionNoop   Action = "NOOP"
)

// Reason explains why a trigger run produced its Action.
type Reason string

const (
	ReasonAboveTarget               Reason = "above_target_price"
	ReasonFirstTimeBelowTarget      Reason = "first_time_below_target"
	ReasonSignificantPriceDrop      Reason = "significant_price_drop"
	ReasonBelowTargetNotSignificant Reason = "below_target_but_not_significant_drop"
	ReasonRateLimited               Reason = "rate_limited"
	ReasonProviderError             Reason = "provider_error"
	ReasonNoResults                 Reason = "no_results"
)

// EmailSkipReason explains why a notification email was not sent.
type EmailSkipReason string

const (
	EmailNotAttempted  EmailSkipReason = "not_notify"
	EmailDisabled      EmailSkipReason = "email_disabled"
	EmailNoRecipient   EmailSkipReason = "no_recipient"
	EmailRenderFailed  EmailSkipReason = "render_failed"
	EmailDeliveryError EmailSkipReason = "delivery_failed"
)

// Fare search provider identifiers stored in Watch.Provider and Watch.LastProvider.
const (
	ProviderAmadeus = "amadeus"
	ProviderSerpAPI = "serpapi"
)
