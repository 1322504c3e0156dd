package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"farewatch/internal/types"
)

const amadeusAPIBase = "https://test.api.amadeus.com"

// AmadeusClientConfig holds the configuration for creating an AmadeusClient.
type AmadeusClientConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string // Override for testing; defaults to amadeusAPIBase
	MaxOffers    int
	Logger       *slog.Logger
}

// AmadeusClient implements FareSearchProvider against the Amadeus Self-Service
// Flight Offers Search API. The OAuth token and recent results are kept in
// caches owned by the caller so they survive across trigger runs.
type AmadeusClient struct {
	base         *BaseClient
	clientID     string
	clientSecret string
	baseURL      string
	maxOffers    int
	tokens       *TokenCache
	results      *ResultCache
	logger       *slog.Logger
}

// NewAmadeusClient creates an AmadeusClient. Fare searches are rate limited
// per account, so a 429 is retried at most once before being surfaced.
func NewAmadeusClient(httpClient *http.Client, tokens *TokenCache, results *ResultCache, cfg AmadeusClientConfig) *AmadeusClient {
	base := NewBaseClient(
		httpClient,
		"amadeus",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    500 * time.Millisecond,
			MaxWait:    3 * time.Second,
		},
		userAgent,
	)
	return NewAmadeusClientWithBase(base, tokens, results, cfg)
}

// NewAmadeusClientWithBase creates an AmadeusClient with a pre-configured BaseClient.
func NewAmadeusClientWithBase(base *BaseClient, tokens *TokenCache, results *ResultCache, cfg AmadeusClientConfig) *AmadeusClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = amadeusAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = NewTokenCache(nil)
	}
	maxOffers := cfg.MaxOffers
	if maxOffers <= 0 {
		maxOffers = 20
	}
	return &AmadeusClient{
		base:         base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		maxOffers:    maxOffers,
		tokens:       tokens,
		results:      results,
		logger:       logger,
	}
}

// Name returns "amadeus".
func (a *AmadeusClient) Name() string { return types.ProviderAmadeus }

// Configured reports whether client credentials are present.
func (a *AmadeusClient) Configured() bool {
	return a.clientID != "" && a.clientSecret != ""
}

// Search queries flight offers for one date combination.
//
// Error mapping:
//   - 429 / open circuit breaker -> ErrCodeUpstreamRateLimited
//   - 5xx, network errors -> ErrCodeUpstreamUnavailable
//   - other 4xx, undecodable body -> ErrCodeUpstreamFareProvider
//
// A 401 invalidates the cached token and the request is repeated once.
func (a *AmadeusClient) Search(ctx context.Context, req types.SearchRequest) ([]types.NormalizedOffer, error) {
	if !a.Configured() {
		return nil, types.NewAppError(types.ErrCodeUpstreamNotConfigured, "Amadeus credentials are not configured", nil)
	}

	key := ResultCacheKey(a.Name(), req)
	if offers, ok := a.results.Get(key); ok {
		return offers, nil
	}

	offers, err := a.searchOnce(ctx, req)
	if errors.Is(err, errAmadeusUnauthorized) {
		a.tokens.Invalidate()
		offers, err = a.searchOnce(ctx, req)
	}
	if err != nil {
		if errors.Is(err, errAmadeusUnauthorized) {
			return nil, types.NewAppError(types.ErrCodeUpstreamFareProvider, "Amadeus rejected the access token", err)
		}
		return nil, err
	}

	a.results.Put(key, offers)
	return offers, nil
}

var errAmadeusUnauthorized = errors.New("amadeus: unauthorized")

func (a *AmadeusClient) searchOnce(ctx context.Context, sr types.SearchRequest) ([]types.NormalizedOffer, error) {
	token, err := a.tokens.Get(ctx, a.fetchToken)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v2/shopping/flight-offers?"+a.searchParams(sr).Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Amadeus search request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.amadeus+json")

	resp, err := a.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errAmadeusUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, amadeusStatusError(resp)
	}

	var payload amadeusOffersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamFareProvider, "failed to decode Amadeus flight offers", err)
	}

	offers := make([]types.NormalizedOffer, 0, len(payload.Data))
	for _, raw := range payload.Data {
		offer, ok := normalizeAmadeusOffer(raw, sr.Currency)
		if !ok {
			a.logger.WarnContext(ctx, "skipping malformed Amadeus offer", "offer_id", raw.ID)
			continue
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (a *AmadeusClient) searchParams(sr types.SearchRequest) url.Values {
	v := url.Values{}
	v.Set("originLocationCode", strings.ToUpper(sr.Route.Origin))
	v.Set("destinationLocationCode", strings.ToUpper(sr.Route.Destination))
	v.Set("departureDate", sr.Dates.Depart.Format(types.DateLayout))
	if sr.Dates.Return != nil {
		v.Set("returnDate", sr.Dates.Return.Format(types.DateLayout))
	}
	adults := sr.Adults
	if adults < 1 {
		adults = 1
	}
	v.Set("adults", strconv.Itoa(adults))
	if sr.Cabin != "" {
		v.Set("travelClass", string(sr.Cabin))
	}
	if sr.Currency != "" {
		v.Set("currencyCode", strings.ToUpper(sr.Currency))
	}
	v.Set("max", strconv.Itoa(a.maxOffers))
	return v
}

// fetchToken performs the client_credentials grant.
func (a *AmadeusClient) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Amadeus token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.base.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, amadeusStatusError(resp)
	}

	var tok amadeusTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", 0, types.NewAppError(types.ErrCodeUpstreamFareProvider, "failed to decode Amadeus token response", err)
	}
	if tok.AccessToken == "" {
		return "", 0, types.NewAppError(types.ErrCodeUpstreamFareProvider, "Amadeus returned empty access token", nil)
	}
	return tok.AccessToken, time.Duration(tok.ExpiresIn) * time.Second, nil
}

// amadeusStatusError maps a non-2xx Amadeus response that BaseClient passed
// through (4xx other than 429) to a per-request provider error.
func amadeusStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	msg := strings.TrimSpace(string(body))
	var apiErr amadeusErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && len(apiErr.Errors) > 0 {
		e := apiErr.Errors[0]
		msg = strings.TrimSpace(e.Title + ": " + e.Detail)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "Amadeus rate limit exceeded", nil)
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamFareProvider,
		fmt.Sprintf("Amadeus returned %d: %s", resp.StatusCode, msg),
		nil,
		map[string]any{"status": resp.StatusCode},
	)
}

// normalizeAmadeusOffer converts one flight-offer to a NormalizedOffer. The raw
// offer JSON is kept as the booking payload.
func normalizeAmadeusOffer(raw amadeusOffer, fallbackCurrency string) (types.NormalizedOffer, bool) {
	if len(raw.Itineraries) == 0 || len(raw.Itineraries[0].Segments) == 0 {
		return types.NormalizedOffer{}, false
	}

	priceStr := raw.Price.GrandTotal
	if priceStr == "" {
		priceStr = raw.Price.Total
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil || price <= 0 {
		return types.NormalizedOffer{}, false
	}

	currency := raw.Price.Currency
	if currency == "" {
		currency = fallbackCurrency
	}

	carrier := ""
	if len(raw.ValidatingAirlineCodes) > 0 {
		carrier = raw.ValidatingAirlineCodes[0]
	} else {
		carrier = raw.Itineraries[0].Segments[0].CarrierCode
	}

	offer := types.NormalizedOffer{
		TotalPrice:     price,
		Currency:       currency,
		CarrierCode:    carrier,
		StopsOutbound:  raw.Itineraries[0].stops(),
		BookingPayload: raw.Raw,
	}
	if len(raw.Itineraries) > 1 {
		s := raw.Itineraries[1].stops()
		offer.StopsReturn = &s
	}
	return offer, true
}

// Amadeus response types for JSON deserialization.

type amadeusTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type amadeusOffersResponse struct {
	Data []amadeusOffer `json:"data"`
}

type amadeusOffer struct {
	ID    string `json:"id"`
	Price struct {
		Currency   string `json:"currency"`
		Total      string `json:"total"`
		GrandTotal string `json:"grandTotal"`
	} `json:"price"`
	Itineraries            []amadeusItinerary `json:"itineraries"`
	ValidatingAirlineCodes []string           `json:"validatingAirlineCodes"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the offer and keeps a copy of the raw bytes.
func (o *amadeusOffer) UnmarshalJSON(b []byte) error {
	type plain amadeusOffer
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*o = amadeusOffer(p)
	o.Raw = append(json.RawMessage(nil), b...)
	return nil
}

type amadeusItinerary struct {
	Duration string `json:"duration"`
	Segments []struct {
		CarrierCode string `json:"carrierCode"`
		Number      string `json:"number"`
		Departure   struct {
			IATACode string `json:"iataCode"`
			At       string `json:"at"`
		} `json:"departure"`
		Arrival struct {
			IATACode string `json:"iataCode"`
			At       string `json:"at"`
		} `json:"arrival"`
		NumberOfStops int `json:"numberOfStops"`
	} `json:"segments"`
}

// stops counts connections plus technical stops within segments.
func (it amadeusItinerary) stops() int {
	n := len(it.Segments) - 1
	for _, s := range it.Segments {
		n += s.NumberOfStops
	}
	if n < 0 {
		return 0
	}
	return n
}

type amadeusErrorResponse struct {
	Errors []struct {
		Status int    `json:"status"`
		Code   int    `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

var _ FareProvider = (*AmadeusClient)(nil)
