package external

import (
	"context"
	"encoding/json"
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

const serpAPIBase = "https://serpapi.com"

// SerpAPIClientConfig holds the configuration for creating a SerpAPIClient.
type SerpAPIClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to serpAPIBase
	Logger  *slog.Logger
}

// SerpAPIClient implements FareSearchProvider using SerpAPI's google_flights
// engine. Only outbound legs are priced per query, so StopsReturn is never set.
type SerpAPIClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	results *ResultCache
	logger  *slog.Logger
}

// NewSerpAPIClient creates a SerpAPIClient.
func NewSerpAPIClient(httpClient *http.Client, results *ResultCache, cfg SerpAPIClientConfig) *SerpAPIClient {
	base := NewBaseClient(
		httpClient,
		"serpapi",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    400 * time.Millisecond,
			MaxWait:    3 * time.Second,
		},
		userAgent,
	)
	return NewSerpAPIClientWithBase(base, results, cfg)
}

// NewSerpAPIClientWithBase creates a SerpAPIClient with a pre-configured BaseClient.
func NewSerpAPIClientWithBase(base *BaseClient, results *ResultCache, cfg SerpAPIClientConfig) *SerpAPIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = serpAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SerpAPIClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		results: results,
		logger:  logger,
	}
}

// Name returns "serpapi".
func (s *SerpAPIClient) Name() string { return types.ProviderSerpAPI }

// Configured reports whether an API key is present.
func (s *SerpAPIClient) Configured() bool { return s.apiKey != "" }

// Search queries Google Flights results for one date combination.
//
// Error mapping:
//   - 429 / open circuit breaker -> ErrCodeUpstreamRateLimited
//   - 5xx, network errors -> ErrCodeUpstreamUnavailable
//   - 401/403, other 4xx, "error" field in body -> ErrCodeUpstreamFareProvider
func (s *SerpAPIClient) Search(ctx context.Context, sr types.SearchRequest) ([]types.NormalizedOffer, error) {
	if !s.Configured() {
		return nil, types.NewAppError(types.ErrCodeUpstreamNotConfigured, "SerpAPI key is not configured", nil)
	}

	key := ResultCacheKey(s.Name(), sr)
	if offers, ok := s.results.Get(key); ok {
		return offers, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search.json?"+s.searchParams(sr).Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create SerpAPI request", err)
	}

	resp, err := s.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamFareProvider,
			fmt.Sprintf("SerpAPI returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			nil,
			map[string]any{"status": resp.StatusCode},
		)
	}

	var payload serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamFareProvider, "failed to decode SerpAPI response", err)
	}
	if payload.Error != "" {
		// SerpAPI reports "no results" through the error field as well.
		if strings.Contains(strings.ToLower(payload.Error), "hasn't returned any results") {
			s.results.Put(key, nil)
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamFareProvider, "SerpAPI error: "+payload.Error, nil)
	}

	all := append(payload.BestFlights, payload.OtherFlights...)
	offers := make([]types.NormalizedOffer, 0, len(all))
	for _, raw := range all {
		offer, ok := normalizeSerpFlight(raw, sr.Currency, payload.SearchMeta.GoogleFlightsURL)
		if !ok {
			continue
		}
		offers = append(offers, offer)
	}

	s.results.Put(key, offers)
	return offers, nil
}

func (s *SerpAPIClient) searchParams(sr types.SearchRequest) url.Values {
	v := url.Values{}
	v.Set("engine", "google_flights")
	v.Set("api_key", s.apiKey)
	v.Set("departure_id", strings.ToUpper(sr.Route.Origin))
	v.Set("arrival_id", strings.ToUpper(sr.Route.Destination))
	v.Set("outbound_date", sr.Dates.Depart.Format(types.DateLayout))
	if sr.Dates.Return != nil {
		v.Set("type", "1")
		v.Set("return_date", sr.Dates.Return.Format(types.DateLayout))
	} else {
		v.Set("type", "2")
	}
	adults := sr.Adults
	if adults < 1 {
		adults = 1
	}
	v.Set("adults", strconv.Itoa(adults))
	if tc, ok := serpTravelClass[sr.Cabin]; ok {
		v.Set("travel_class", tc)
	}
	if sr.Currency != "" {
		v.Set("currency", strings.ToUpper(sr.Currency))
	}
	return v
}

// serpTravelClass maps cabins to SerpAPI's numeric travel_class.
var serpTravelClass = map[types.Cabin]string{
	types.CabinEconomy:        "1",
	types.CabinPremiumEconomy: "2",
	types.CabinBusiness:       "3",
	types.CabinFirst:          "4",
}

type serpResponse struct {
	Error        string       `json:"error"`
	BestFlights  []serpFlight `json:"best_flights"`
	OtherFlights []serpFlight `json:"other_flights"`
	SearchMeta   struct {
		GoogleFlightsURL string `json:"google_flights_url"`
	} `json:"search_metadata"`
}

type serpFlight struct {
	Price   float64 `json:"price"`
	Flights []struct {
		Airline      string `json:"airline"`
		FlightNumber string `json:"flight_number"`
	} `json:"flights"`
	Layovers     []json.RawMessage `json:"layovers"`
	BookingToken string            `json:"booking_token"`
}

// serpBookingPayload is the opaque payload handed to the link builder.
type serpBookingPayload struct {
	BookingToken     string `json:"booking_token,omitempty"`
	FlightNumber     string `json:"flight_number,omitempty"`
	GoogleFlightsURL string `json:"google_flights_url,omitempty"`
}

func normalizeSerpFlight(raw serpFlight, currency, flightsURL string) (types.NormalizedOffer, bool) {
	if raw.Price <= 0 || len(raw.Flights) == 0 {
		return types.NormalizedOffer{}, false
	}
	if currency == "" {
		currency = "USD"
	}

	flightNumber := raw.Flights[0].FlightNumber
	payload, _ := json.Marshal(serpBookingPayload{
		BookingToken:     raw.BookingToken,
		FlightNumber:     flightNumber,
		GoogleFlightsURL: flightsURL,
	})

	return types.NormalizedOffer{
		TotalPrice:     raw.Price,
		Currency:       strings.ToUpper(currency),
		CarrierCode:    carrierFromFlightNumber(flightNumber, raw.Flights[0].Airline),
		StopsOutbound:  len(raw.Layovers),
		BookingPayload: payload,
	}, true
}

// carrierFromFlightNumber extracts the IATA designator from "BA 117".
func carrierFromFlightNumber(flightNumber, airline string) string {
	if code, _, ok := strings.Cut(strings.TrimSpace(flightNumber), " "); ok && len(code) == 2 {
		return strings.ToUpper(code)
	}
	return airline
}

var _ FareProvider = (*SerpAPIClient)(nil)
