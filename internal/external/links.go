package external

import (
	"encoding/json"
	"net/url"
	"strings"

	"farewatch/internal/types"
)

const googleFlightsURL = "https://www.google.com/travel/flights"

// linkField names a value taken from the offer context.
type linkField int

const (
	linkOrigin linkField = iota
	linkDestination
	linkDepart
	linkReturn
	linkTripRT // "RT" or "OW"
	linkTripNum
)

// linkTemplate describes a carrier booking page as a base URL plus query
// parameters. Parameters whose value is empty (e.g. return on one-way) are
// omitted.
type linkTemplate struct {
	BaseURL string
	Params  map[string]linkField
	Static  map[string]string
}

// carrierLinks maps IATA carrier codes to their booking search page.
// Carriers not listed fall back to Google Flights.
var carrierLinks = map[string]linkTemplate{
	"AA": {
		BaseURL: "https://www.aa.com/booking/find-flights",
		Params:  map[string]linkField{"from": linkOrigin, "to": linkDestination, "departDate": linkDepart, "returnDate": linkReturn, "tripType": linkTripRT},
		Static:  map[string]string{"locale": "en_US"},
	},
	"BA": {
		BaseURL: "https://www.britishairways.com/travel/book/public/en_gb",
		Params:  map[string]linkField{"from": linkOrigin, "to": linkDestination, "depDate": linkDepart, "retDate": linkReturn},
	},
	"DL": {
		BaseURL: "https://www.delta.com/flight-search/book-a-flight",
		Params:  map[string]linkField{"fromCity": linkOrigin, "toCity": linkDestination, "departureDate": linkDepart, "returnDate": linkReturn, "tripType": linkTripRT},
	},
	"UA": {
		BaseURL: "https://www.united.com/en/us/fsr/choose-flights",
		Params:  map[string]linkField{"f": linkOrigin, "t": linkDestination, "d": linkDepart, "r": linkReturn, "tt": linkTripNum},
		Static:  map[string]string{"sc": "7"},
	},
	"AF": {
		BaseURL: "https://wwws.airfrance.us/search/offers",
		Params:  map[string]linkField{"origin": linkOrigin, "destination": linkDestination, "outboundDate": linkDepart, "inboundDate": linkReturn},
	},
	"KL": {
		BaseURL: "https://www.klm.us/search/offers",
		Params:  map[string]linkField{"origin": linkOrigin, "destination": linkDestination, "outboundDate": linkDepart, "inboundDate": linkReturn},
	},
	"LH": {
		BaseURL: "https://www.lufthansa.com/us/en/flight-search",
		Params:  map[string]linkField{"originCode": linkOrigin, "destinationCode": linkDestination, "outboundDate": linkDepart, "returnDate": linkReturn},
	},
	"B6": {
		BaseURL: "https://www.jetblue.com/booking/flights",
		Params:  map[string]linkField{"from": linkOrigin, "to": linkDestination, "depart": linkDepart, "return": linkReturn},
		Static:  map[string]string{"noOfRoute": "1"},
	},
}

// LinkBuilder implements types.BookingLinkBuilder with the carrierLinks table
// and a Google Flights fallback.
type LinkBuilder struct {
	templates map[string]linkTemplate
}

// NewLinkBuilder returns a LinkBuilder over the built-in carrier table.
func NewLinkBuilder() *LinkBuilder {
	return &LinkBuilder{templates: carrierLinks}
}

// Build returns a booking deep link for offer. It never fails: unknown
// carriers get a Google Flights search link, preferring one already supplied
// in the offer's booking payload.
func (b *LinkBuilder) Build(offer types.NormalizedOffer, route types.Route, dates types.DateCombination) string {
	values := linkValues(route, dates)

	if tmpl, ok := b.templates[strings.ToUpper(offer.CarrierCode)]; ok {
		return tmpl.render(values)
	}

	var payload struct {
		GoogleFlightsURL string `json:"google_flights_url"`
	}
	if len(offer.BookingPayload) > 0 && json.Unmarshal(offer.BookingPayload, &payload) == nil &&
		strings.HasPrefix(payload.GoogleFlightsURL, "https://") {
		return payload.GoogleFlightsURL
	}

	return GoogleFlightsLink(route, dates)
}

// GoogleFlightsLink builds a Google Flights search URL for the route and dates.
func GoogleFlightsLink(route types.Route, dates types.DateCombination) string {
	fallback := linkTemplate{
		BaseURL: googleFlightsURL,
		Params:  map[string]linkField{"f": linkOrigin, "t": linkDestination, "d": linkDepart, "r": linkReturn},
	}
	return fallback.render(linkValues(route, dates))
}

func linkValues(route types.Route, dates types.DateCombination) map[linkField]string {
	v := map[linkField]string{
		linkOrigin:      strings.ToUpper(route.Origin),
		linkDestination: strings.ToUpper(route.Destination),
		linkDepart:      dates.Depart.Format(types.DateLayout),
		linkTripRT:      "OW",
		linkTripNum:     "1",
	}
	if dates.Return != nil {
		v[linkReturn] = dates.Return.Format(types.DateLayout)
		v[linkTripRT] = "RT"
		v[linkTripNum] = "2"
	}
	return v
}

func (t linkTemplate) render(values map[linkField]string) string {
	q := url.Values{}
	for k, v := range t.Static {
		q.Set(k, v)
	}
	for param, field := range t.Params {
		if v := values[field]; v != "" {
			q.Set(param, v)
		}
	}
	return t.BaseURL + "?" + q.Encode()
}

var _ types.BookingLinkBuilder = (*LinkBuilder)(nil)
