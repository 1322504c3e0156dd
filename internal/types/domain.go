package types

import (
	"encoding/json"
	"time"
)

// DateLayout is the calendar-date wire format used for watch windows,
// search requests and API responses.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Route is the origin/destination pair of a watch.
type Route struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// Watch is the durable subject of monitoring: a user's subscription to price
// changes on a route and date window.
type Watch struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// Route and window
	Origin      string    `json:"origin" db:"origin"`
	Destination string    `json:"destination" db:"destination"`
	Start       time.Time `json:"start" db:"start_date"`
	End         time.Time `json:"end" db:"end_date"`
	TripType    TripType  `json:"trip_type" db:"trip_type"`
	FlexDays    int       `json:"flex_days" db:"flex_days"`

	// Search constraints
	Cabin    Cabin  `json:"cabin" db:"cabin"`
	MaxStops int    `json:"max_stops" db:"max_stops"`
	Adults   int    `json:"adults" db:"adults"`
	Currency string `json:"currency" db:"currency"`

	// Target and runtime state
	TargetUSD       float64  `json:"target_usd" db:"target_usd"`
	Active          bool     `json:"active" db:"active"`
	LastBestUSD     *float64 `json:"last_best_usd,omitempty" db:"last_best_usd"`
	LastNotifiedUSD *float64 `json:"last_notified_usd,omitempty" db:"last_notified_usd"`
	Email           string   `json:"email,omitempty" db:"email"`
	Provider        string   `json:"provider,omitempty" db:"provider"`
	LastProvider    string   `json:"last_provider,omitempty" db:"last_provider"`
	LastSourceLink  string   `json:"last_source_link,omitempty" db:"last_source_link"`

	// Version is bumped by the store on every update and guards
	// read-modify-write cycles against overlapping trigger runs.
	Version int64 `json:"-" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Route returns the watch's origin/destination pair.
func (w *Watch) Route() Route {
	return Route{Origin: w.Origin, Destination: w.Destination}
}

// WatchPatch carries a partial update. Nil fields are left untouched.
type WatchPatch struct {
	Active          *bool
	TargetUSD       *float64
	Email           *string
	LastBestUSD     *float64
	LastNotifiedUSD *float64
	LastProvider    *string
	LastSourceLink  *string
	UpdatedAt       *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p WatchPatch) IsEmpty() bool {
	return p.Active == nil && p.TargetUSD == nil && p.Email == nil &&
		p.LastBestUSD == nil && p.LastNotifiedUSD == nil &&
		p.LastProvider == nil && p.LastSourceLink == nil && p.UpdatedAt == nil
}

// DateCombination is one concrete (depart[, return]) pair to search.
type DateCombination struct {
	Depart time.Time
	Return *time.Time
}

type dateCombinationJSON struct {
	Depart string `json:"depart"`
	Return string `json:"return,omitempty"`
}

// MarshalJSON renders both dates as YYYY-MM-DD.
func (d DateCombination) MarshalJSON() ([]byte, error) {
	out := dateCombinationJSON{Depart: d.Depart.Format(DateLayout)}
	if d.Return != nil {
		out.Return = d.Return.Format(DateLayout)
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the YYYY-MM-DD representation produced by MarshalJSON.
func (d *DateCombination) UnmarshalJSON(b []byte) error {
	var in dateCombinationJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	depart, err := time.Parse(DateLayout, in.Depart)
	if err != nil {
		return err
	}
	d.Depart = depart
	d.Return = nil
	if in.Return != "" {
		ret, err := time.Parse(DateLayout, in.Return)
		if err != nil {
			return err
		}
		d.Return = &ret
	}
	return nil
}

// SearchRequest is the provider-agnostic query for one date combination.
type SearchRequest struct {
	Route    Route
	Dates    DateCombination
	Cabin    Cabin
	Adults   int
	Currency string
}

// NormalizedOffer is a provider-agnostic fare offer. BookingPayload is passed
// through unchanged to the BookingLinkBuilder.
type NormalizedOffer struct {
	TotalPrice     float64         `json:"total_price"`
	Currency       string          `json:"currency"`
	CarrierCode    string          `json:"carrier_code"`
	StopsOutbound  int             `json:"stops_outbound"`
	StopsReturn    *int            `json:"stops_return,omitempty"`
	BookingPayload json.RawMessage `json:"booking_payload,omitempty"`
}

// TriggerOutcome is the result of one trigger run.
type TriggerOutcome struct {
	Action           Action
	Reason           Reason
	BestOffer        *NormalizedOffer
	DatesUsed        *DateCombination
	NotificationSent bool

	// EmailReason is set when NotificationSent is false.
	EmailReason EmailSkipReason
	// BookingLink is the deep link stored as LastSourceLink, when an offer was found.
	BookingLink          string
	SearchedCombinations int
	// SearchFailures counts combinations whose search returned an error,
	// including runs that still found an offer.
	SearchFailures int
	Provider       string

	// Watch is the record as persisted at the end of the run.
	Watch *Watch
}

// OutboundMessage is a fully rendered notification.
type OutboundMessage struct {
	To          string
	Subject     string
	BodyHTML    string
	BodyText    string
	ReferenceID string
}

// DeliveryReport is the result of a Notifier.Send call.
type DeliveryReport struct {
	Delivered    bool
	MessageID    string
	ProviderName string
}

// SendInput defines the contract for email transmission.
type SendInput struct {
	To          string
	From        SenderIdentity
	Subject     string
	BodyHTML    string
	BodyText    string
	ReferenceID string
}

// SenderIdentity defines the sender for outgoing emails.
type SenderIdentity struct {
	Name    string
	Address string
}

// PriceAlert is the content of a price-drop notification.
type PriceAlert struct {
	WatchID       string
	Route         Route
	Dates         DateCombination
	Price         float64
	Currency      string
	Carrier       string
	StopsOutbound int
	StopsReturn   *int
	TargetUSD     float64
	Reason        Reason
	BookingLink   string
	// DeepLink points back into the web app with the search pre-filled.
	DeepLink string
}
