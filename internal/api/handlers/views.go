package handlers

import (
	"time"

	"farewatch/internal/types"
)

// BestOffer is the cheapest admissible offer of a trigger run.
type BestOffer struct {
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	Carrier       string  `json:"carrier"`
	StopsOutbound int     `json:"stopsOutbound"`
	StopsReturn   *int    `json:"stopsReturn,omitempty"`
	Depart        string  `json:"depart"`
	Return        string  `json:"return,omitempty"`
	Link          string  `json:"link"`
}

// EmailStatus reports whether the alert email went out.
type EmailStatus struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}

// TriggerResponse is the body of a successful trigger call.
type TriggerResponse struct {
	Action               types.Action `json:"action"`
	Reason               types.Reason `json:"reason"`
	Best                 *BestOffer   `json:"best,omitempty"`
	Email                EmailStatus  `json:"email"`
	WatchID              string       `json:"watchId"`
	TargetUSD            float64      `json:"targetUsd"`
	LastNotifiedUSD      *float64     `json:"lastNotifiedUsd"`
	SearchedCombinations int          `json:"searchedCombinations"`
}

// NewTriggerResponse flattens an outcome for the API.
func NewTriggerResponse(watchID string, o *types.TriggerOutcome) TriggerResponse {
	resp := TriggerResponse{
		Action:               o.Action,
		Reason:               o.Reason,
		Email:                EmailStatus{Sent: o.NotificationSent},
		WatchID:              watchID,
		SearchedCombinations: o.SearchedCombinations,
	}
	if !o.NotificationSent {
		resp.Email.Reason = string(o.EmailReason)
	}
	if o.Watch != nil {
		resp.WatchID = o.Watch.ID
		resp.TargetUSD = o.Watch.TargetUSD
		resp.LastNotifiedUSD = o.Watch.LastNotifiedUSD
	}
	if o.BestOffer != nil {
		best := &BestOffer{
			Price:         o.BestOffer.TotalPrice,
			Currency:      o.BestOffer.Currency,
			Carrier:       o.BestOffer.CarrierCode,
			StopsOutbound: o.BestOffer.StopsOutbound,
			StopsReturn:   o.BestOffer.StopsReturn,
			Link:          o.BookingLink,
		}
		if o.DatesUsed != nil {
			best.Depart = o.DatesUsed.Depart.Format(types.DateLayout)
			if o.DatesUsed.Return != nil {
				best.Return = o.DatesUsed.Return.Format(types.DateLayout)
			}
		}
		resp.Best = best
	}
	return resp
}

// WatchView is the API representation of a watch.
type WatchView struct {
	ID              string     `json:"id"`
	Origin          string     `json:"origin"`
	Destination     string     `json:"destination"`
	Start           string     `json:"start"`
	End             string     `json:"end"`
	TripType        string     `json:"tripType"`
	FlexDays        int        `json:"flexDays"`
	Cabin           string     `json:"cabin"`
	MaxStops        int        `json:"maxStops"`
	Adults          int        `json:"adults"`
	Currency        string     `json:"currency"`
	TargetUSD       float64    `json:"targetUsd"`
	Active          bool       `json:"active"`
	LastBestUSD     *float64   `json:"lastBestUsd"`
	LastNotifiedUSD *float64   `json:"lastNotifiedUsd"`
	Email           string     `json:"email,omitempty"`
	Provider        string     `json:"provider,omitempty"`
	LastProvider    string     `json:"lastProvider,omitempty"`
	LastSourceLink  string     `json:"lastSourceLink,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// NewWatchView converts a stored watch.
func NewWatchView(w *types.Watch) WatchView {
	v := WatchView{
		ID:              w.ID,
		Origin:          w.Origin,
		Destination:     w.Destination,
		Start:           w.Start.Format(types.DateLayout),
		End:             w.End.Format(types.DateLayout),
		TripType:        string(w.TripType),
		FlexDays:        w.FlexDays,
		Cabin:           string(w.Cabin),
		MaxStops:        w.MaxStops,
		Adults:          w.Adults,
		Currency:        w.Currency,
		TargetUSD:       w.TargetUSD,
		Active:          w.Active,
		LastBestUSD:     w.LastBestUSD,
		LastNotifiedUSD: w.LastNotifiedUSD,
		Email:           w.Email,
		Provider:        w.Provider,
		LastProvider:    w.LastProvider,
		LastSourceLink:  w.LastSourceLink,
		CreatedAt:       w.CreatedAt,
	}
	if !w.UpdatedAt.IsZero() {
		updated := w.UpdatedAt
		v.UpdatedAt = &updated
	}
	return v
}
