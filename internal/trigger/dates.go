// Package trigger evaluates one fare watch: it expands the watch's date
// window into concrete searches, keeps the cheapest admissible offer, decides
// whether the price warrants a notification and persists the result.
package trigger

import (
	"time"

	"farewatch/internal/types"
)

const (
	// MaxOneWayCombinations caps the searches of a one-way watch.
	MaxOneWayCombinations = 15
	// MaxRoundTripCombinations caps the searches of a round-trip watch.
	MaxRoundTripCombinations = 10

	baseStayDays = 7
)

// flexStayDays are the alternative stay lengths tried around the base stay
// when the watch allows flexible dates. Order matters: it is the search order.
var flexStayDays = []int{5, 9}

// DateWindow is the inclusive range of departure dates a watch covers.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// GenerateCombinations expands a watch window into the ordered list of date
// combinations to search. Departures before today (relative to now) are
// dropped. The result never exceeds the per-trip-type cap and may be empty.
func GenerateCombinations(window DateWindow, flexDays int, tripType types.TripType, now time.Time) []types.DateCombination {
	if flexDays < 0 {
		flexDays = 0
	}
	start := types.Day(window.Start)
	end := types.Day(window.End)
	today := types.Day(now)

	if tripType == types.TripRoundTrip {
		// Late departures may yield no return inside the window, so the walk
		// is not limited here; roundTrips applies the cap.
		return roundTrips(departures(start, end, flexDays, today, 0), end.AddDate(0, 0, flexDays), flexDays > 0)
	}

	deps := departures(start, end, flexDays, today, MaxOneWayCombinations)
	out := make([]types.DateCombination, 0, len(deps))
	for _, d := range deps {
		out = append(out, types.DateCombination{Depart: d})
	}
	return out
}

// departures lists candidate departure days in ascending order: flexDays
// before start, the window itself, then flexDays after end. Candidates before
// today are skipped. A positive limit stops the walk early.
func departures(start, end time.Time, flexDays int, today time.Time, limit int) []time.Time {
	first := start.AddDate(0, 0, -flexDays)
	last := end.AddDate(0, 0, flexDays)
	if first.Before(today) {
		first = today
	}

	var out []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// roundTrips pairs each departure with a return date. The base stay comes
// first, then the flexible variants, each kept only when the return is on or
// before latestReturn.
func roundTrips(deps []time.Time, latestReturn time.Time, flexible bool) []types.DateCombination {
	stays := []int{baseStayDays}
	if flexible {
		stays = append(stays, flexStayDays...)
	}

	out := make([]types.DateCombination, 0, MaxRoundTripCombinations)
	for _, d := range deps {
		for _, stay := range stays {
			ret := d.AddDate(0, 0, stay)
			if ret.After(latestReturn) {
				continue
			}
			out = append(out, types.DateCombination{Depart: d, Return: &ret})
			if len(out) == MaxRoundTripCombinations {
				return out
			}
		}
	}
	return out
}
