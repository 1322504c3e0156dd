package trigger

import "farewatch/internal/types"

// HysteresisBand is the minimum drop below the last notified price needed to
// notify again.
const HysteresisBand = 25.0

// Decision is the outcome of Decide.
type Decision struct {
	Action types.Action
	Reason types.Reason
}

// Decide classifies bestPrice against the watch's target and the price it was
// last notified at. A NOTIFY decision must be persisted by the caller as the
// new LastNotifiedUSD.
func Decide(w *types.Watch, bestPrice float64) Decision {
	switch {
	case bestPrice > w.TargetUSD:
		return Decision{Action: types.ActionNoop, Reason: types.ReasonAboveTarget}
	case w.LastNotifiedUSD == nil:
		return Decision{Action: types.ActionNotify, Reason: types.ReasonFirstTimeBelowTarget}
	case bestPrice <= *w.LastNotifiedUSD-HysteresisBand:
		return Decision{Action: types.ActionNotify, Reason: types.ReasonSignificantPriceDrop}
	default:
		return Decision{Action: types.ActionNoop, Reason: types.ReasonBelowTargetNotSignificant}
	}
}
