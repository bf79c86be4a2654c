// Package alert defines the normalized opportunity record, the normalizer
// that produces it from captured payloads, and required-field validation.
package alert

import (
	"encoding/json"
	"time"
)

// Selection is one bookmaker side of an opportunity.
type Selection struct {
	Bookmaker string  `json:"bookmaker"`
	Odd       float64 `json:"odd"`
}

// Alert is one normalized opportunity, ready for routing and delivery.
// Immutable after normalization; discarded after delivery, never persisted.
type Alert struct {
	Source     string    `json:"source"`
	Profile    string    `json:"profile"`
	CapturedAt time.Time `json:"captured_at"`

	Sport  string `json:"sport,omitempty"`
	League string `json:"league,omitempty"`
	Match  string `json:"match,omitempty"`
	Market string `json:"market,omitempty"`

	SelectionA *Selection `json:"selection_a,omitempty"`
	SelectionB *Selection `json:"selection_b,omitempty"` // absent for single-sided opportunities

	// ProfitPct is the source-dependent profit metric (Betburger ROI,
	// Surebet value). nil means the source reported none.
	ProfitPct *float64 `json:"profit_pct,omitempty"`

	EventStart *time.Time `json:"event_start,omitempty"`
	TargetLink string     `json:"target_link,omitempty"`
	FilterID   string     `json:"filter_id,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"` // original payload, diagnostics only
}

// IsArbitrage reports whether both sides are present.
func (a *Alert) IsArbitrage() bool {
	return a.SelectionB != nil
}

// field resolves a dotted path against the alert and reports whether the
// value exists and is non-empty/non-null. Unknown paths resolve to false.
func (a *Alert) field(path string) bool {
	switch path {
	case "source":
		return a.Source != ""
	case "profile":
		return a.Profile != ""
	case "sport":
		return a.Sport != ""
	case "league":
		return a.League != ""
	case "match":
		return a.Match != ""
	case "market":
		return a.Market != ""
	case "profit_pct":
		return a.ProfitPct != nil
	case "event_start":
		return a.EventStart != nil && !a.EventStart.IsZero()
	case "target_link":
		return a.TargetLink != ""
	case "filter_id":
		return a.FilterID != ""
	case "selection_a.bookmaker":
		return a.SelectionA != nil && a.SelectionA.Bookmaker != ""
	case "selection_a.odd":
		return a.SelectionA != nil && a.SelectionA.Odd > 0
	case "selection_b.bookmaker":
		return a.SelectionB != nil && a.SelectionB.Bookmaker != ""
	case "selection_b.odd":
		return a.SelectionB != nil && a.SelectionB.Odd > 0
	}
	return false
}
