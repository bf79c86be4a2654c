package alert

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// jsonOpportunity mirrors the JSON shape both sources emit on their search
// endpoints. Odd values arrive either as numbers or strings.
type jsonOpportunity struct {
	Sport      string          `json:"sport"`
	League     string          `json:"league"`
	Match      string          `json:"match"`
	Market     string          `json:"market"`
	Selections []jsonSelection `json:"selections"`
	Selection  *jsonSelection  `json:"selection"`
	Bookmaker  string          `json:"bookmaker"`
	Odd        *flexFloat      `json:"odd"`
	RoiPct     *flexFloat      `json:"roi_pct"`
	Profit     *flexFloat      `json:"profit"`
	ValuePct   *flexFloat      `json:"value_pct"`
	Value      *flexFloat      `json:"value"`
	EventStart string          `json:"event_start"`
	TargetLink string          `json:"target_link"`
	URL        string          `json:"url"`
	FilterID   flexString      `json:"filter_id"`
}

// flexString accepts both "1218062" and 1218062.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 1 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

type jsonSelection struct {
	Bookmaker string    `json:"bookmaker"`
	Odd       flexFloat `json:"odd"`
}

// flexFloat accepts both 2.05 and "2.05".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 1 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse odd %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// JSONExtractor parses the arbs/valuebets JSON payloads intercepted from a
// source's search API. When a payload carries several profit fields the
// first present wins, in roi_pct, profit, value_pct, value order.
type JSONExtractor struct {
	twoSided bool
}

// NewBetburgerExtractor extracts two-sided arbitrage records (pro_search).
func NewBetburgerExtractor() *JSONExtractor {
	return &JSONExtractor{twoSided: true}
}

// NewSurebetExtractor extracts single-sided value-bet records.
func NewSurebetExtractor() *JSONExtractor {
	return &JSONExtractor{twoSided: false}
}

// Extract parses payload as either a single opportunity object, a bare
// array, or an envelope with an "arbs"/"bets" list.
func (x *JSONExtractor) Extract(payload []byte) ([]Alert, error) {
	opps, err := decodeOpportunities(payload)
	if err != nil {
		return nil, err
	}

	out := make([]Alert, 0, len(opps))
	for _, o := range opps {
		out = append(out, x.toAlert(o))
	}
	return out, nil
}

func decodeOpportunities(payload []byte) ([]jsonOpportunity, error) {
	var envelope struct {
		Arbs []jsonOpportunity `json:"arbs"`
		Bets []jsonOpportunity `json:"bets"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil {
		if len(envelope.Arbs) > 0 {
			return envelope.Arbs, nil
		}
		if len(envelope.Bets) > 0 {
			return envelope.Bets, nil
		}
	}

	var list []jsonOpportunity
	if err := json.Unmarshal(payload, &list); err == nil {
		return list, nil
	}

	var single jsonOpportunity
	if err := json.Unmarshal(payload, &single); err != nil {
		return nil, fmt.Errorf("decode opportunity payload: %w", err)
	}
	return []jsonOpportunity{single}, nil
}

func (x *JSONExtractor) toAlert(o jsonOpportunity) Alert {
	a := Alert{
		Sport:      o.Sport,
		League:     o.League,
		Match:      o.Match,
		Market:     o.Market,
		TargetLink: firstNonEmpty(o.TargetLink, o.URL),
		FilterID:   string(o.FilterID),
	}

	if len(o.Selections) > 0 {
		a.SelectionA = &Selection{Bookmaker: o.Selections[0].Bookmaker, Odd: float64(o.Selections[0].Odd)}
		if x.twoSided && len(o.Selections) > 1 {
			a.SelectionB = &Selection{Bookmaker: o.Selections[1].Bookmaker, Odd: float64(o.Selections[1].Odd)}
		}
	} else if o.Selection != nil {
		a.SelectionA = &Selection{Bookmaker: o.Selection.Bookmaker, Odd: float64(o.Selection.Odd)}
	} else if o.Odd != nil {
		// Flat form. An empty bookmaker label stays empty here; profile
		// defaults may fill it later.
		a.SelectionA = &Selection{Bookmaker: o.Bookmaker, Odd: float64(*o.Odd)}
	}

	for _, p := range []*flexFloat{o.RoiPct, o.Profit, o.ValuePct, o.Value} {
		if p != nil {
			v := float64(*p)
			a.ProfitPct = &v
			break
		}
	}

	if o.EventStart != "" {
		if t, err := time.Parse(time.RFC3339, o.EventStart); err == nil {
			utc := t.UTC()
			a.EventStart = &utc
		}
	}

	if raw, err := json.Marshal(o); err == nil {
		a.Raw = raw
	}
	return a
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
