package alert

// ApplyDefaults fills gaps in an alert from a profile's configured fallback
// labels. Recognized keys: market_label, selection_a, selection_b. Only
// missing values are filled; a label carried by the payload always wins, and
// no selection is invented for a side the payload never reported.
func ApplyDefaults(a *Alert, defaults map[string]string) {
	if len(defaults) == 0 {
		return
	}
	if v := defaults["market_label"]; v != "" && a.Market == "" {
		a.Market = v
	}
	if v := defaults["selection_a"]; v != "" && a.SelectionA != nil && a.SelectionA.Bookmaker == "" {
		a.SelectionA.Bookmaker = v
	}
	if v := defaults["selection_b"]; v != "" && a.SelectionB != nil && a.SelectionB.Bookmaker == "" {
		a.SelectionB.Bookmaker = v
	}
}
