package alert

// ExpandRequiredFields translates generic configuration field names into the
// alert schema paths they stand for. Shorthand macros expand to multiple
// paths; anything unrecognized passes through unchanged.
//
//	selection  -> selection_a.bookmaker, selection_b.bookmaker
//	odds       -> selection_a.odd, selection_b.odd
//	event      -> match
//	start_time -> event_start
//	roi, value -> profit_pct
//	bookmaker  -> selection_a.bookmaker
func ExpandRequiredFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case "selection":
			out = append(out, "selection_a.bookmaker", "selection_b.bookmaker")
		case "odds":
			out = append(out, "selection_a.odd", "selection_b.odd")
		case "event":
			out = append(out, "match")
		case "start_time":
			out = append(out, "event_start")
		case "roi", "value":
			out = append(out, "profit_pct")
		case "bookmaker":
			out = append(out, "selection_a.bookmaker")
		default:
			out = append(out, f)
		}
	}
	return out
}

// Validate checks every required field (after macro expansion) against the
// alert. It returns ok and the exact list of unsatisfied paths; it never
// fails any other way.
func Validate(a *Alert, requiredFields []string) (bool, []string) {
	var missing []string
	for _, path := range ExpandRequiredFields(requiredFields) {
		if !a.field(path) {
			missing = append(missing, path)
		}
	}
	return len(missing) == 0, missing
}
