package alert

import (
	"reflect"
	"testing"
	"time"
)

func fullAlert() *Alert {
	profit := 2.5
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	return &Alert{
		Source:     "betburger",
		Profile:    "football",
		CapturedAt: time.Now().UTC(),
		Sport:      "football",
		Match:      "Team A - Team B",
		SelectionA: &Selection{Bookmaker: "bet365", Odd: 2.1},
		SelectionB: &Selection{Bookmaker: "pinnacle", Odd: 2.05},
		ProfitPct:  &profit,
		EventStart: &start,
	}
}

func TestExpandRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   []string
	}{
		{"selection macro", []string{"selection"}, []string{"selection_a.bookmaker", "selection_b.bookmaker"}},
		{"odds macro", []string{"odds"}, []string{"selection_a.odd", "selection_b.odd"}},
		{"event macro", []string{"event"}, []string{"match"}},
		{"start_time macro", []string{"start_time"}, []string{"event_start"}},
		{"roi macro", []string{"roi"}, []string{"profit_pct"}},
		{"value macro", []string{"value"}, []string{"profit_pct"}},
		{"bookmaker macro", []string{"bookmaker"}, []string{"selection_a.bookmaker"}},
		{"passthrough", []string{"sport", "target_link"}, []string{"sport", "target_link"}},
		{"mixed", []string{"event", "roi", "league"}, []string{"match", "profit_pct", "league"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandRequiredFields(tt.fields)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandRequiredFields(%v) = %v, want %v", tt.fields, got, tt.want)
			}
		})
	}
}

func TestValidate_Complete(t *testing.T) {
	ok, missing := Validate(fullAlert(), []string{"event", "selection", "odds", "roi", "start_time"})
	if !ok {
		t.Errorf("Validate complete alert failed, missing = %v", missing)
	}
}

func TestValidate_ReportsExactMissingPaths(t *testing.T) {
	a := fullAlert()
	a.SelectionB = nil
	a.ProfitPct = nil

	ok, missing := Validate(a, []string{"event", "selection", "odds", "roi"})
	if ok {
		t.Fatal("Validate should fail with missing second selection and profit")
	}
	want := []string{"selection_b.bookmaker", "selection_b.odd", "profit_pct"}
	if !reflect.DeepEqual(missing, want) {
		t.Errorf("missing = %v, want %v", missing, want)
	}
}

func TestValidate_ZeroOddIsMissing(t *testing.T) {
	a := fullAlert()
	a.SelectionA.Odd = 0

	ok, missing := Validate(a, []string{"odds"})
	if ok {
		t.Fatal("zero odd should not satisfy the odds requirement")
	}
	if len(missing) != 1 || missing[0] != "selection_a.odd" {
		t.Errorf("missing = %v, want [selection_a.odd]", missing)
	}
}

func TestValidate_UnknownPathFails(t *testing.T) {
	ok, missing := Validate(fullAlert(), []string{"no_such_field"})
	if ok {
		t.Fatal("unknown required path should fail validation")
	}
	if len(missing) != 1 || missing[0] != "no_such_field" {
		t.Errorf("missing = %v, want [no_such_field]", missing)
	}
}

func TestValidate_NoRequirements(t *testing.T) {
	ok, missing := Validate(&Alert{}, nil)
	if !ok || missing != nil {
		t.Errorf("Validate with no requirements = (%v, %v), want (true, nil)", ok, missing)
	}
}
