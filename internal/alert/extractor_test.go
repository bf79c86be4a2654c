package alert

import (
	"testing"
)

func TestBetburgerExtract_Envelope(t *testing.T) {
	payload := []byte(`{"arbs":[{
		"sport":"Football","league":"EPL","match":"Team A - Team B","market":"1X2",
		"selections":[{"bookmaker":"bet365","odd":2.1},{"bookmaker":"pinnacle","odd":"2.05"}],
		"roi_pct":2.4,"event_start":"2026-03-01T18:00:00Z",
		"target_link":"https://x/arb/1","filter_id":1218062
	}]}`)

	alerts, err := NewBetburgerExtractor().Extract(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}

	a := alerts[0]
	if a.Match != "Team A - Team B" || a.Sport != "Football" {
		t.Errorf("match/sport = %q/%q", a.Match, a.Sport)
	}
	if a.SelectionA == nil || a.SelectionA.Bookmaker != "bet365" || a.SelectionA.Odd != 2.1 {
		t.Errorf("selection A = %+v", a.SelectionA)
	}
	if a.SelectionB == nil || a.SelectionB.Odd != 2.05 {
		t.Errorf("selection B = %+v, want string odd parsed", a.SelectionB)
	}
	if !a.IsArbitrage() {
		t.Error("two-sided record should be arbitrage")
	}
	if a.ProfitPct == nil || *a.ProfitPct != 2.4 {
		t.Errorf("ProfitPct = %v, want 2.4", a.ProfitPct)
	}
	if a.EventStart == nil || a.EventStart.Hour() != 18 {
		t.Errorf("EventStart = %v", a.EventStart)
	}
	if a.FilterID != "1218062" {
		t.Errorf("FilterID = %q, want numeric id as string", a.FilterID)
	}
	if a.TargetLink != "https://x/arb/1" {
		t.Errorf("TargetLink = %q", a.TargetLink)
	}
}

func TestSurebetExtract_SingleSided(t *testing.T) {
	payload := []byte(`{"bets":[{
		"sport":"Tennis","match":"P1 - P2","bookmaker":"bwin","odd":"3.4","value":5.2,
		"url":"https://s/bet/9"
	}]}`)

	alerts, err := NewSurebetExtractor().Extract(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}

	a := alerts[0]
	if a.SelectionA == nil || a.SelectionA.Bookmaker != "bwin" || a.SelectionA.Odd != 3.4 {
		t.Errorf("selection A = %+v", a.SelectionA)
	}
	if a.IsArbitrage() {
		t.Error("single-sided record must not be arbitrage")
	}
	if a.ProfitPct == nil || *a.ProfitPct != 5.2 {
		t.Errorf("ProfitPct = %v, want 5.2", a.ProfitPct)
	}
	if a.TargetLink != "https://s/bet/9" {
		t.Errorf("TargetLink = %q, want url fallback", a.TargetLink)
	}
}

func TestSurebetExtract_IgnoresSecondSelection(t *testing.T) {
	payload := []byte(`[{"match":"A - B","selections":[
		{"bookmaker":"x","odd":2.0},{"bookmaker":"y","odd":2.2}
	],"value_pct":1.1}]`)

	alerts, err := NewSurebetExtractor().Extract(payload)
	if err != nil {
		t.Fatal(err)
	}
	if alerts[0].SelectionB != nil {
		t.Error("single-sided extractor kept a second selection")
	}
}

func TestExtract_BareArrayAndSingleObject(t *testing.T) {
	x := NewBetburgerExtractor()

	fromArray, err := x.Extract([]byte(`[{"match":"A - B","roi_pct":1.0},{"match":"C - D","roi_pct":2.0}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(fromArray) != 2 {
		t.Errorf("bare array: got %d alerts, want 2", len(fromArray))
	}

	fromObject, err := x.Extract([]byte(`{"match":"A - B","roi_pct":1.0}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(fromObject) != 1 || fromObject[0].Match != "A - B" {
		t.Errorf("single object: got %+v", fromObject)
	}
}

func TestExtract_FlatOddWithoutBookmaker(t *testing.T) {
	alerts, err := NewSurebetExtractor().Extract(
		[]byte(`{"bets":[{"match":"A - B","odd":3.4,"value":5.2}]}`))
	if err != nil {
		t.Fatal(err)
	}
	a := alerts[0]
	if a.SelectionA == nil || a.SelectionA.Odd != 3.4 {
		t.Fatalf("selection A = %+v, want odd kept", a.SelectionA)
	}
	if a.SelectionA.Bookmaker != "" {
		t.Errorf("Bookmaker = %q, want empty for defaults to fill", a.SelectionA.Bookmaker)
	}
}

func TestExtract_ProfitKeyPriority(t *testing.T) {
	alerts, err := NewBetburgerExtractor().Extract(
		[]byte(`{"match":"A - B","roi_pct":1.5,"profit":9.9,"value":8.8}`))
	if err != nil {
		t.Fatal(err)
	}
	if alerts[0].ProfitPct == nil || *alerts[0].ProfitPct != 1.5 {
		t.Errorf("ProfitPct = %v, want roi_pct to win", alerts[0].ProfitPct)
	}
}

func TestExtract_Malformed(t *testing.T) {
	if _, err := NewBetburgerExtractor().Extract([]byte(`{{not json`)); err == nil {
		t.Error("malformed payload should return an error")
	}
}
