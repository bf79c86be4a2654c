package pipeline

import (
	"context"
	"strings"
	"testing"

	"arbrelay/internal/alert"
	"arbrelay/internal/capture"
	"arbrelay/internal/control"
	"arbrelay/internal/pkg/config"
	"arbrelay/internal/routing"
	"arbrelay/internal/snapshot"
)

type fakeNotifier struct {
	texts    []string
	channels []string
	fail     bool
}

func (f *fakeNotifier) Send(_ context.Context, text, channelID string) bool {
	if f.fail {
		return false
	}
	f.texts = append(f.texts, text)
	f.channels = append(f.channels, channelID)
	return true
}

func f64(v float64) *float64 { return &v }

func pipelineConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{ErrorChannelID: "@errors"},
		Profiles: map[string]config.ProfileSet{
			"ev-surebets": {
				"valuebets": config.ChannelProfile{
					ChannelID:      "@valuebets",
					RequiredFields: []string{"event", "bookmaker", "value"},
					Filters:        config.FilterPredicates{MinProfit: f64(2.0)},
				},
			},
		},
	}
}

type recordQueue struct {
	records []capture.Record
}

func (q *recordQueue) drain() []capture.Record {
	out := q.records
	q.records = nil
	return out
}

func newTestDriver(t *testing.T, notifier Notifier, queue *recordQueue) (*Driver, *control.Controller) {
	t.Helper()
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	controller := control.NewController()
	d := NewDriver(Options{
		Controller: controller,
		Store:      store,
		Normalizer: alert.NewNormalizer(map[string]alert.Extractor{
			"ev-surebets": alert.NewSurebetExtractor(),
		}),
		Router:   routing.NewRouter(pipelineConfig()),
		Notifier: notifier,
		Watches: []Watch{{
			Source:  "ev-surebets",
			Profile: "valuebets",
			Drain:   queue.drain,
		}},
		RetentionHours: 6,
	})
	return d, controller
}

const valuebetPayload = `{"bets":[{
	"match":"P1 - P2","sport":"Tennis","bookmaker":"bwin","odd":3.4,"value":5.2,
	"url":"https://s/bet/9"
}]}`

func TestCycle_EndToEnd(t *testing.T) {
	notifier := &fakeNotifier{}
	queue := &recordQueue{records: []capture.Record{
		{ID: "r1", Kind: capture.KindResponse, URL: "https://s/api", JSON: []byte(valuebetPayload)},
	}}
	d, _ := newTestDriver(t, notifier, queue)

	d.Cycle(context.Background())

	if len(notifier.texts) != 1 {
		t.Fatalf("sent %d messages, want 1", len(notifier.texts))
	}
	if notifier.channels[0] != "@valuebets" {
		t.Errorf("channel = %q, want @valuebets", notifier.channels[0])
	}
	if !strings.Contains(notifier.texts[0], "P1 - P2") {
		t.Errorf("message missing match name:\n%s", notifier.texts[0])
	}
}

func TestCycle_AppliesProfileDefaults(t *testing.T) {
	notifier := &fakeNotifier{}
	// No bookmaker or market in the payload; the profile's fallback labels
	// must satisfy validation and show up in the message.
	queue := &recordQueue{records: []capture.Record{
		{ID: "r1", JSON: []byte(`{"bets":[{"match":"P1 - P2","odd":3.4,"value":5.2}]}`)},
	}}

	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := pipelineConfig()
	set := cfg.Profiles["ev-surebets"]
	p := set["valuebets"]
	p.Defaults = map[string]string{"selection_a": "bwin", "market_label": "Moneyline"}
	set["valuebets"] = p

	d := NewDriver(Options{
		Controller: control.NewController(),
		Store:      store,
		Normalizer: alert.NewNormalizer(map[string]alert.Extractor{
			"ev-surebets": alert.NewSurebetExtractor(),
		}),
		Router:   routing.NewRouter(cfg),
		Notifier: notifier,
		Watches: []Watch{{
			Source:  "ev-surebets",
			Profile: "valuebets",
			Drain:   queue.drain,
		}},
	})

	d.Cycle(context.Background())

	if len(notifier.texts) != 1 {
		t.Fatalf("sent %d messages, want 1", len(notifier.texts))
	}
	for _, want := range []string{"bwin", "Moneyline"} {
		if !strings.Contains(notifier.texts[0], want) {
			t.Errorf("message missing fallback label %q:\n%s", want, notifier.texts[0])
		}
	}
}

func TestCycle_DeduplicatesIdenticalPayloads(t *testing.T) {
	notifier := &fakeNotifier{}
	queue := &recordQueue{}
	d, _ := newTestDriver(t, notifier, queue)

	queue.records = []capture.Record{{ID: "r1", JSON: []byte(valuebetPayload)}}
	d.Cycle(context.Background())

	queue.records = []capture.Record{{ID: "r2", JSON: []byte(valuebetPayload)}}
	d.Cycle(context.Background())

	if len(notifier.texts) != 1 {
		t.Errorf("sent %d messages, want 1 (second capture is a duplicate)", len(notifier.texts))
	}

	changed := strings.Replace(valuebetPayload, "5.2", "6.0", 1)
	queue.records = []capture.Record{{ID: "r3", JSON: []byte(changed)}}
	d.Cycle(context.Background())

	if len(notifier.texts) != 2 {
		t.Errorf("sent %d messages, want 2 after content change", len(notifier.texts))
	}
}

func TestCycle_PausedDiscardsRecords(t *testing.T) {
	notifier := &fakeNotifier{}
	queue := &recordQueue{}
	d, controller := newTestDriver(t, notifier, queue)

	controller.Pause("maintenance")
	queue.records = []capture.Record{{ID: "r1", JSON: []byte(valuebetPayload)}}
	d.Cycle(context.Background())

	if len(notifier.texts) != 0 {
		t.Fatal("paused cycle must not deliver")
	}

	// Nothing buffered survives the pause: resuming sends nothing old.
	controller.Resume()
	d.Cycle(context.Background())
	if len(notifier.texts) != 0 {
		t.Error("records drained while paused were replayed after resume")
	}

	if !strings.Contains(d.StatusText(), "Dropped while suspended: 1") {
		t.Errorf("status = %q", d.StatusText())
	}
}

func TestCycle_ConfigModeDiscardsRecords(t *testing.T) {
	notifier := &fakeNotifier{}
	queue := &recordQueue{}
	d, controller := newTestDriver(t, notifier, queue)

	controller.EnterConfig()
	queue.records = []capture.Record{{ID: "r1", JSON: []byte(valuebetPayload)}}
	d.Cycle(context.Background())

	if len(notifier.texts) != 0 {
		t.Error("config-mode cycle must not deliver")
	}
}

func TestCycle_ValidationRejectsIncompleteAlert(t *testing.T) {
	notifier := &fakeNotifier{}
	// Payload missing the bookmaker required by the profile.
	queue := &recordQueue{records: []capture.Record{
		{ID: "r1", JSON: []byte(`{"bets":[{"match":"P1 - P2","value":5.2}]}`)},
	}}
	d, _ := newTestDriver(t, notifier, queue)

	d.Cycle(context.Background())

	if len(notifier.texts) != 0 {
		t.Errorf("invalid alert was delivered: %v", notifier.texts)
	}
	if !strings.Contains(d.StatusText(), "invalid 1") {
		t.Errorf("status = %q", d.StatusText())
	}
}

func TestCycle_EmptyPayloadSkipped(t *testing.T) {
	notifier := &fakeNotifier{}
	queue := &recordQueue{records: []capture.Record{
		{ID: "r1", Kind: capture.KindRequest, URL: "https://s/api"},
	}}
	d, _ := newTestDriver(t, notifier, queue)

	d.Cycle(context.Background())

	if len(notifier.texts) != 0 {
		t.Error("payload-less record produced a delivery")
	}
}

func TestCycle_SendFailureCounted(t *testing.T) {
	notifier := &fakeNotifier{fail: true}
	queue := &recordQueue{records: []capture.Record{
		{ID: "r1", JSON: []byte(valuebetPayload)},
	}}
	d, _ := newTestDriver(t, notifier, queue)

	d.Cycle(context.Background())

	if !strings.Contains(d.StatusText(), "failed 1") {
		t.Errorf("status = %q", d.StatusText())
	}
}
