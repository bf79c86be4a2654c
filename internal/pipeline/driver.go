// Package pipeline runs the capture -> dedup -> normalize -> validate ->
// route -> deliver cycle for every watched (source, profile) pair, gated by
// the control state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arbrelay/internal/alert"
	"arbrelay/internal/capture"
	"arbrelay/internal/control"
	"arbrelay/internal/routing"
	"arbrelay/internal/snapshot"
	"arbrelay/internal/telegram"
)

const cleanupInterval = time.Hour

// Notifier delivers one formatted alert; telegram.Sender satisfies it.
type Notifier interface {
	Send(ctx context.Context, text, channelID string) bool
}

// Watch binds one captured traffic stream to its (source, profile) identity.
// Drain hands over everything buffered since the last cycle; Page, when set,
// reports the current page location and title for snapshot metadata.
type Watch struct {
	Source  string
	Profile string
	Drain   func() []capture.Record
	Page    func() (url, title string)
}

// Stats are the driver's lifetime counters, safe to read concurrently.
type Stats struct {
	mu                 sync.Mutex
	payloads           int
	duplicates         int
	alertsSent         int
	alertsFailed       int
	validationFailed   int
	droppedWhilePaused int
}

func (s *Stats) snapshot() (payloads, duplicates, sent, failed, invalid, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads, s.duplicates, s.alertsSent, s.alertsFailed, s.validationFailed, s.droppedWhilePaused
}

// Driver owns one end-to-end processing cycle. All collaborators are
// injected; the driver holds no Telegram or browser specifics itself.
type Driver struct {
	controller *control.Controller
	store      *snapshot.Store
	normalizer *alert.Normalizer
	router     *routing.Router
	notifier   Notifier
	watches    []Watch

	retentionHours int
	lastCleanup    time.Time

	stats Stats
}

// Options configures a Driver.
type Options struct {
	Controller     *control.Controller
	Store          *snapshot.Store
	Normalizer     *alert.Normalizer
	Router         *routing.Router
	Notifier       Notifier
	Watches        []Watch
	RetentionHours int
}

func NewDriver(opts Options) *Driver {
	return &Driver{
		controller:     opts.Controller,
		store:          opts.Store,
		normalizer:     opts.Normalizer,
		router:         opts.Router,
		notifier:       opts.Notifier,
		watches:        opts.Watches,
		retentionHours: opts.RetentionHours,
		lastCleanup:    time.Now(),
	}
}

// Run executes cycles every interval until ctx is cancelled.
func (d *Driver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Pipeline driver started",
		"watches", len(d.watches), "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Pipeline driver stopped")
			return
		case <-ticker.C:
			d.Cycle(ctx)
		}
	}
}

// Cycle processes one pass over all watches. While paused or in
// configuration mode the buffered records are drained and discarded so
// nothing stale is replayed on resume.
func (d *Driver) Cycle(ctx context.Context) {
	st := d.controller.Snapshot()
	if st.State != control.Running {
		dropped := 0
		for _, w := range d.watches {
			dropped += len(w.Drain())
		}
		if dropped > 0 {
			d.stats.mu.Lock()
			d.stats.droppedWhilePaused += dropped
			d.stats.mu.Unlock()
			slog.Debug("Discarded records while suspended",
				"state", st.State, "records", dropped)
		}
		d.maybeCleanup()
		return
	}

	for _, w := range d.watches {
		d.processWatch(ctx, w)
	}
	d.maybeCleanup()
}

// processWatch never lets one watch's failure interrupt the others.
func (d *Driver) processWatch(ctx context.Context, w Watch) {
	records := w.Drain()
	if len(records) == 0 {
		return
	}

	for _, rec := range records {
		payload := rec.Payload()
		if len(payload) == 0 {
			continue
		}
		d.stats.mu.Lock()
		d.stats.payloads++
		d.stats.mu.Unlock()

		content := string(payload)
		hash := snapshot.Hash(content)
		if !d.store.Changed(w.Source, w.Profile, hash) {
			d.stats.mu.Lock()
			d.stats.duplicates++
			d.stats.mu.Unlock()
			slog.Debug("Skipping unchanged payload",
				"source", w.Source, "profile", w.Profile)
			continue
		}

		url, title := rec.URL, ""
		if w.Page != nil {
			if u, t := w.Page(); u != "" {
				url, title = u, t
			}
		}
		if _, err := d.store.Write(content, w.Source, w.Profile, url, title); err != nil {
			// Persistence is best-effort; the alert still goes out.
			slog.Error("Failed to persist snapshot",
				"source", w.Source, "profile", w.Profile, "error", err)
		}

		d.deliver(ctx, w, payload)
	}
}

func (d *Driver) deliver(ctx context.Context, w Watch, payload []byte) {
	alerts := d.normalizer.Normalize(payload, w.Source, w.Profile)
	for i := range alerts {
		a := &alerts[i]

		// Profile fallback labels fill gaps before validation judges them.
		alert.ApplyDefaults(a, d.router.Defaults(a.Source, a.Profile))

		required := d.router.RequiredFields(a.Source, a.Profile)
		if ok, missing := alert.Validate(a, required); !ok {
			d.stats.mu.Lock()
			d.stats.validationFailed++
			d.stats.mu.Unlock()
			slog.Warn("Alert rejected by validation",
				"source", a.Source, "profile", a.Profile,
				"match", a.Match, "missing", missing)
			continue
		}

		channels := d.router.Resolve(a)
		if len(channels) == 0 {
			slog.Warn("Alert has no destination",
				"source", a.Source, "profile", a.Profile, "match", a.Match)
			continue
		}

		text := telegram.FormatAlert(a)
		for _, ch := range channels {
			if d.notifier.Send(ctx, text, ch) {
				d.stats.mu.Lock()
				d.stats.alertsSent++
				d.stats.mu.Unlock()
			} else {
				d.stats.mu.Lock()
				d.stats.alertsFailed++
				d.stats.mu.Unlock()
			}
		}
	}
}

func (d *Driver) maybeCleanup() {
	if d.retentionHours <= 0 || time.Since(d.lastCleanup) < cleanupInterval {
		return
	}
	d.lastCleanup = time.Now()
	d.store.Cleanup(d.retentionHours)
}

// StatusText summarizes lifetime counters for the /status command.
func (d *Driver) StatusText() string {
	payloads, dups, sent, failed, invalid, dropped := d.stats.snapshot()
	return fmt.Sprintf(
		"Watches: %d\nPayloads: %d (duplicates %d)\nAlerts sent: %d (failed %d, invalid %d)\nDropped while suspended: %d",
		len(d.watches), payloads, dups, sent, failed, invalid, dropped)
}
