package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// OverflowPolicy decides what happens when the buffer is full.
type OverflowPolicy string

const (
	DropOldest OverflowPolicy = "drop-oldest"
	DropNew    OverflowPolicy = "drop-new"
)

// FilterConfig is the immutable capture configuration. Patterns is the
// primary set a URL must match; Include (when non-empty) must match at least
// one and Exclude must match none.
type FilterConfig struct {
	Patterns []string
	Include  []string
	Exclude  []string

	SampleRate      float64 // 0.0–1.0; 1.0 captures everything
	MaxBuffer       int
	Overflow        OverflowPolicy
	MaxPayloadBytes int

	Sink *SinkConfig // nil disables persistence
}

// Engine filters, samples and buffers network events for one tab. Event
// callbacks fire from chromedp's dispatch goroutine; the buffer is the
// boundary between that async producer and the synchronous Drain caller.
type Engine struct {
	patterns []*regexp.Regexp
	include  []*regexp.Regexp
	exclude  []*regexp.Regexp
	cfg      FilterConfig

	mu       sync.Mutex
	buffer   []Record
	rng      *rand.Rand
	disabled bool

	sink *sink

	closeOnce sync.Once
}

// NewEngine compiles the filter configuration. Invalid patterns or an
// unusable sink fail construction; an engine is never half-built.
func NewEngine(cfg FilterConfig) (*Engine, error) {
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = 512
	}
	if cfg.Overflow == "" {
		cfg.Overflow = DropOldest
	}
	if cfg.Overflow != DropOldest && cfg.Overflow != DropNew {
		return nil, fmt.Errorf("unknown overflow policy %q", cfg.Overflow)
	}
	if cfg.SampleRate <= 0 || cfg.SampleRate > 1 {
		cfg.SampleRate = 1.0
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = 64 * 1024
	}

	e := &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	var err error
	if e.patterns, err = compileAll(cfg.Patterns); err != nil {
		return nil, fmt.Errorf("primary patterns: %w", err)
	}
	if e.include, err = compileAll(cfg.Include); err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	if e.exclude, err = compileAll(cfg.Exclude); err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	if cfg.Sink != nil {
		if e.sink, err = newSink(*cfg.Sink); err != nil {
			return nil, fmt.Errorf("open capture sink: %w", err)
		}
	}
	return e, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Attach subscribes the engine to the tab's request, response and WebSocket
// events and enables the CDP network domain. Callbacks only do a bounded
// non-blocking append; response bodies are fetched off the dispatch
// goroutine.
func (e *Engine) Attach(tabCtx context.Context) error {
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		return fmt.Errorf("enable network events: %w", err)
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			e.onRequest(ev)
		case *network.EventResponseReceived:
			e.onResponse(tabCtx, ev)
		case *network.EventWebSocketCreated:
			e.onSocketOpen(ev)
		case *network.EventWebSocketFrameReceived:
			e.onSocketFrame(ev)
		}
	})
	return nil
}

func (e *Engine) onRequest(ev *network.EventRequestWillBeSent) {
	if !e.Match(ev.Request.URL) || !e.sampled() {
		return
	}
	e.Append(Record{
		ID:        uuid.NewString(),
		Kind:      KindRequest,
		URL:       ev.Request.URL,
		Method:    ev.Request.Method,
		Timestamp: time.Now().UTC(),
	})
}

func (e *Engine) onResponse(tabCtx context.Context, ev *network.EventResponseReceived) {
	if !e.Match(ev.Response.URL) || !e.sampled() {
		return
	}
	url := ev.Response.URL
	status := ev.Response.Status
	requestID := ev.RequestID

	// GetResponseBody must not run on the event dispatch goroutine.
	go func() {
		rec := Record{
			ID:        uuid.NewString(),
			Kind:      KindResponse,
			URL:       url,
			Status:    status,
			Timestamp: time.Now().UTC(),
		}
		if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
			body, err := network.GetResponseBody(requestID).Do(cdp.WithExecutor(tabCtx, c.Target))
			if err != nil {
				slog.Debug("Response body unavailable", "url", url, "error", err)
			} else {
				e.setPayload(&rec, body)
			}
		}
		e.Append(rec)
	}()
}

func (e *Engine) onSocketOpen(ev *network.EventWebSocketCreated) {
	if !e.Match(ev.URL) || !e.sampled() {
		return
	}
	e.Append(Record{
		ID:        uuid.NewString(),
		Kind:      KindSocketOpen,
		URL:       ev.URL,
		Timestamp: time.Now().UTC(),
	})
}

func (e *Engine) onSocketFrame(ev *network.EventWebSocketFrameReceived) {
	if ev.Response == nil || !e.sampled() {
		return
	}
	rec := Record{
		ID:        uuid.NewString(),
		Kind:      KindSocketFrame,
		Timestamp: time.Now().UTC(),
	}
	e.setPayload(&rec, []byte(ev.Response.PayloadData))
	e.Append(rec)
}

// Match tests a URL against the primary, include and exclude pattern sets.
func (e *Engine) Match(url string) bool {
	for _, re := range e.exclude {
		if re.MatchString(url) {
			return false
		}
	}
	if len(e.include) > 0 && !matchAny(e.include, url) {
		return false
	}
	if len(e.patterns) > 0 && !matchAny(e.patterns, url) {
		return false
	}
	return true
}

func matchAny(res []*regexp.Regexp, url string) bool {
	for _, re := range res {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

func (e *Engine) sampled() bool {
	if e.cfg.SampleRate >= 1.0 {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64() < e.cfg.SampleRate
}

// setPayload stores body on rec, truncating to the configured maximum and
// keeping the structured form only when the full body is valid JSON.
func (e *Engine) setPayload(rec *Record, body []byte) {
	if len(body) == 0 {
		return
	}
	if len(body) > e.cfg.MaxPayloadBytes {
		rec.Text = string(body[:e.cfg.MaxPayloadBytes])
		rec.Truncated = true
		return
	}
	if json.Valid(body) {
		rec.JSON = json.RawMessage(append([]byte(nil), body...))
		return
	}
	rec.Text = string(body)
}

// Append adds rec to the bounded buffer, applying the overflow policy, and
// persists it when a sink is configured. No-op after Stop.
func (e *Engine) Append(rec Record) {
	e.mu.Lock()
	if e.disabled {
		e.mu.Unlock()
		return
	}
	if len(e.buffer) >= e.cfg.MaxBuffer {
		switch e.cfg.Overflow {
		case DropNew:
			e.mu.Unlock()
			return
		default: // DropOldest
			e.buffer = e.buffer[1:]
		}
	}
	e.buffer = append(e.buffer, rec)
	sink := e.sink
	e.mu.Unlock()

	if sink != nil {
		if err := sink.write(rec); err != nil {
			slog.Warn("Capture sink write failed", "error", err)
		}
	}
}

// Drain atomically empties and returns the buffer.
func (e *Engine) Drain() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.buffer
	e.buffer = nil
	return out
}

// Len returns the current buffer size.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

// Stop disables further appends, then closes the persistence sink. Safe to
// call concurrently with in-flight event callbacks and more than once: the
// disable-then-close ordering keeps callbacks from writing to a closed sink.
func (e *Engine) Stop() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.disabled = true
		sink := e.sink
		e.sink = nil
		e.mu.Unlock()

		if sink != nil {
			if err := sink.close(); err != nil {
				slog.Warn("Capture sink close failed", "error", err)
			}
		}
	})
}
