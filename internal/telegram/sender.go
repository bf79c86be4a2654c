// Package telegram delivers formatted alert text to destination channels
// with pacing, rate-limit backoff, transient-error retry and oversized
// message chunking.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// Telegram hard limit is 4096; keep headroom for the part marker.
	defaultChunkLimit = 4000
	defaultAttempts   = 3
	transientBackoff  = 2 * time.Second
)

// BotAPI is the slice of tgbotapi the sender needs; *tgbotapi.BotAPI
// satisfies it.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender transmits text to channels, enforcing a minimum inter-send
// interval across all destinations. Safe for use from multiple goroutines;
// pacing is serialized on an internal mutex.
type Sender struct {
	api         BotAPI
	minInterval time.Duration
	maxAttempts int
	chunkLimit  int

	mu       sync.Mutex
	lastSend time.Time
}

// NewSender wraps api with the pacing/backoff contract. minInterval <= 0
// disables pacing.
func NewSender(api BotAPI, minInterval time.Duration) *Sender {
	return &Sender{
		api:         api,
		minInterval: minInterval,
		maxAttempts: defaultAttempts,
		chunkLimit:  defaultChunkLimit,
	}
}

// Send delivers text to channelID. It never panics and never returns an
// error: all failure paths log their reason and yield false. Messages over
// the size budget are split into sequential [part i/n] chunks; a failed
// chunk aborts the remainder.
func (s *Sender) Send(ctx context.Context, text, channelID string) bool {
	if text == "" || channelID == "" {
		return false
	}

	if len(text) > s.chunkLimit {
		return s.sendChunked(ctx, text, channelID)
	}
	return s.sendOne(ctx, text, channelID)
}

func (s *Sender) sendChunked(ctx context.Context, text, channelID string) bool {
	parts := SplitMessage(text, s.chunkLimit)
	for i, part := range parts {
		msg := fmt.Sprintf("[part %d/%d]\n%s", i+1, len(parts), part)
		if !s.sendOne(ctx, msg, channelID) {
			slog.Warn("Aborting remaining message parts",
				"channel", channelID, "failed_part", i+1, "total_parts", len(parts))
			return false
		}
	}
	return true
}

func (s *Sender) sendOne(ctx context.Context, text, channelID string) bool {
	msg, err := buildMessage(text, channelID)
	if err != nil {
		slog.Error("Invalid channel id", "channel", channelID, "error", err)
		return false
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if !s.pace(ctx) {
			return false
		}

		_, err := s.api.Send(msg)
		if err == nil {
			return true
		}

		var tgErr *tgbotapi.Error
		switch {
		case errors.As(err, &tgErr) && tgErr.RetryAfter > 0:
			// Rate limited: honor the server-provided delay plus a second.
			wait := time.Duration(tgErr.RetryAfter+1) * time.Second
			slog.Warn("Telegram rate limited",
				"channel", channelID, "retry_after", tgErr.RetryAfter, "attempt", attempt)
			if !sleepCtx(ctx, wait) {
				return false
			}
		case errors.As(err, &tgErr) && tgErr.Code >= 500:
			slog.Warn("Telegram transient error",
				"channel", channelID, "code", tgErr.Code, "attempt", attempt)
			if !sleepCtx(ctx, transientBackoff) {
				return false
			}
		default:
			slog.Error("Telegram send failed", "channel", channelID, "error", err)
			return false
		}
	}

	slog.Error("Telegram send gave up", "channel", channelID, "attempts", s.maxAttempts)
	return false
}

// pace sleeps out the remainder of the minimum inter-send interval and
// reserves the send slot. Returns false when ctx is cancelled while waiting.
func (s *Sender) pace(ctx context.Context) bool {
	if s.minInterval <= 0 {
		return true
	}
	for {
		s.mu.Lock()
		elapsed := time.Since(s.lastSend)
		if elapsed >= s.minInterval {
			s.lastSend = time.Now()
			s.mu.Unlock()
			return true
		}
		wait := s.minInterval - elapsed
		s.mu.Unlock()
		if !sleepCtx(ctx, wait) {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// buildMessage accepts numeric chat IDs ("-1001234567890") and channel
// usernames ("@channel").
func buildMessage(text, channelID string) (tgbotapi.Chattable, error) {
	if strings.HasPrefix(channelID, "@") {
		msg := tgbotapi.NewMessageToChannel(channelID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		return msg, nil
	}
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse channel id %q: %w", channelID, err)
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg, nil
}

// SplitMessage splits text into parts of at most limit bytes each,
// preferring line boundaries. Line separators stay attached to their line,
// so concatenating the parts reproduces the input exactly.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var parts []string
	var cur strings.Builder
	for _, line := range splitAfterLines(text) {
		// A single line over the budget is hard-split.
		for len(line) > limit {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			parts = append(parts, line[:limit])
			line = line[limit:]
		}
		if cur.Len()+len(line) > limit {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func splitAfterLines(text string) []string {
	var out []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			if text != "" {
				out = append(out, text)
			}
			return out
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
}
