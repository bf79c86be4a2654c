package control

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pollErrorSleep = 2 * time.Second

// UpdateSource is the slice of tgbotapi the listener needs; *tgbotapi.BotAPI
// satisfies it.
type UpdateSource interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// Replier sends acknowledgement text back to the control chat.
type Replier interface {
	Send(ctx context.Context, text, channelID string) bool
}

// StatusFunc supplies extra lines for the /status reply (watch counts,
// delivery stats) without coupling the listener to the pipeline.
type StatusFunc func() string

// Listener long-polls Telegram for operator commands addressed to the
// control chat and drives the Controller. Commands from other chats or
// unknown users are ignored.
type Listener struct {
	api          UpdateSource
	controller   *Controller
	replier      Replier
	controlChat  int64
	allowedUsers map[int64]bool
	pollTimeout  int
	statusExtra  StatusFunc
	errorChannel string
	reload       func() error

	offset int
}

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	ControlChatID  int64
	AllowedUserIDs []int64
	PollTimeoutSec int
	StatusExtra    StatusFunc

	// ErrorChannel, when set, receives a notice for every rejected command
	// so the operator can spot misconfigured chats.
	ErrorChannel string

	// Reload, when set, re-reads the routing configuration after
	// /finish-config so edits made during configuration mode take effect
	// without a restart.
	Reload func() error
}

func NewListener(api UpdateSource, controller *Controller, replier Replier, opts ListenerOptions) *Listener {
	allowed := make(map[int64]bool, len(opts.AllowedUserIDs))
	for _, id := range opts.AllowedUserIDs {
		allowed[id] = true
	}
	timeout := opts.PollTimeoutSec
	if timeout <= 0 {
		timeout = 25
	}
	return &Listener{
		api:          api,
		controller:   controller,
		replier:      replier,
		controlChat:  opts.ControlChatID,
		allowedUsers: allowed,
		pollTimeout:  timeout,
		statusExtra:  opts.StatusExtra,
		errorChannel: opts.ErrorChannel,
		reload:       opts.Reload,
	}
}

// Run polls for updates until ctx is cancelled. Poll failures are logged
// and retried after a short sleep; the update cursor only moves forward.
func (l *Listener) Run(ctx context.Context) {
	slog.Info("Control listener started", "control_chat", l.controlChat)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Control listener stopped")
			return
		default:
		}

		updates, err := l.poll()
		if err != nil {
			slog.Error("Failed to fetch control updates", "error", err)
			sleepListener(ctx, pollErrorSleep)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= l.offset {
				l.offset = u.UpdateID
			}
			l.handle(ctx, u)
		}
	}
}

func (l *Listener) poll() ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(l.nextOffset())
	cfg.Timeout = l.pollTimeout
	cfg.AllowedUpdates = []string{"message", "channel_post"}
	return l.api.GetUpdates(cfg)
}

// nextOffset requests updates strictly after the highest one seen, which
// also acknowledges the processed batch to Telegram.
func (l *Listener) nextOffset() int {
	if l.offset == 0 {
		return 0
	}
	return l.offset + 1
}

func (l *Listener) handle(ctx context.Context, u tgbotapi.Update) {
	msg := u.Message
	if msg == nil {
		msg = u.ChannelPost
	}
	if msg == nil || !strings.HasPrefix(msg.Text, "/") {
		return
	}
	if !l.authorized(msg) {
		slog.Warn("Ignoring command from unauthorized chat",
			"chat", msg.Chat.ID, "text", msg.Text)
		if l.errorChannel != "" && l.replier != nil {
			l.replier.Send(ctx, fmt.Sprintf("⚠️ Ignored control command from unauthorized chat %d", msg.Chat.ID), l.errorChannel)
		}
		return
	}

	cmd, rest, _ := strings.Cut(strings.TrimSpace(msg.Text), " ")
	cmd = strings.ToLower(cmd)
	// Strip a "@botname" suffix from group commands.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/pause":
		reason := strings.TrimSpace(rest)
		if reason == "" {
			reason = "operator request"
		}
		if l.controller.Pause(reason) {
			l.reply(ctx, msg, fmt.Sprintf("⏸️ Paused: %s", reason))
		} else {
			l.reply(ctx, msg, "Cannot pause: pipeline is not running")
		}
	case "/start", "/resume":
		if l.controller.Resume() {
			l.reply(ctx, msg, "▶️ Resumed")
		} else {
			l.reply(ctx, msg, "Cannot resume: pipeline is not paused")
		}
	case "/start-config", "/start_config":
		if l.controller.EnterConfig() {
			l.reply(ctx, msg, "🔧 Configuration mode: alerts suspended, adjust source filters now")
		} else {
			l.reply(ctx, msg, "Cannot enter configuration mode: pipeline is not running")
		}
	case "/finish-config", "/finish_config":
		if !l.controller.ExitConfig() {
			l.reply(ctx, msg, "Not in configuration mode")
			return
		}
		if l.reload != nil {
			if err := l.reload(); err != nil {
				slog.Error("Configuration reload failed", "error", err)
				l.reply(ctx, msg, fmt.Sprintf("⚠️ Pipeline running, but configuration reload failed: %v", err))
				return
			}
		}
		l.reply(ctx, msg, "✅ Configuration reloaded, pipeline running")
	case "/status":
		l.reply(ctx, msg, l.statusText())
	default:
		slog.Debug("Unknown control command", "text", msg.Text)
	}
}

// authorized accepts messages posted in the control chat or sent by an
// allow-listed user from any chat.
func (l *Listener) authorized(msg *tgbotapi.Message) bool {
	if l.controlChat != 0 && msg.Chat != nil && msg.Chat.ID == l.controlChat {
		return true
	}
	if msg.From != nil && l.allowedUsers[msg.From.ID] {
		return true
	}
	return false
}

func (l *Listener) statusText() string {
	st := l.controller.Snapshot()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("State: %s", st.State))
	if st.Reason != "" {
		b.WriteString(fmt.Sprintf(" (%s)", st.Reason))
	}
	if l.statusExtra != nil {
		if extra := l.statusExtra(); extra != "" {
			b.WriteString("\n")
			b.WriteString(extra)
		}
	}
	return b.String()
}

func (l *Listener) reply(ctx context.Context, msg *tgbotapi.Message, text string) {
	if l.replier == nil || msg.Chat == nil {
		return
	}
	l.replier.Send(ctx, text, fmt.Sprintf("%d", msg.Chat.ID))
}

func sleepListener(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
