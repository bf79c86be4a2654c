// Command relay monitors arbitrage source pages in a headless browser,
// intercepts their network traffic and relays normalized alerts to Telegram
// channels.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"arbrelay/internal/alert"
	"arbrelay/internal/browser"
	"arbrelay/internal/capture"
	"arbrelay/internal/control"
	"arbrelay/internal/pipeline"
	"arbrelay/internal/pkg/config"
	"arbrelay/internal/pkg/logging"
	"arbrelay/internal/proxy"
	"arbrelay/internal/routing"
	"arbrelay/internal/snapshot"
	"arbrelay/internal/telegram"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	headless := flag.Bool("headless", true, "run the browser headless")
	flag.Parse()

	_ = godotenv.Load()
	settings := config.LoadSettings()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// YAML wins over env for logging; env fills the gaps.
	logger := logging.Setup(logging.Options{
		Level:  firstNonEmpty(cfg.Logging.Level, settings.LogLevel),
		Format: firstNonEmpty(cfg.Logging.Format, settings.LogFormat),
	}, "relay")
	logger.Info("Starting alert relay", "config", *configPath)

	if cfg.Telegram.ErrorChannelID == "" {
		cfg.Telegram.ErrorChannelID = settings.SupportChannelID
	}
	cfg.Telegram.AllowedUserIDs = append(cfg.Telegram.AllowedUserIDs, settings.AllowedUserIDs...)

	if settings.BotToken == "" {
		logger.Error("TELEGRAM_BOT_TOKEN is not set")
		os.Exit(1)
	}
	bot, err := tgbotapi.NewBotAPI(settings.BotToken)
	if err != nil {
		logger.Error("Failed to initialize Telegram bot", "error", err)
		os.Exit(1)
	}
	sender := telegram.NewSender(bot, settings.SendMinInterval)

	pool := proxy.NewPool(proxy.Options{
		Inline:       settings.ProxyPool,
		FilePath:     settings.ProxyPoolFile,
		AllowSchemes: settings.ProxySchemes,
	})

	store, err := snapshot.NewStore(settings.SnapshotDir)
	if err != nil {
		logger.Error("Failed to open snapshot store", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := browser.Launch(ctx, pool, browser.Options{
		Headless: settings.Headless && *headless,
	})
	if err != nil {
		logger.Error("Failed to launch browser", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	watches, engines, err := openWatches(cfg, settings, session, pool)
	if err != nil {
		logger.Error("Failed to open watches", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, e := range engines {
			e.Stop()
		}
	}()
	if len(watches) == 0 {
		logger.Error("No source page could be opened, nothing to monitor")
		os.Exit(1)
	}

	controller := control.NewController()
	router := routing.NewRouter(cfg)
	normalizer := alert.NewNormalizer(extractors(cfg))

	driver := pipeline.NewDriver(pipeline.Options{
		Controller:     controller,
		Store:          store,
		Normalizer:     normalizer,
		Router:         router,
		Notifier:       sender,
		Watches:        watches,
		RetentionHours: settings.SnapshotRetentionHours,
	})

	listener := control.NewListener(bot, controller, sender, control.ListenerOptions{
		ControlChatID:  cfg.Telegram.ControlChannelID,
		AllowedUserIDs: cfg.Telegram.AllowedUserIDs,
		PollTimeoutSec: settings.PollTimeoutSec,
		StatusExtra:    driver.StatusText,
		ErrorChannel:   cfg.ErrorChannel(),
		Reload: func() error {
			newCfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			router.Reload(newCfg)
			return nil
		},
	})
	go listener.Run(ctx)

	if errCh := cfg.ErrorChannel(); errCh != "" {
		sender.Send(ctx, fmt.Sprintf("🟢 Relay started, monitoring %d watch(es)", len(watches)), errCh)
	}

	driver.Run(ctx, settings.ScrapeInterval)

	if errCh := cfg.ErrorChannel(); errCh != "" {
		sendCtx, cancel := context.WithTimeout(context.Background(), settings.SendMinInterval*3)
		sender.Send(sendCtx, "🔴 Relay shutting down", errCh)
		cancel()
	}
	logger.Info("Relay stopped")
}

// openWatches opens one monitored tab with an attached capture engine per
// (source, profile) pair from the configuration. Pairs whose tab cannot be
// opened are skipped.
func openWatches(cfg *config.Config, settings config.Settings, session *browser.Session, pool *proxy.Pool) ([]pipeline.Watch, []*capture.Engine, error) {
	var watches []pipeline.Watch
	var engines []*capture.Engine

	for name, src := range cfg.Sources {
		profiles := src.Profiles
		if len(profiles) == 0 {
			profiles = []string{"default"}
		}
		for _, profile := range profiles {
			var tabs []*browser.Tab
			if pool.Len() > 0 {
				tabs = session.OpenTabsWithRotation(src.URL, 1, 0)
			} else {
				tabs = session.OpenTabs(src.URL, 1)
			}
			if len(tabs) == 0 {
				slog.Warn("Could not open source page", "source", name, "profile", profile, "url", src.URL)
				continue
			}
			tab := tabs[0]

			engine, err := capture.NewEngine(capture.FilterConfig{
				Patterns:        src.Include,
				Exclude:         src.Exclude,
				SampleRate:      settings.CaptureSampleRate,
				MaxBuffer:       settings.CaptureBufferSize,
				Overflow:        capture.OverflowPolicy(settings.CaptureOverflow),
				MaxPayloadBytes: settings.CaptureMaxBodyBytes,
				Sink:            sinkConfig(settings, name, profile),
			})
			if err != nil {
				return nil, nil, fmt.Errorf("capture engine for %s/%s: %w", name, profile, err)
			}
			if err := engine.Attach(tab.Ctx); err != nil {
				engine.Stop()
				return nil, nil, fmt.Errorf("attach capture for %s/%s: %w", name, profile, err)
			}
			engines = append(engines, engine)

			tabRef := tab
			watches = append(watches, pipeline.Watch{
				Source:  name,
				Profile: profile,
				Drain:   engine.Drain,
				Page: func() (string, string) {
					_, url, title, err := session.PageContent(tabRef)
					if err != nil {
						return "", ""
					}
					return url, title
				},
			})
			slog.Info("Watch opened", "source", name, "profile", profile, "proxy", proxy.Mask(tab.Proxy))
		}
	}
	return watches, engines, nil
}

func sinkConfig(settings config.Settings, source, profile string) *capture.SinkConfig {
	if settings.CaptureSinkPath == "" {
		return nil
	}
	ext := ".jsonl"
	if settings.CaptureSinkCompress {
		ext = ".jsonl.zst"
	}
	return &capture.SinkConfig{
		Path:       filepath.Join(settings.CaptureSinkPath, fmt.Sprintf("%s-%s%s", source, profile, ext)),
		FlushEvery: settings.CaptureSinkFlush,
		Compress:   settings.CaptureSinkCompress,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// extractors picks a payload extractor per configured source. Surebet-style
// sources emit single-sided value bets; everything else is treated as a
// two-sided arbitrage feed.
func extractors(cfg *config.Config) map[string]alert.Extractor {
	out := make(map[string]alert.Extractor, len(cfg.Sources))
	for name := range cfg.Sources {
		if strings.Contains(strings.ToLower(name), "surebet") {
			out[name] = alert.NewSurebetExtractor()
		} else {
			out[name] = alert.NewBetburgerExtractor()
		}
	}
	return out
}
