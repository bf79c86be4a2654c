// Command send-test pushes one test message through the paced sender so a
// new bot token and channel wiring can be verified before going live.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"arbrelay/internal/pkg/config"
	"arbrelay/internal/telegram"
)

func main() {
	channel := flag.String("channel", "", "destination channel (numeric chat id or @username)")
	text := flag.String("text", "✅ Relay test message", "message text")
	flag.Parse()

	_ = godotenv.Load()
	settings := config.LoadSettings()

	if *channel == "" {
		fmt.Fprintln(os.Stderr, "usage: send-test -channel <chat id or @username> [-text ...]")
		os.Exit(2)
	}
	if settings.BotToken == "" {
		fmt.Fprintln(os.Stderr, "TELEGRAM_BOT_TOKEN is not set")
		os.Exit(1)
	}

	bot, err := tgbotapi.NewBotAPI(settings.BotToken)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize bot: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sender := telegram.NewSender(bot, settings.SendMinInterval)
	if !sender.Send(ctx, *text, *channel) {
		fmt.Fprintln(os.Stderr, "send failed")
		os.Exit(1)
	}
	fmt.Printf("sent to %s as @%s\n", *channel, bot.Self.UserName)
}
