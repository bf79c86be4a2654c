package telegram

import (
	"fmt"
	"strings"
	"time"

	"arbrelay/internal/alert"
)

// FormatAlert renders one alert as a Markdown message.
func FormatAlert(a *alert.Alert) string {
	var b strings.Builder

	header := "Value Bet Alert"
	if a.IsArbitrage() {
		header = "Arbitrage Alert"
	}
	b.WriteString(fmt.Sprintf("🚨 *%s* (%s)\n\n", header, strings.ToUpper(a.Source)))

	if a.Match != "" {
		b.WriteString(fmt.Sprintf("*%s*\n", EscapeMarkdown(a.Match)))
	}
	if a.Sport != "" || a.Market != "" {
		b.WriteString(fmt.Sprintf("⚽ %s | %s\n", orDash(a.Sport), orDash(a.Market)))
	}
	if a.League != "" {
		b.WriteString(fmt.Sprintf("🏆 %s\n", EscapeMarkdown(a.League)))
	}
	b.WriteString("\n")

	if a.ProfitPct != nil {
		b.WriteString(fmt.Sprintf("📈 *Profit: %.2f%%*\n", *a.ProfitPct))
	}
	if a.SelectionA != nil {
		b.WriteString(fmt.Sprintf("💰 %s: %.2f", EscapeMarkdown(a.SelectionA.Bookmaker), a.SelectionA.Odd))
		if a.SelectionB != nil {
			b.WriteString(fmt.Sprintf(" | %s: %.2f", EscapeMarkdown(a.SelectionB.Bookmaker), a.SelectionB.Odd))
		}
		b.WriteString("\n")
	}
	if a.EventStart != nil && !a.EventStart.IsZero() {
		b.WriteString(fmt.Sprintf("🕐 Kick-off: %s\n", a.EventStart.UTC().Format("2006-01-02 15:04 UTC")))
	}
	if a.TargetLink != "" {
		b.WriteString(fmt.Sprintf("🔗 %s\n", a.TargetLink))
	}

	b.WriteString(fmt.Sprintf("\n🏷️ Profile: %s", a.Profile))
	if a.FilterID != "" {
		b.WriteString(fmt.Sprintf(" | Filter: %s", a.FilterID))
	}
	b.WriteString(fmt.Sprintf("\n⏱️ Detected: %s\n", a.CapturedAt.UTC().Format(time.RFC3339)))

	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return EscapeMarkdown(s)
}

// EscapeMarkdown escapes the characters Telegram's Markdown parser treats
// specially.
func EscapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(text)
}
