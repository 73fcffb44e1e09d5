package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"perp-signal-engine/internal/domain"
)

// TelegramNotifier delivers signal events to a Telegram chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier creates a notifier for one chat.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// Compile-time interface check.
var _ Notifier = (*TelegramNotifier)(nil)

// Send delivers the event as a Markdown message.
func (n *TelegramNotifier) Send(_ context.Context, event domain.NotificationEvent) error {
	msg := tgbotapi.NewMessage(n.chatID, FormatEvent(event))
	msg.ParseMode = "Markdown"

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatEvent renders one lifecycle event as a Markdown message body.
func FormatEvent(event domain.NotificationEvent) string {
	var b strings.Builder

	switch event.Type {
	case domain.NotifySignalCreated:
		fmt.Fprintf(&b, "🆕 *New signal* %s %s\n", event.Instrument, event.Direction)
		fmt.Fprintf(&b, "Entry: %.4f\n", event.ReferencePrice)
		if event.StopLossPrice > 0 {
			fmt.Fprintf(&b, "Stop: %.4f\n", event.StopLossPrice)
		}
		for i, tp := range event.TargetPrices {
			fmt.Fprintf(&b, "TP%d: %.4f\n", i+1, tp)
		}
		fmt.Fprintf(&b, "Wallets: %d", event.ParticipantCount)

	case domain.NotifyTargetHit:
		fmt.Fprintf(&b, "🎯 *TP%d hit* %s %s\n", event.TargetIndex+1, event.Instrument, event.Direction)
		fmt.Fprintf(&b, "Price: %.4f (entry %.4f)", event.Price, event.ReferencePrice)

	case domain.NotifyTPHit:
		fmt.Fprintf(&b, "✅ *All targets hit* %s %s\n", event.Instrument, event.Direction)
		fmt.Fprintf(&b, "Price: %.4f (entry %.4f)\n", event.Price, event.ReferencePrice)
		fmt.Fprintf(&b, "PnL: %+.2f", event.PnL)

	case domain.NotifySLHit:
		fmt.Fprintf(&b, "🛑 *Stop loss hit* %s %s\n", event.Instrument, event.Direction)
		fmt.Fprintf(&b, "Price: %.4f (entry %.4f)\n", event.Price, event.ReferencePrice)
		fmt.Fprintf(&b, "PnL: %+.2f", event.PnL)

	case domain.NotifyClosedManual:
		fmt.Fprintf(&b, "✋ *Closed manually* %s %s\n", event.Instrument, event.Direction)
		fmt.Fprintf(&b, "PnL: %+.2f", event.PnL)

	default:
		fmt.Fprintf(&b, "%s %s %s signal=%s price=%.4f",
			event.Type, event.Instrument, event.Direction, event.SignalID, event.Price)
	}

	return b.String()
}
