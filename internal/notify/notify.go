// Package notify delivers run outcomes to the user. The default sink
// is the process log; a Telegram sink can be enabled for daemons
// running unattended.
package notify

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stellarlinkco/dailylog/internal/config"
)

// Notifier delivers a short user-facing message. Failures are the
// caller's to log; notification is never allowed to fail a run.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, message string) error {
	log.Printf("[notify] %s", message)
	return nil
}

// TelegramBot is the bot API surface the notifier needs (mockable in
// tests).
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotFactory creates TelegramBot instances.
type BotFactory func(token string) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token string) (TelegramBot, error) {
	return tgbotapi.NewBotAPI(token)
}

// TelegramNotifier sends run outcomes to a Telegram chat.
type TelegramNotifier struct {
	bot    TelegramBot
	chatID int64
}

func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	return NewTelegramNotifierWithFactory(cfg, defaultBotFactory)
}

// NewTelegramNotifierWithFactory creates a TelegramNotifier with a
// custom bot factory (for testing).
func NewTelegramNotifierWithFactory(cfg config.TelegramConfig, factory BotFactory) (*TelegramNotifier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	bot, err := factory(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID}, nil
}

func (n *TelegramNotifier) Notify(_ context.Context, message string) error {
	msg := tgbotapi.NewMessage(n.chatID, message)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FromConfig picks the configured notifier, falling back to the log
// sink when Telegram is disabled or misconfigured.
func FromConfig(cfg config.NotifyConfig) Notifier {
	if cfg.Telegram.Enabled {
		n, err := NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			log.Printf("[notify] telegram disabled: %v", err)
			return LogNotifier{}
		}
		return n
	}
	return LogNotifier{}
}
