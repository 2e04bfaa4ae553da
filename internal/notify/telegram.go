package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"github.com/covwatch/covwatch/internal/alert"
)

// telegramRatePerSecond caps outgoing messages; Telegram throttles bots hard.
const telegramRatePerSecond = 1

type Telegram struct {
	bot     *bot.Bot
	chatID  int64
	limiter *rate.Limiter
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("missing bot token")
	}
	if chatID == 0 {
		return nil, errors.New("missing chat_id")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{
		bot:     b,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(telegramRatePerSecond), telegramRatePerSecond),
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, ev alert.Event) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   subject(ev) + "\n\n" + body(ev),
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
