package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"trading-alerts/internal/model"
)

// ErrTelegramNotConfigured is returned when no bot token is set.
var ErrTelegramNotConfigured = errors.New("telegram: bot token not set")

// TelegramSender sends MarkdownV2 messages through the Bot API. Bots are
// created lazily per token and reused.
type TelegramSender struct {
	limiter *rate.Limiter
	opts    []bot.Option

	mu   sync.Mutex
	bots map[string]*bot.Bot
}

// NewTelegramSender creates a sender limited to perSecond messages.
func NewTelegramSender(perSecond int, opts ...bot.Option) *TelegramSender {
	if perSecond <= 0 {
		perSecond = 20
	}
	return &TelegramSender{
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		opts:    append([]bot.Option{bot.WithSkipGetMe()}, opts...),
		bots:    make(map[string]*bot.Bot),
	}
}

func (t *TelegramSender) bot(token string) (*bot.Bot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.bots[token]; ok {
		return b, nil
	}
	b, err := bot.New(token, t.opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	t.bots[token] = b
	return b, nil
}

// Send delivers ev to chatID.
func (t *TelegramSender) Send(ctx context.Context, token, chatID string, ev model.TriggerEvent) error {
	if token == "" {
		return ErrTelegramNotConfigured
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: rate limit: %w", err)
	}
	b, err := t.bot(token)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🚨 *%s*\n\n%s", escapeMarkdown(Title(ev)), escapeMarkdown(Message(ev)))
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("telegram: send to %s: %w", chatID, err)
	}
	return nil
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
