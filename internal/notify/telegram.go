package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botAPI is the slice of tgbotapi.BotAPI used here.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender posts staff alerts to a chat.
type TelegramSender struct {
	bot botAPI
}

// NewTelegramSender authenticates the bot token with the Bot API.
func NewTelegramSender(token string) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramSender{bot: api}, nil
}

func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(msg.Recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid chat id %q", ErrPermanent, msg.Recipient)
	}
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}
	out := tgbotapi.NewMessage(chatID, text)
	out.DisableWebPagePreview = true
	_, err = t.bot.Send(out)
	return err
}
