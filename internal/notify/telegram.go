package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// botSender is the part of tgbotapi.BotAPI used for delivery.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts messages to a single chat.
type Telegram struct {
	bot    botSender
	chatID int64
}

// NewTelegram connects to the Bot API with token and posts to chatID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token not set")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id not set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Int64("chat_id", chatID).Msg("telegram notifier initialized")
	return &Telegram{bot: api, chatID: chatID}, nil
}

var _ Notifier = (*Telegram)(nil)

// Send implements Notifier. Messages with an image go out as a photo with
// the text as caption.
func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var c tgbotapi.Chattable
	if msg.ImageURL != "" {
		photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileURL(msg.ImageURL))
		photo.Caption = msg.Text
		c = photo
	} else {
		text := tgbotapi.NewMessage(t.chatID, msg.Text)
		text.DisableWebPagePreview = true
		c = text
	}

	if _, err := t.bot.Send(c); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
