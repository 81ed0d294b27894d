package messenger

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram is the development transport: the same conversation core driven
// through a Telegram bot instead of the WhatsApp webhook. The chat ID plays
// the role of the user identifier.
type Telegram struct {
	api *tgbotapi.BotAPI
}

func NewTelegram(botToken string) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	return &Telegram{api: api}, nil
}

func (t *Telegram) Send(ctx context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", userID, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func (t *Telegram) SetTyping(ctx context.Context, userID string, typing bool) {
	if !typing {
		return
	}
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return
	}
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := t.api.Request(action); err != nil {
		log.Printf("⚠️ failed to send typing action: %v", err)
	}
}

// Listen long-polls for updates and hands every text message to handle,
// blocking until ctx is cancelled. Used when the bot runs in telegram mode.
func (t *Telegram) Listen(ctx context.Context, handle func(userID, text string)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			handle(strconv.FormatInt(update.Message.Chat.ID, 10), update.Message.Text)
		}
	}
}
