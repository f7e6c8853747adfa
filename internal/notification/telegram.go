package notification

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramAlerter пишет в служебный чат о неотправленных письмах
type TelegramAlerter struct {
	sender messageSender
	chatID int64
}

func NewTelegramAlerter(b *bot.Bot, chatID int64) *TelegramAlerter {
	return &TelegramAlerter{sender: b, chatID: chatID}
}

func (a *TelegramAlerter) Alert(ctx context.Context, text string) error {
	_, err := a.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: a.chatID,
		Text:   "⚠️ " + text,
	})
	if err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}
