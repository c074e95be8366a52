package notifier

import (
	"context"
	"errors"
	"html"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// TelegramSink sends each reminder as a message to one chat (optionally a
// forum topic).
type TelegramSink struct {
	bot    *tele.Bot
	chat   *tele.Chat
	thread int
}

func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notifier.telegram.token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notifier.telegram.chat_id is required")
	}
	// Offline skips the getMe round trip; the bot is only used to send.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, thread: cfg.ThreadID}, nil
}

func (s *TelegramSink) Deliver(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(s.chat, formatTelegram(title, message), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              s.thread,
	})
	return err
}

func formatTelegram(title, message string) string {
	var b strings.Builder
	b.WriteString("⏰ <b>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</b>")
	if m := strings.TrimSpace(message); m != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(m))
	}
	return b.String()
}
