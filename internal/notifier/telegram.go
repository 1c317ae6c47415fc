package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// chatRecipient accepts numeric chat ids as well as @channel names.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// TelegramNotifier sends messages via the Telegram Bot API in MarkdownV2.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIURL   string
	Client   *http.Client
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, apiURL, proxyURL string) (*TelegramNotifier, error) {
	transport, err := proxyTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	if apiURL == "" {
		apiURL = tele.DefaultApiURL
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIURL:   strings.TrimRight(apiURL, "/"),
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Send posts "*title*\n\nbody" to the configured chat. body must already be
// MarkdownV2-safe.
func (t *TelegramNotifier) Send(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := tele.NewBot(tele.Settings{
		URL:     t.APIURL,
		Token:   t.BotToken,
		Client:  t.Client,
		Offline: true,
	})
	if err != nil {
		return fmt.Errorf("init telegram bot: %w", err)
	}
	text := fmt.Sprintf("*%s*\n\n%s", title, body)
	if _, err := bot.Send(chatRecipient(t.ChatID), text, &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
