package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/config"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/telegram"
)

type alertSender interface {
	SendMessage(ctx context.Context, message string) error
	SendPhoto(ctx context.Context, photo []byte, caption string) error
}

// TelegramNotifier posts an alert per event, with the thumbnail when one was written
type TelegramNotifier struct {
	bot       alertSender
	recordDir string
	log       zerolog.Logger
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegram creates a notifier for the configured chat
func NewTelegram(cfg config.TelegramConfig, recordDir string) (*TelegramNotifier, error) {
	bot, err := telegram.NewBot(telegram.Config{BotToken: cfg.BotToken, ChatID: cfg.ChatID})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return newTelegramNotifier(bot, recordDir), nil
}

func newTelegramNotifier(bot alertSender, recordDir string) *TelegramNotifier {
	return &TelegramNotifier{
		bot:       bot,
		recordDir: recordDir,
		log:       logging.Component("telegram"),
	}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) HandleEvent(v *database.EventView) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := n.Send(ctx, v); err != nil {
		n.log.Error().Err(err).Int64("event_id", v.ID).Msg("failed to send alert")
	}
}

// Send posts the alert. The placeholder thumbnail is never attached.
func (n *TelegramNotifier) Send(ctx context.Context, v *database.EventView) error {
	text := FormatAlert(v)

	photo, err := n.thumbnail(v)
	if err != nil {
		n.log.Debug().Err(err).Int64("event_id", v.ID).Msg("sending alert without thumbnail")
	}
	if photo != nil {
		return n.bot.SendPhoto(ctx, photo, text)
	}
	return n.bot.SendMessage(ctx, text)
}

func (n *TelegramNotifier) thumbnail(v *database.EventView) ([]byte, error) {
	if v.ThumbnailPath == "" || v.ThumbnailPath == database.DefaultThumbnail {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(n.recordDir, filepath.Base(v.ThumbnailPath)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (n *TelegramNotifier) Close() error { return nil }
