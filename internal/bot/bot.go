package bot

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/marksheet/internal/app"
)

type Bot struct {
	service *app.Service
	api     *tgbotapi.BotAPI
	admins  map[int64]bool
}

func New(service *app.Service) (*Bot, error) {
	cfg := service.Config.Bot
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is not set, use [bot] token or %s", app.EnvBotToken)
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	return &Bot{
		service: service,
		api:     api,
		admins:  adminSet(cfg.AdminIDs),
	}, nil
}

func adminSet(ids []int64) map[int64]bool {
	admins := make(map[int64]bool, len(ids))
	for _, id := range ids {
		admins[id] = true
	}
	return admins
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}

			go b.handleMessage(update.Message)

		case <-sigChan:
			logger.Info.Println("Shutting down bot...")
			b.api.StopReceivingUpdates()
			return nil
		}
	}
}

func (b *Bot) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}
