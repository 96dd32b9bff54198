package bot

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"macro-tracker/internal/gpt"
	"macro-tracker/internal/models"
	"macro-tracker/internal/session"
	"macro-tracker/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// telegramNamespace seeds the stable owner ids of Telegram users.
var telegramNamespace = uuid.MustParse("6f1c7a8e-3b0d-4a53-9a57-2f6f0f2b7c11")

// OwnerID maps a Telegram user onto the owner id used by the store.
func OwnerID(telegramID int64) uuid.UUID {
	return uuid.NewSHA1(telegramNamespace, []byte("telegram:"+strconv.FormatInt(telegramID, 10)))
}

type Estimator interface {
	EstimateMacros(ctx context.Context, description string) (*gpt.Estimate, error)
}

type TelegramBot struct {
	bot       *tgbotapi.BotAPI
	sessions  *session.Manager
	estimator Estimator
	logger    *logger.Logger
	now       func() time.Time

	days       map[int64]models.DayKey
	stateMutex sync.RWMutex
	wg         sync.WaitGroup
}

func NewTelegramBot(token string, sessions *session.Manager, estimator Estimator, logger *logger.Logger) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	logger.Infow("Authorized on Telegram", "username", bot.Self.UserName)

	t := newBot(sessions, estimator, logger)
	t.bot = bot
	return t, nil
}

func newBot(sessions *session.Manager, estimator Estimator, logger *logger.Logger) *TelegramBot {
	return &TelegramBot{
		sessions:  sessions,
		estimator: estimator,
		logger:    logger,
		now:       time.Now,
		days:      make(map[int64]models.DayKey),
	}
}

// Start begins receiving updates from Telegram via polling
func (t *TelegramBot) Start(ctx context.Context) error {
	t.logger.Info("Removing any existing webhook")
	_, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{
		DropPendingUpdates: true,
	})
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := t.bot.GetUpdatesChan(updateConfig)

	t.logger.Info("Started receiving Telegram updates")

	go t.handleUpdates(ctx, updates)

	return nil
}

func (t *TelegramBot) handleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		t.wg.Add(1)
		go func(update tgbotapi.Update) {
			defer t.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.logger.Errorw("Recovered from panic while processing update", "error", r)
				}
			}()

			if update.Message != nil && update.Message.From != nil {
				t.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				t.bot.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, ""))
			}
		}(update)
	}
}

func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID

	var text string
	if message.IsCommand() {
		t.logger.Infow("Handling command", "command", message.Command(), "user_id", userID)
		text = t.respond(ctx, message.From, message.Command(), message.CommandArguments())
	} else {
		text = "Send /help to see what I can do."
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Errorw("Failed to send reply", "error", err, "chat_id", chatID)
	}
}

func (t *TelegramBot) selectedDay(userID int64) models.DayKey {
	t.stateMutex.RLock()
	day, ok := t.days[userID]
	t.stateMutex.RUnlock()
	if !ok {
		return models.DayKeyOf(t.now())
	}
	return day
}

func (t *TelegramBot) selectDay(userID int64, day models.DayKey) {
	t.stateMutex.Lock()
	t.days[userID] = day
	t.stateMutex.Unlock()
}

func (t *TelegramBot) forget(userID int64) {
	t.stateMutex.Lock()
	delete(t.days, userID)
	t.stateMutex.Unlock()
}

// Stop gracefully shuts down the bot
func (t *TelegramBot) Stop(ctx context.Context) error {
	t.bot.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
