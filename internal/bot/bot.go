// Package bot wires the chat update loop to the planning pipeline and
// the worker pool: inbound URLs become size decisions, button presses
// become jobs or cancellations.
package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/telefetch-project/telefetch/internal/logger"
	"github.com/telefetch-project/telefetch/internal/media"
	"github.com/telefetch-project/telefetch/internal/planner"
	"github.com/telefetch-project/telefetch/internal/registry"
	"github.com/telefetch-project/telefetch/internal/worker"
)

// Chat is the slice of the platform client the bot drives.
type Chat interface {
	SendMessage(chatID int64, replyTo int, text string) (int, error)
	SafeEdit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup)
	SafeDelete(chatID int64, messageID int)
	AnswerCallback(callbackID, text string)
}

// MetadataResolver resolves format lists for inbound URLs.
type MetadataResolver interface {
	Metadata(ctx context.Context, url string) (*media.Metadata, error)
}

// Pool is the slice of the worker pool the bot enqueues into.
type Pool interface {
	Enqueue(job *worker.Job) int
}

// Config carries the bot's own settings.
type Config struct {
	LogChatID int64 // admin chat receiving request logs, 0 = disabled
}

// Bot handles inbound updates.
type Bot struct {
	cfg      Config
	chat     Chat
	resolver MetadataResolver
	planner  *planner.Planner
	pending  *registry.PendingStore
	cancels  *registry.CancelRegistry
	pool     Pool
	log      *logger.Logger
}

// New creates a bot.
func New(cfg Config, chat Chat, resolver MetadataResolver, pl *planner.Planner,
	pending *registry.PendingStore, cancels *registry.CancelRegistry, pool Pool, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Bot{
		cfg:      cfg,
		chat:     chat,
		resolver: resolver,
		planner:  pl,
		pending:  pending,
		cancels:  cancels,
		pool:     pool,
		log:      log,
	}
}

// Run consumes the update channel until it closes. Each update is
// handled on its own goroutine so a slow metadata fetch never blocks
// button presses.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("update handler panic recovered: %v", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// logRequest forwards a one-line request record to the admin chat.
func (b *Bot) logRequest(user *tgbotapi.User, text string) {
	if b.cfg.LogChatID == 0 || user == nil {
		return
	}
	name := user.UserName
	if name == "" {
		name = user.FirstName
	}
	if _, err := b.chat.SendMessage(b.cfg.LogChatID, 0, name+": "+text); err != nil {
		b.log.WithError(err).Debug("admin log send failed")
	}
}
