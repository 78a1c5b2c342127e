// Package telegram wraps the chat platform SDK. All outbound calls are
// serialized through one mutex to respect the per-bot rate limits, and
// the Safe* variants swallow platform errors: status UI is best effort
// and never fatal to a job.
package telegram

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/telefetch-project/telefetch/internal/logger"
)

// Mode is the delivery mode of a job. It decides the upload endpoint
// and the multipart file field name.
type Mode string

const (
	ModeVideo    Mode = "video"
	ModeDocument Mode = "document"
	ModeAudio    Mode = "audio"
)

// Valid reports whether the mode is one of the known three.
func (m Mode) Valid() bool {
	switch m {
	case ModeVideo, ModeDocument, ModeAudio:
		return true
	}
	return false
}

// Client serializes access to the bot API.
type Client struct {
	mu  sync.Mutex
	bot *tgbotapi.BotAPI
	log *logger.Logger
}

// NewClient connects to the bot API at the given base endpoint.
func NewClient(token, apiEndpoint string, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	endpoint := fmt.Sprintf("%s/bot%%s/%%s", apiEndpoint)
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bot API: %w", err)
	}

	return &Client{bot: bot, log: log}, nil
}

// Username returns the bot account's username.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

// UpdatesChan starts long polling and returns the update channel.
func (c *Client) UpdatesChan() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	return c.bot.GetUpdatesChan(u)
}

// StopPolling stops the long poll loop.
func (c *Client) StopPolling() {
	c.bot.StopReceivingUpdates()
}

// SendMessage sends a plain text message and returns its message id.
func (c *Client) SendMessage(chatID int64, replyTo int, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
	}

	c.mu.Lock()
	sent, err := c.bot.Send(msg)
	c.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// EditMessage edits a message's text, optionally replacing its keyboard.
func (c *Client) EditMessage(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = markup

	c.mu.Lock()
	_, err := c.bot.Send(edit)
	c.mu.Unlock()
	return err
}

// SafeEdit edits a message, swallowing any platform error.
func (c *Client) SafeEdit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if err := c.EditMessage(chatID, messageID, text, markup); err != nil {
		c.log.WithError(err).Debug("message edit failed")
	}
}

// SafeDelete deletes a message, swallowing any platform error.
func (c *Client) SafeDelete(chatID int64, messageID int) {
	c.mu.Lock()
	_, err := c.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	c.mu.Unlock()
	if err != nil {
		c.log.WithError(err).Debug("message delete failed")
	}
}

// AnswerCallback acknowledges an inline button press.
func (c *Client) AnswerCallback(callbackID, text string) {
	c.mu.Lock()
	_, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text))
	c.mu.Unlock()
	if err != nil {
		c.log.WithError(err).Debug("callback answer failed")
	}
}
