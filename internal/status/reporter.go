package status

import (
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Editor is the slice of the chat client the reporter needs.
type Editor interface {
	SafeEdit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup)
}

type messageKey struct {
	chatID    int64
	messageID int
}

type messageState struct {
	lastEdit time.Time
	lastText string
}

// Reporter throttles and deduplicates edits of status messages. An
// edit is suppressed when the text is identical to the last sent text
// or when the throttle interval has not elapsed, unless forced.
// Forced edits are used at state boundaries: start, 100%, terminal.
type Reporter struct {
	mu       sync.Mutex
	editor   Editor
	interval time.Duration
	states   map[messageKey]*messageState
	now      func() time.Time
}

// NewReporter creates a reporter with the given minimum edit interval.
func NewReporter(editor Editor, interval time.Duration) *Reporter {
	return &Reporter{
		editor:   editor,
		interval: interval,
		states:   make(map[messageKey]*messageState),
		now:      time.Now,
	}
}

// Edit requests a status message update. Returns whether the edit was
// actually sent.
func (r *Reporter) Edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup, force bool) bool {
	key := messageKey{chatID, messageID}

	r.mu.Lock()
	state, ok := r.states[key]
	if !ok {
		state = &messageState{}
		r.states[key] = state
	}

	now := r.now()
	if !force {
		if text == state.lastText || now.Sub(state.lastEdit) < r.interval {
			r.mu.Unlock()
			return false
		}
	}
	state.lastEdit = now
	state.lastText = text
	r.mu.Unlock()

	r.editor.SafeEdit(chatID, messageID, text, markup)
	return true
}

// Forget drops the tracked state of a message once its job terminates.
func (r *Reporter) Forget(chatID int64, messageID int) {
	key := messageKey{chatID, messageID}
	r.mu.Lock()
	delete(r.states, key)
	r.mu.Unlock()
}
