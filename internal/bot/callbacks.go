package bot

import (
	"strings"

	"github.com/google/uuid"

	"github.com/telefetch-project/telefetch/internal/media"
	"github.com/telefetch-project/telefetch/internal/telegram"
	"github.com/telefetch-project/telefetch/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleCallback routes inline button tokens: dl|<mode>|<rid> starts a
// job from a pending choice, cnl|<jobID> requests cancellation.
func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}

	parts := strings.Split(cb.Data, "|")
	if len(parts) != 3 && !(len(parts) == 2 && parts[0] == "cnl") {
		b.chat.AnswerCallback(cb.ID, "")
		return
	}

	switch parts[0] {
	case "dl":
		b.handleModeSelect(cb, parts[1], parts[2])
	case "cnl":
		b.handleCancel(cb, parts[1])
	default:
		b.chat.AnswerCallback(cb.ID, "")
	}
}

// handleModeSelect consumes the pending choice and enqueues a job.
func (b *Bot) handleModeSelect(cb *tgbotapi.CallbackQuery, modeTag, rid string) {
	mode, ok := parseModeTag(modeTag)
	if !ok {
		b.chat.AnswerCallback(cb.ID, "")
		return
	}

	// Ownership is checked on a non-destructive peek: a stranger's
	// press must not consume the owner's offer.
	peeked, ok := b.pending.Peek(rid)
	if !ok {
		b.chat.AnswerCallback(cb.ID, "Expired. Send the link again.")
		return
	}
	if peeked.UserID != cb.From.ID {
		b.chat.AnswerCallback(cb.ID, "This choice belongs to another user.")
		return
	}

	choice, ok := b.pending.Take(rid)
	if !ok {
		b.chat.AnswerCallback(cb.ID, "Expired. Send the link again.")
		return
	}

	job := &worker.Job{
		ID:          uuid.NewString(),
		ChatID:      choice.ChatID,
		UserID:      choice.UserID,
		ReplyTo:     choice.SourceMsgID,
		StatusMsgID: cb.Message.MessageID,
		URL:         choice.URL,
		Title:       choice.Title,
		Mode:        mode,
		Prefix:      media.NewJobPrefix(),
	}
	switch mode {
	case telegram.ModeAudio:
		if choice.AudioPlan == nil {
			b.chat.AnswerCallback(cb.ID, "Audio is not available for this video.")
			return
		}
		job.AudioPlan = choice.AudioPlan
	default:
		if choice.VideoPlan == nil {
			b.chat.AnswerCallback(cb.ID, "This format is not available.")
			return
		}
		job.VideoPlan = choice.VideoPlan
	}

	b.cancels.Register(job.ID, job.UserID, job.ChatID, job.StatusMsgID)
	b.pool.Enqueue(job)
	b.chat.AnswerCallback(cb.ID, "Queued")
}

// handleCancel sets the advisory flag on a running job. Only the job's
// owner may cancel it.
func (b *Bot) handleCancel(cb *tgbotapi.CallbackQuery, jobID string) {
	entry, ok := b.cancels.Get(jobID)
	if !ok {
		b.chat.AnswerCallback(cb.ID, "Already finished.")
		return
	}
	if entry.UserID != cb.From.ID {
		b.chat.AnswerCallback(cb.ID, "Only the requester can cancel this.")
		return
	}

	entry.Cancel()
	b.chat.AnswerCallback(cb.ID, "Cancelling...")
}

func parseModeTag(tag string) (telegram.Mode, bool) {
	switch tag {
	case "video":
		return telegram.ModeVideo, true
	case "doc":
		return telegram.ModeDocument, true
	case "audio":
		return telegram.ModeAudio, true
	}
	return "", false
}
