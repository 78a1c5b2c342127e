// Package status renders and delivers the per-job status message: one
// message per job, repeatedly edited, rate limited and deduplicated.
package status

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/telefetch-project/telefetch/internal/telegram"
	"github.com/telefetch-project/telefetch/internal/textutil"
)

// render produces the message body: title line, blank line, status line,
// optionally followed by a size line.
func render(title, statusLine, sizeLine string) string {
	text := title + "\n\n" + statusLine
	if sizeLine != "" {
		text += "\n" + sizeLine
	}
	return text
}

// Queued renders the waiting state with the job's queue position.
func Queued(title string, position int) string {
	return render(title, fmt.Sprintf("Queued (#%d)", position), "")
}

// Downloading renders fetch progress. A size line is added when at
// least a display total is known.
func Downloading(title string, percent int, downloaded, total int64) string {
	sizeLine := ""
	if total > 0 && downloaded > 0 {
		sizeLine = fmt.Sprintf("%s / %s", textutil.FormatBytes(downloaded), textutil.FormatBytes(total))
	}
	return render(title, fmt.Sprintf("Downloading... %d%%", percent), sizeLine)
}

// Sending renders upload progress for the given delivery mode.
func Sending(title string, mode telegram.Mode, percent int) string {
	return render(title, fmt.Sprintf("Sending %s... %d%%", mode, percent), "")
}

// Failed renders the errored terminal state with a short reason.
// Delivered and cancelled jobs have no render helper: their status
// message is deleted, not rewritten.
func Failed(title, reason string) string {
	return render(title, "Error: "+reason, "")
}

// CancelKeyboard builds the single inline cancel control that
// accompanies every non-terminal status line.
func CancelKeyboard(jobID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "cnl|"+jobID),
		),
	)
}
