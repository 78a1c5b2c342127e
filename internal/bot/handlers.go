package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/telefetch-project/telefetch/internal/registry"
	"github.com/telefetch-project/telefetch/internal/textutil"
)

const helpText = `Send me a YouTube link and I will offer the ways it can be delivered:

Video - best quality that fits the upload limit
Document - the same file, sent without re-encoding by the platform
Audio - an MP3 extraction fitted under the limit

Commands:
/help - this message
/custom <link> - list the raw formats of a video

Files over the upload limit are refused up front rather than half-downloaded.`

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	url := textutil.FirstURL(msg.Text)
	if url == "" {
		return
	}
	if !textutil.IsYouTubeURL(url) {
		b.reply(msg, "Only YouTube links are supported.")
		return
	}

	b.logRequest(msg.From, url)
	b.startDecision(ctx, msg, url)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg, "Hi! Send me a YouTube link to get started.\n\nUse /help for details.")
	case "help":
		b.reply(msg, helpText)
	case "custom":
		b.handleCustom(ctx, msg)
	}
}

// handleCustom lists the raw format table of a link, for users who want
// to see what the selection is working with.
func (b *Bot) handleCustom(ctx context.Context, msg *tgbotapi.Message) {
	url := textutil.FirstURL(msg.CommandArguments())
	if url == "" || !textutil.IsYouTubeURL(url) {
		b.reply(msg, "Usage: /custom <YouTube link>")
		return
	}

	infoMsgID, err := b.chat.SendMessage(msg.Chat.ID, msg.MessageID, "Getting info...")
	if err != nil {
		return
	}

	meta, err := b.resolver.Metadata(ctx, url)
	if err != nil {
		b.chat.SafeEdit(msg.Chat.ID, infoMsgID, "Error: could not read video info", nil)
		return
	}

	var lines []string
	lines = append(lines, meta.Title, "")
	var formats []string
	for i := range meta.Formats {
		f := &meta.Formats[i]
		size := ""
		if f.Filesize > 0 {
			size = textutil.FormatBytes(f.Filesize)
		} else if f.FilesizeApprox > 0 {
			size = "~" + textutil.FormatBytes(f.FilesizeApprox)
		}
		desc := fmt.Sprintf("%s %s", f.FormatID, f.Ext)
		if f.Height > 0 {
			desc += fmt.Sprintf(" %dp", f.Height)
		}
		if !f.HasVideo() {
			desc += " audio"
		}
		if size != "" {
			desc += " " + size
		}
		formats = append(formats, desc)
	}
	sort.Strings(formats)
	lines = append(lines, formats...)

	text := strings.Join(lines, "\n")
	if len(text) > 4000 {
		text = text[:4000]
	}
	b.chat.SafeEdit(msg.Chat.ID, infoMsgID, text, nil)
}

// startDecision runs the planning pipeline for a URL and offers the
// surviving delivery modes as inline buttons.
func (b *Bot) startDecision(ctx context.Context, msg *tgbotapi.Message, url string) {
	infoMsgID, err := b.chat.SendMessage(msg.Chat.ID, msg.MessageID, "Getting info...")
	if err != nil {
		b.log.WithError(err).Warn("could not post info message")
		return
	}

	meta, err := b.resolver.Metadata(ctx, url)
	if err != nil {
		b.log.WithError(err).WithField("url", url).Warn("metadata resolution failed")
		b.chat.SafeEdit(msg.Chat.ID, infoMsgID, "Error: could not read video info", nil)
		return
	}

	title := textutil.SanitizeFilename(meta.Title)
	decision := b.planner.BuildDecision(ctx, meta)

	if !decision.HasAnyOption() {
		reason := decision.VideoRefusalNote
		if reason == "" {
			reason = decision.AudioRefusalNote
		}
		b.chat.SafeEdit(msg.Chat.ID, infoMsgID, title+"\n\nCannot deliver this: "+reason, nil)
		return
	}

	rid := b.pending.Put(&registry.PendingChoice{
		UserID:      msg.From.ID,
		ChatID:      msg.Chat.ID,
		SourceMsgID: msg.MessageID,
		URL:         url,
		Title:       title,
		Duration:    meta.Duration,
		VideoPlan:   decision.Video,
		AudioPlan:   decision.Audio,
	})

	var rows [][]tgbotapi.InlineKeyboardButton
	if decision.Video != nil {
		label := fmt.Sprintf("Video (%s, %s)", decision.Video.QualityLabel,
			textutil.FormatBytes(decision.Video.EstimatedSize))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "dl|video|"+rid)))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Document (%s)", textutil.FormatBytes(decision.Video.EstimatedSize)),
				"dl|doc|"+rid)))
	}
	if decision.Audio != nil {
		label := fmt.Sprintf("Audio (%s, ~%s)", decision.Audio.QualityLabel,
			textutil.FormatBytes(decision.Audio.EstimatedSize))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "dl|audio|"+rid)))
	}

	text := title + "\n\nChoose a format:"
	if decision.Video == nil && decision.VideoRefusalNote != "" {
		text = title + "\n\n" + decision.VideoRefusalNote + "\nChoose a format:"
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.chat.SafeEdit(msg.Chat.ID, infoMsgID, text, &markup)
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	if _, err := b.chat.SendMessage(msg.Chat.ID, msg.MessageID, text); err != nil {
		b.log.WithError(err).Debug("reply failed")
	}
}
