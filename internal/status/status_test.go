package status

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telefetch-project/telefetch/internal/telegram"
)

type fakeEditor struct {
	texts []string
}

func (f *fakeEditor) SafeEdit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	f.texts = append(f.texts, text)
}

func TestRenderLines(t *testing.T) {
	assert.Equal(t, "My Video\n\nQueued (#3)", Queued("My Video", 3))
	assert.Equal(t, "My Video\n\nDownloading... 42%\n4.0 MB / 10.0 MB",
		Downloading("My Video", 42, 4*1024*1024, 10*1024*1024))
	assert.Equal(t, "My Video\n\nDownloading... 0%", Downloading("My Video", 0, 0, 0))
	assert.Equal(t, "My Video\n\nSending video... 55%", Sending("My Video", telegram.ModeVideo, 55))
	assert.Equal(t, "My Video\n\nSending audio... 10%", Sending("My Video", telegram.ModeAudio, 10))
	assert.Equal(t, "My Video\n\nError: transfer failed", Failed("My Video", "transfer failed"))
}

func TestCancelKeyboardToken(t *testing.T) {
	markup := CancelKeyboard("job-123")
	require.Len(t, markup.InlineKeyboard, 1)
	require.Len(t, markup.InlineKeyboard[0], 1)
	button := markup.InlineKeyboard[0][0]
	assert.Equal(t, "Cancel", button.Text)
	require.NotNil(t, button.CallbackData)
	assert.Equal(t, "cnl|job-123", *button.CallbackData)
}

func TestReporterThrottle(t *testing.T) {
	editor := &fakeEditor{}
	r := NewReporter(editor, 1800*time.Millisecond)

	current := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return current }

	assert.True(t, r.Edit(1, 10, "first", nil, false))

	// Different text inside the interval is still suppressed.
	current = current.Add(500 * time.Millisecond)
	assert.False(t, r.Edit(1, 10, "second", nil, false))

	current = current.Add(2 * time.Second)
	assert.True(t, r.Edit(1, 10, "third", nil, false))

	assert.Equal(t, []string{"first", "third"}, editor.texts)
}

func TestReporterDeduplicates(t *testing.T) {
	editor := &fakeEditor{}
	r := NewReporter(editor, time.Millisecond)

	current := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return current }

	assert.True(t, r.Edit(1, 10, "same", nil, false))
	current = current.Add(time.Hour)
	assert.False(t, r.Edit(1, 10, "same", nil, false), "identical text never resent")
}

func TestReporterForceBypassesEverything(t *testing.T) {
	editor := &fakeEditor{}
	r := NewReporter(editor, time.Hour)

	current := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return current }

	assert.True(t, r.Edit(1, 10, "text", nil, false))
	assert.True(t, r.Edit(1, 10, "text", nil, true), "force sends identical text inside the interval")
	assert.Len(t, editor.texts, 2)
}

func TestReporterTracksMessagesIndependently(t *testing.T) {
	editor := &fakeEditor{}
	r := NewReporter(editor, time.Hour)

	current := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return current }

	assert.True(t, r.Edit(1, 10, "a", nil, false))
	assert.True(t, r.Edit(1, 11, "a", nil, false), "other message has its own state")
	assert.True(t, r.Edit(2, 10, "a", nil, false), "other chat has its own state")
}

func TestReporterForget(t *testing.T) {
	editor := &fakeEditor{}
	r := NewReporter(editor, time.Hour)

	current := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return current }

	assert.True(t, r.Edit(1, 10, "a", nil, false))
	r.Forget(1, 10)
	assert.True(t, r.Edit(1, 10, "a", nil, false), "state was dropped")
}
