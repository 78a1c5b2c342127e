package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telefetch-project/telefetch/internal/media"
	"github.com/telefetch-project/telefetch/internal/planner"
	"github.com/telefetch-project/telefetch/internal/registry"
	"github.com/telefetch-project/telefetch/internal/status"
	"github.com/telefetch-project/telefetch/internal/storage"
	"github.com/telefetch-project/telefetch/internal/telegram"
)

// fakeResolver simulates a fetch by emitting progress updates and
// writing artifact files keyed by the job prefix.
type fakeResolver struct {
	updates   []media.ProgressUpdate
	artifacts map[string]int // filename suffix -> size
	fetchErr  error
}

func (f *fakeResolver) Metadata(ctx context.Context, url string) (*media.Metadata, error) {
	return nil, errors.New("not used")
}

func (f *fakeResolver) Fetch(ctx context.Context, req media.FetchRequest) error {
	for _, u := range f.updates {
		if req.Progress != nil {
			if err := req.Progress(u); err != nil {
				return err
			}
		}
	}
	if f.fetchErr != nil {
		return f.fetchErr
	}

	// The template is dir/prefix.%(title).80B.%(ext)s; everything
	// before the first template field is the real path stem.
	stem := strings.Split(req.OutputTemplate, ".%(")[0]
	for suffix, size := range f.artifacts {
		path := stem + suffix
		if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
			return err
		}
	}
	return nil
}

type fakeUploader struct {
	mu         sync.Mutex
	uploads    []telegram.UploadRequest
	uploadErr  error
	onProgress func(sent int64) // runs before each progress checkpoint
}

func (f *fakeUploader) Upload(ctx context.Context, req telegram.UploadRequest) error {
	f.mu.Lock()
	f.uploads = append(f.uploads, req)
	f.mu.Unlock()

	if req.Progress != nil {
		info, err := os.Stat(req.FilePath)
		if err != nil {
			return err
		}
		total := info.Size()
		for i := 0; i <= 2; i++ {
			sent := total * int64(i) / 2
			if f.onProgress != nil {
				f.onProgress(sent)
			}
			if err := req.Progress(sent, total); err != nil {
				return err
			}
		}
	}
	return f.uploadErr
}

type fakeMessenger struct {
	mu      sync.Mutex
	deleted []int
}

func (f *fakeMessenger) SafeDelete(chatID int64, messageID int) {
	f.mu.Lock()
	f.deleted = append(f.deleted, messageID)
	f.mu.Unlock()
}

type recordingEditor struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingEditor) SafeEdit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
}

func (r *recordingEditor) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

type harness struct {
	pool      *Pool
	resolver  *fakeResolver
	uploader  *fakeUploader
	messenger *fakeMessenger
	editor    *recordingEditor
	cancels   *registry.CancelRegistry
	store     storage.Store
	dir       string
}

func newHarness(t *testing.T, resolver *fakeResolver) *harness {
	t.Helper()
	dir := t.TempDir()
	editor := &recordingEditor{}
	uploader := &fakeUploader{}
	messenger := &fakeMessenger{}
	cancels := registry.NewCancelRegistry()
	store, err := storage.NewMemoryStore()
	require.NoError(t, err)

	pool := NewPool(Config{
		Workers:      1,
		DownloadDir:  dir,
		MaxSendBytes: 50_000_000,
	}, Deps{
		Resolver:  resolver,
		Uploader:  uploader,
		Messenger: messenger,
		Reporter:  status.NewReporter(editor, 0),
		Cancels:   cancels,
		Store:     store,
	})

	return &harness{
		pool: pool, resolver: resolver, uploader: uploader,
		messenger: messenger, editor: editor, cancels: cancels,
		store: store, dir: dir,
	}
}

func videoJob(id string) *Job {
	return &Job{
		ID:          id,
		ChatID:      42,
		UserID:      7,
		ReplyTo:     100,
		StatusMsgID: 101,
		URL:         "https://youtu.be/abc",
		Title:       "My Clip",
		Mode:        telegram.ModeVideo,
		VideoPlan:   &planner.Candidate{Kind: planner.KindSingleFile, FetchSpec: "22", Confident: true, EstimatedSize: 10_000_000, QualityLabel: "720p"},
		Prefix:      media.NewJobPrefix(),
	}
}

func (h *harness) runJob(t *testing.T, job *Job) *storage.JobRecord {
	t.Helper()
	h.cancels.Register(job.ID, job.UserID, job.ChatID, job.StatusMsgID)
	require.NoError(t, h.store.CreateJob(context.Background(), &storage.JobRecord{
		ID: job.ID, ChatID: job.ChatID, UserID: job.UserID,
		URL: job.URL, Title: job.Title, Mode: string(job.Mode), Outcome: "queued",
	}))

	h.pool.run(job)

	rec, err := h.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	return rec
}

func TestJobDelivered(t *testing.T) {
	resolver := &fakeResolver{
		updates: []media.ProgressUpdate{
			{DownloadedBytes: 1000, TotalBytes: 4000},
			{DownloadedBytes: 4000, TotalBytes: 4000, Finished: true},
		},
		artifacts: map[string]int{".My Clip.mp4": 4000},
	}
	h := newHarness(t, resolver)
	job := videoJob("job-1")

	rec := h.runJob(t, job)

	assert.Equal(t, "delivered", rec.Outcome)
	assert.Equal(t, int64(4000), rec.Bytes)

	require.Len(t, h.uploader.uploads, 1)
	assert.Equal(t, telegram.ModeVideo, h.uploader.uploads[0].Mode)
	assert.Equal(t, "My Clip.mp4", h.uploader.uploads[0].FileName)

	// Status message deleted, not rewritten
	assert.Equal(t, []int{101}, h.messenger.deleted)

	// Temp files swept
	files, err := media.FindByPrefix(h.dir, job.Prefix)
	require.NoError(t, err)
	assert.Empty(t, files)

	// Cancel entry released
	_, ok := h.cancels.Get(job.ID)
	assert.False(t, ok)
}

func TestCancelBeforeCheckpoint(t *testing.T) {
	resolver := &fakeResolver{
		updates:   []media.ProgressUpdate{{DownloadedBytes: 1, TotalBytes: 100}},
		artifacts: map[string]int{".My Clip.mp4": 100},
	}
	h := newHarness(t, resolver)
	job := videoJob("job-1")

	entry := h.cancels.Register(job.ID, job.UserID, job.ChatID, job.StatusMsgID)
	entry.Cancel()
	require.NoError(t, h.store.CreateJob(context.Background(), &storage.JobRecord{ID: job.ID, Mode: "video", Outcome: "queued"}))

	h.pool.run(job)

	rec, err := h.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", rec.Outcome)

	// Deleted, never rewritten as an error
	assert.Equal(t, []int{101}, h.messenger.deleted)
	for _, text := range h.editor.all() {
		assert.NotContains(t, text, "Error:")
	}
	assert.Empty(t, h.uploader.uploads)
}

func TestMidFetchHardTotalAborts(t *testing.T) {
	resolver := &fakeResolver{
		updates: []media.ProgressUpdate{
			{DownloadedBytes: 1000, TotalBytes: 60_000_000}, // over the 50MB ceiling
		},
	}
	h := newHarness(t, resolver)

	rec := h.runJob(t, videoJob("job-1"))

	assert.Equal(t, "errored", rec.Outcome)
	assert.Contains(t, rec.Error, "over the")
	assert.Empty(t, h.uploader.uploads)

	texts := h.editor.all()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1], "Error:")
}

func TestMidFetchHardTotalIgnoredForAudio(t *testing.T) {
	resolver := &fakeResolver{
		updates: []media.ProgressUpdate{
			{DownloadedBytes: 1000, TotalBytes: 60_000_000},
			{Finished: true},
		},
		artifacts: map[string]int{".My Clip.mp3": 2000},
	}
	h := newHarness(t, resolver)

	job := videoJob("job-1")
	job.Mode = telegram.ModeAudio
	job.VideoPlan = nil
	job.AudioPlan = &planner.AudioPlan{Bitrate: 128, QualityLabel: "128kbps mp3"}

	rec := h.runJob(t, job)
	assert.Equal(t, "delivered", rec.Outcome)
}

func TestPostFetchSizeCheck(t *testing.T) {
	resolver := &fakeResolver{
		updates:   []media.ProgressUpdate{{Finished: true}},
		artifacts: map[string]int{".My Clip.mp4": 60_000_000},
	}
	h := newHarness(t, resolver)
	h.pool.cfg.MaxSendBytes = 50_000_000

	rec := h.runJob(t, videoJob("job-1"))

	assert.Equal(t, "errored", rec.Outcome)
	assert.Contains(t, rec.Error, "over the")
	assert.Empty(t, h.uploader.uploads)
}

func TestNoArtifactProduced(t *testing.T) {
	resolver := &fakeResolver{updates: []media.ProgressUpdate{{Finished: true}}}
	h := newHarness(t, resolver)

	rec := h.runJob(t, videoJob("job-1"))

	assert.Equal(t, "errored", rec.Outcome)
	assert.Contains(t, rec.Error, "no output file")
}

func TestAudioPrefersMP3Artifact(t *testing.T) {
	resolver := &fakeResolver{
		updates: []media.ProgressUpdate{{Finished: true}},
		artifacts: map[string]int{
			".My Clip.m4a": 9000, // intermediate, larger
			".My Clip.mp3": 3000,
		},
	}
	h := newHarness(t, resolver)

	job := videoJob("job-1")
	job.Mode = telegram.ModeAudio
	job.VideoPlan = nil
	job.AudioPlan = &planner.AudioPlan{Bitrate: 96}

	rec := h.runJob(t, job)
	require.Equal(t, "delivered", rec.Outcome)
	require.Len(t, h.uploader.uploads, 1)
	assert.Equal(t, ".mp3", filepath.Ext(h.uploader.uploads[0].FilePath))
	assert.Equal(t, int64(3000), rec.Bytes)
}

func TestCancelDuringUpload(t *testing.T) {
	resolver := &fakeResolver{
		updates:   []media.ProgressUpdate{{Finished: true}},
		artifacts: map[string]int{".My Clip.mp4": 1000},
	}
	h := newHarness(t, resolver)
	job := videoJob("job-1")

	entry := h.cancels.Register(job.ID, job.UserID, job.ChatID, job.StatusMsgID)
	require.NoError(t, h.store.CreateJob(context.Background(), &storage.JobRecord{ID: job.ID, Mode: "video", Outcome: "queued"}))

	// Flip the flag mid-send, as a user pressing cancel would; the
	// next chunk checkpoint observes it.
	h.uploader.onProgress = func(sent int64) {
		if sent > 0 {
			entry.Cancel()
		}
	}

	h.pool.run(job)

	rec, err := h.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", rec.Outcome)
	assert.Equal(t, []int{101}, h.messenger.deleted)
}

func TestFinalUploadEditSurvivesThrottle(t *testing.T) {
	resolver := &fakeResolver{
		updates:   []media.ProgressUpdate{{Finished: true}},
		artifacts: map[string]int{".My Clip.mp4": 1000},
	}
	h := newHarness(t, resolver)
	// A long interval would swallow every intermediate upload edit;
	// the completion edit must still get through.
	h.pool.deps.Reporter = status.NewReporter(h.editor, time.Hour)

	rec := h.runJob(t, videoJob("job-1"))
	require.Equal(t, "delivered", rec.Outcome)

	texts := h.editor.all()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1], "Sending video... 100%")
}

func TestDiskPreflightRefusal(t *testing.T) {
	resolver := &fakeResolver{artifacts: map[string]int{".My Clip.mp4": 100}}
	h := newHarness(t, resolver)
	h.pool.cfg.MinFreeBytes = 500_000_000
	h.pool.diskFree = func(string) (uint64, error) { return 1_000_000, nil }

	rec := h.runJob(t, videoJob("job-1"))

	assert.Equal(t, "errored", rec.Outcome)
	assert.Contains(t, rec.Error, "disk space")
	assert.Empty(t, h.uploader.uploads)
}

func TestDeliveryFailure(t *testing.T) {
	resolver := &fakeResolver{
		updates:   []media.ProgressUpdate{{Finished: true}},
		artifacts: map[string]int{".My Clip.mp4": 1000},
	}
	h := newHarness(t, resolver)
	h.uploader.uploadErr = fmt.Errorf("platform rejected upload: too large")

	rec := h.runJob(t, videoJob("job-1"))

	assert.Equal(t, "errored", rec.Outcome)
	assert.Contains(t, rec.Error, "delivery failed")
}

func TestWorkerSurvivesFailingJob(t *testing.T) {
	resolver := &fakeResolver{
		updates:   []media.ProgressUpdate{{Finished: true}},
		artifacts: map[string]int{".My Clip.mp4": 1000},
	}
	h := newHarness(t, resolver)

	h.pool.Start()
	defer h.pool.Stop()

	bad := videoJob("job-bad")
	bad.VideoPlan = nil // misconfigured on purpose
	h.cancels.Register(bad.ID, bad.UserID, bad.ChatID, bad.StatusMsgID)
	h.pool.Enqueue(bad)

	good := videoJob("job-good")
	h.cancels.Register(good.ID, good.UserID, good.ChatID, good.StatusMsgID)
	h.pool.Enqueue(good)

	require.Eventually(t, func() bool {
		rec, err := h.store.GetJob(context.Background(), good.ID)
		return err == nil && rec.Outcome == "delivered"
	}, 5*time.Second, 10*time.Millisecond)

	rec, err := h.store.GetJob(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, "errored", rec.Outcome)
}

func TestEnqueuePostsQueuedStatus(t *testing.T) {
	resolver := &fakeResolver{
		updates:   []media.ProgressUpdate{{Finished: true}},
		artifacts: map[string]int{".My Clip.mp4": 1000},
	}
	h := newHarness(t, resolver)

	// Without workers running, positions accumulate.
	job1 := videoJob("job-1")
	job2 := videoJob("job-2")
	h.cancels.Register(job1.ID, job1.UserID, job1.ChatID, job1.StatusMsgID)
	h.cancels.Register(job2.ID, job2.UserID, job2.ChatID, job2.StatusMsgID)

	assert.Equal(t, 1, h.pool.Enqueue(job1))
	assert.Equal(t, 2, h.pool.Enqueue(job2))
	assert.Equal(t, 2, h.pool.QueueLen())

	texts := h.editor.all()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Queued (#1)")
	assert.Contains(t, texts[1], "Queued (#2)")

	rec, err := h.store.GetJob(context.Background(), job1.ID)
	require.NoError(t, err)
	assert.Equal(t, "queued", rec.Outcome)
	assert.Equal(t, "720p", rec.Quality)
}
