package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/telefetch-project/telefetch/internal/media"
	"github.com/telefetch-project/telefetch/internal/progress"
	"github.com/telefetch-project/telefetch/internal/registry"
	"github.com/telefetch-project/telefetch/internal/status"
	"github.com/telefetch-project/telefetch/internal/telegram"
)

// run drives one job to a terminal state. Cleanup and registry release
// happen regardless of outcome.
func (p *Pool) run(job *Job) {
	entry, ok := p.deps.Cancels.Get(job.ID)
	if !ok {
		// Checkpoints need a flag to read even if enqueue skipped registration.
		entry = p.deps.Cancels.Register(job.ID, job.UserID, job.ChatID, job.StatusMsgID)
	}

	defer func() {
		media.CleanupPrefix(p.cfg.DownloadDir, job.Prefix)
		p.deps.Cancels.Release(job.ID)
		p.deps.Reporter.Forget(job.ChatID, job.StatusMsgID)
	}()

	artifactSize, err := p.execute(job, entry)

	// Cancellation takes precedence: an abort that surfaced as an
	// error still terminates as cancelled when the flag was set.
	switch {
	case err == nil:
		p.deps.Messenger.SafeDelete(job.ChatID, job.StatusMsgID)
		p.finishJob(job, OutcomeDelivered, "", artifactSize)
	case errors.Is(err, ErrCancelled) || entry.Cancelled():
		p.deps.Messenger.SafeDelete(job.ChatID, job.StatusMsgID)
		p.finishJob(job, OutcomeCancelled, "", 0)
	default:
		p.deps.Log.WithField("job", job.ID).WithError(err).Warn("job failed")
		p.deps.Reporter.Edit(job.ChatID, job.StatusMsgID,
			status.Failed(job.Title, err.Error()), nil, true)
		p.finishJob(job, OutcomeErrored, err.Error(), 0)
	}
}

// execute runs fetch, verify and deliver, returning the delivered
// artifact's size.
func (p *Pool) execute(job *Job, entry *registry.CancelEntry) (int64, error) {
	if err := p.preflight(); err != nil {
		return 0, err
	}
	if entry.Cancelled() {
		return 0, ErrCancelled
	}

	if err := p.fetch(job, entry); err != nil {
		return 0, err
	}

	artifact, size, err := p.verify(job)
	if err != nil {
		return 0, err
	}

	if err := p.deliver(job, entry, artifact, size); err != nil {
		return 0, err
	}
	return size, nil
}

// preflight refuses to start a fetch when the download volume is low
// on space.
func (p *Pool) preflight() error {
	if p.cfg.MinFreeBytes <= 0 {
		return nil
	}
	free, err := p.diskFree(p.cfg.DownloadDir)
	if err != nil {
		p.deps.Log.WithError(err).Warn("disk usage check failed, continuing")
		return nil
	}
	if int64(free) < p.cfg.MinFreeBytes {
		return fmt.Errorf("not enough disk space to start the download")
	}
	return nil
}

// fetch invokes the resolver with a progress callback that doubles as
// the cancellation and mid-fetch size checkpoint.
func (p *Pool) fetch(job *Job, entry *registry.CancelEntry) error {
	tracker := progress.NewTracker()
	markup := status.CancelKeyboard(job.ID)

	req := media.FetchRequest{
		URL:            job.URL,
		OutputTemplate: filepath.Join(p.cfg.DownloadDir, job.Prefix+".%(title).80B.%(ext)s"),
		MaxFilesize:    p.cfg.MaxSendBytes,
	}
	if job.Mode == telegram.ModeAudio {
		if job.AudioPlan == nil {
			return fmt.Errorf("audio job without an audio plan")
		}
		req.AudioBitrate = job.AudioPlan.Bitrate
	} else {
		if job.VideoPlan == nil {
			return fmt.Errorf("%s job without a video plan", job.Mode)
		}
		req.FormatSelector = job.VideoPlan.FetchSpec
	}

	req.Progress = func(u media.ProgressUpdate) error {
		if entry.Cancelled() {
			return ErrCancelled
		}
		// A hard total revealed mid-transfer that exceeds the ceiling
		// aborts non-audio jobs. Audio size is controlled by the fitted
		// bitrate, the source total does not apply.
		if job.Mode != telegram.ModeAudio && u.TotalBytes > p.cfg.MaxSendBytes {
			return &SizeExceededError{Size: u.TotalBytes, Ceiling: p.cfg.MaxSendBytes}
		}

		snap := tracker.Observe(u)
		text := status.Downloading(job.Title, snap.Percent, snap.Downloaded, snap.Total)
		p.deps.Reporter.Edit(job.ChatID, job.StatusMsgID, text, &markup, snap.Finished)
		if p.deps.Events != nil {
			p.deps.Events.BroadcastJobProgress(job.ID, "fetching", snap.Percent, snap.Downloaded, snap.Total)
		}
		return nil
	}

	if err := p.deps.Resolver.Fetch(p.ctx, req); err != nil {
		if errors.Is(err, ErrCancelled) {
			return ErrCancelled
		}
		var sizeErr *SizeExceededError
		if errors.As(err, &sizeErr) {
			return sizeErr
		}
		return fmt.Errorf("download failed: %w", err)
	}
	return nil
}

// verify locates the produced artifact and re-checks its actual size
// against the ceiling, independent of any estimate.
func (p *Pool) verify(job *Job) (string, int64, error) {
	files, err := media.FindByPrefix(p.cfg.DownloadDir, job.Prefix)
	if err != nil {
		return "", 0, fmt.Errorf("locate output: %w", err)
	}
	artifact := media.PickArtifact(files, job.preferredExt())
	if artifact == "" {
		return "", 0, fmt.Errorf("no output file was produced")
	}

	info, err := os.Stat(artifact)
	if err != nil {
		return "", 0, fmt.Errorf("stat output: %w", err)
	}
	if info.Size() > p.cfg.MaxSendBytes {
		return "", 0, &SizeExceededError{Size: info.Size(), Ceiling: p.cfg.MaxSendBytes}
	}
	return artifact, info.Size(), nil
}

// deliver streams the artifact to the platform, polling the
// cancellation flag before each chunk.
func (p *Pool) deliver(job *Job, entry *registry.CancelEntry, artifact string, size int64) error {
	markup := status.CancelKeyboard(job.ID)
	p.deps.Reporter.Edit(job.ChatID, job.StatusMsgID,
		status.Sending(job.Title, job.Mode, 0), &markup, true)

	req := telegram.UploadRequest{
		ChatID:   job.ChatID,
		ReplyTo:  job.ReplyTo,
		Mode:     job.Mode,
		FilePath: artifact,
		FileName: job.Title + filepath.Ext(artifact),
		Progress: func(sent, total int64) error {
			if entry.Cancelled() {
				return ErrCancelled
			}
			percent := 0
			if total > 0 {
				percent = int(sent * 100 / total)
			}
			// The completion edit must not be lost to the throttle.
			p.deps.Reporter.Edit(job.ChatID, job.StatusMsgID,
				status.Sending(job.Title, job.Mode, percent), &markup, sent == total)
			if p.deps.Events != nil {
				p.deps.Events.BroadcastJobProgress(job.ID, "delivering", percent, sent, total)
			}
			return nil
		},
	}

	if err := p.deps.Uploader.Upload(p.ctx, req); err != nil {
		if errors.Is(err, ErrCancelled) {
			return ErrCancelled
		}
		return fmt.Errorf("delivery failed: %w", err)
	}
	return nil
}

// finishJob records the terminal outcome in the ledger and notifies
// admin listeners.
func (p *Pool) finishJob(job *Job, outcome Outcome, errMsg string, bytes int64) {
	if p.deps.Store != nil {
		err := p.deps.Store.FinishJob(context.Background(), job.ID, string(outcome), errMsg, bytes, time.Now())
		if err != nil {
			p.deps.Log.WithError(err).Warn("failed to record job outcome")
		}
	}
	if p.deps.Events != nil {
		p.deps.Events.BroadcastJobDone(job.ID, string(outcome), errMsg)
	}
}
