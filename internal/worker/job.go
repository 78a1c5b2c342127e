// Package worker executes delivery jobs: a fixed pool drains the FIFO
// queue, and each job runs fetch, verify, deliver and cleanup to a
// terminal state under advisory cancellation.
package worker

import (
	"errors"
	"fmt"

	"github.com/telefetch-project/telefetch/internal/planner"
	"github.com/telefetch-project/telefetch/internal/telegram"
	"github.com/telefetch-project/telefetch/internal/textutil"
)

// Outcome is a job's terminal state.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeErrored   Outcome = "errored"
	OutcomeCancelled Outcome = "cancelled"
)

// ErrCancelled marks an abort caused by the user's cancel request.
// Cancellation is not an error from the user's point of view; the
// terminal handling deletes the status message instead of rewriting it.
var ErrCancelled = errors.New("cancelled by user")

// SizeExceededError reports a transfer that turned out larger than the
// ceiling, whether mid-fetch or in the post-fetch verification.
type SizeExceededError struct {
	Size    int64
	Ceiling int64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("file is %s, over the %s limit",
		textutil.FormatBytes(e.Size), textutil.FormatBytes(e.Ceiling))
}

// Job is one accepted delivery task. Exactly one worker owns a job for
// its entire lifetime.
type Job struct {
	ID          string
	ChatID      int64
	UserID      int64
	ReplyTo     int // the user's original message
	StatusMsgID int
	URL         string
	Title       string
	Mode        telegram.Mode
	VideoPlan   *planner.Candidate // set for video/document jobs
	AudioPlan   *planner.AudioPlan // set for audio jobs
	Prefix      string             // unique filename stem for this job's artifacts
}

// preferredExt returns the artifact extension to prefer when locating
// the produced file.
func (j *Job) preferredExt() string {
	if j.Mode == telegram.ModeAudio {
		return ".mp3"
	}
	return ""
}
