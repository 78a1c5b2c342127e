package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/telefetch-project/telefetch/internal/logger"
	"github.com/telefetch-project/telefetch/internal/media"
	"github.com/telefetch-project/telefetch/internal/textutil"
)

// Config carries the size gate parameters.
type Config struct {
	MaxSendBytes       int64
	AudioHeadroomBytes int64
	ProbeTimeout       time.Duration
}

// Planner runs the full decision pipeline for one URL's metadata.
type Planner struct {
	cfg    Config
	prober *Prober
	log    *logger.Logger
}

// New creates a planner with its probe escalation wired in.
func New(cfg Config, log *logger.Logger) *Planner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Planner{
		cfg:    cfg,
		prober: NewProber(cfg.ProbeTimeout, log),
		log:    log,
	}
}

// BuildDecision selects a rendition, confirms its size if needed, fits
// the audio option and applies the gate. This is the only entry point
// callers need; no transfer is started here.
func (p *Planner) BuildDecision(ctx context.Context, meta *media.Metadata) *Decision {
	cand := SelectCandidate(meta)
	if !cand.Confident {
		cand = p.prober.Confirm(ctx, cand)
	}

	decision := &Decision{}
	p.gateVideo(decision, cand)

	audio, err := FitAudio(meta.Duration, p.cfg.MaxSendBytes, p.cfg.AudioHeadroomBytes)
	if err != nil {
		decision.AudioRefusalNote = err.Error()
	} else {
		decision.Audio = audio
	}

	p.log.WithFields(map[string]interface{}{
		"video_offered": decision.Video != nil,
		"audio_offered": decision.Audio != nil,
		"confident":     cand.Confident,
		"estimate":      cand.EstimatedSize,
	}).Debug("size decision reached")

	return decision
}

// gateVideo applies the central safety invariant: video and document
// delivery are only offered for a plan whose size is proven, before any
// byte moves, to fit under the ceiling.
func (p *Planner) gateVideo(decision *Decision, cand Candidate) {
	switch {
	case cand.Kind == KindUnresolved:
		decision.VideoRefusalNote = "no usable video format found"
	case !cand.Confident:
		decision.VideoRefusalNote = "could not confirm the video size in advance"
	case cand.EstimatedSize > p.cfg.MaxSendBytes:
		decision.VideoRefusalNote = fmt.Sprintf(
			"video is %s, over the %s limit",
			textutil.FormatBytes(cand.EstimatedSize),
			textutil.FormatBytes(p.cfg.MaxSendBytes),
		)
	default:
		chosen := cand
		decision.Video = &chosen
	}
}
