// Package planner decides, before any byte moves, whether a rendition
// of the requested media can be delivered under the transfer ceiling.
// It selects the best non-degraded rendition, estimates its size with a
// confidence flag, escalates to a live byte-range probe when metadata
// is inconclusive, and fits an audio bitrate under the same ceiling.
package planner

import (
	"fmt"

	"github.com/telefetch-project/telefetch/internal/media"
)

// CandidateKind tags the rendition candidate variants.
type CandidateKind int

const (
	// KindUnresolved means no usable format metadata existed. An
	// unresolved candidate always fails the size gate.
	KindUnresolved CandidateKind = iota
	// KindSingleFile is one progressive file with both streams.
	KindSingleFile
	// KindPairedStreams is a video-only plus audio-only pair merged
	// after download.
	KindPairedStreams
)

// Candidate is an immutable rendition choice. EstimatedSize of zero
// means no size could be derived at all. The probing step rebuilds the
// candidate rather than mutating it.
type Candidate struct {
	Kind          CandidateKind
	FetchSpec     string // format selector the downloader understands
	MergeHint     string // target container for paired streams
	EstimatedSize int64
	Confident     bool
	ProbeTargets  []string
	QualityLabel  string
}

// AudioPlan describes an MP3 extraction that is already proven to fit.
// Plans that cannot fit are never constructed; the fitter returns an
// error instead.
type AudioPlan struct {
	Bitrate       int // kbps
	EstimatedSize int64
	QualityLabel  string
}

// Decision is the gate output for one URL: which delivery modes may be
// offered, with refusal reasons for the ones that may not.
type Decision struct {
	Video            *Candidate
	VideoRefusalNote string
	Audio            *AudioPlan
	AudioRefusalNote string
}

// HasAnyOption reports whether at least one delivery mode survived.
func (d *Decision) HasAnyOption() bool {
	return d.Video != nil || d.Audio != nil
}

func qualityLabel(f *media.Format) string {
	if f.Height <= 0 {
		return "best"
	}
	if f.FPS > 30 {
		return fmt.Sprintf("%dp%d", f.Height, int(f.FPS))
	}
	return fmt.Sprintf("%dp", f.Height)
}
