package planner

import "github.com/telefetch-project/telefetch/internal/media"

// betterVideo reports whether a beats b on the (height, fps, tbr)
// tuple, strictly. Equal tuples return false so the first-encountered
// candidate keeps winning.
func betterVideo(a, b *media.Format) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	if a.FPS != b.FPS {
		return a.FPS > b.FPS
	}
	return a.TBR > b.TBR
}

// audioRate is the comparable bitrate of an audio-only format.
func audioRate(f *media.Format) float64 {
	if f.ABR > 0 {
		return f.ABR
	}
	return f.TBR
}

// SelectCandidate picks the best non-degraded rendition from the
// format list. Progressive MP4 wins when present; otherwise the best
// video-only MP4 is paired with the best M4A/MP4 audio-only stream.
func SelectCandidate(meta *media.Metadata) Candidate {
	if best := bestProgressive(meta); best != nil {
		return buildSingleFile(best, meta.Duration)
	}

	video := bestVideoOnly(meta)
	audio := bestAudioOnly(meta)
	if video == nil || audio == nil {
		return Candidate{Kind: KindUnresolved}
	}
	return buildPaired(video, audio, meta.Duration)
}

func bestProgressive(meta *media.Metadata) *media.Format {
	var best *media.Format
	for i := range meta.Formats {
		f := &meta.Formats[i]
		if f.Ext != "mp4" || !f.HasVideo() || !f.HasAudio() {
			continue
		}
		if best == nil || betterVideo(f, best) {
			best = f
		}
	}
	return best
}

func bestVideoOnly(meta *media.Metadata) *media.Format {
	var best *media.Format
	for i := range meta.Formats {
		f := &meta.Formats[i]
		if f.Ext != "mp4" || !f.HasVideo() || f.HasAudio() {
			continue
		}
		if best == nil || betterVideo(f, best) {
			best = f
		}
	}
	return best
}

func bestAudioOnly(meta *media.Metadata) *media.Format {
	var best *media.Format
	for i := range meta.Formats {
		f := &meta.Formats[i]
		if f.Ext != "m4a" && f.Ext != "mp4" {
			continue
		}
		if !f.HasAudio() || f.HasVideo() {
			continue
		}
		if best == nil || audioRate(f) > audioRate(best) {
			best = f
		}
	}
	return best
}

// declaredSize returns the authoritative size of a format, preferring
// the exact value over the approximate one. Zero means undeclared.
func declaredSize(f *media.Format) int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

// derivedSize estimates bytes from average bitrate and duration. This
// is never confident and never gates the go/no-go decision.
func derivedSize(f *media.Format, duration float64) int64 {
	if f.TBR <= 0 || duration <= 0 {
		return 0
	}
	return int64(f.TBR * 1000 / 8 * duration)
}

func buildSingleFile(f *media.Format, duration float64) Candidate {
	c := Candidate{
		Kind:         KindSingleFile,
		FetchSpec:    f.FormatID,
		QualityLabel: qualityLabel(f),
	}
	if size := declaredSize(f); size > 0 {
		c.EstimatedSize = size
		c.Confident = true
		return c
	}
	c.EstimatedSize = derivedSize(f, duration)
	if f.URL != "" {
		c.ProbeTargets = []string{f.URL}
	}
	return c
}

func buildPaired(video, audio *media.Format, duration float64) Candidate {
	c := Candidate{
		Kind:         KindPairedStreams,
		FetchSpec:    video.FormatID + "+" + audio.FormatID,
		MergeHint:    "mp4",
		QualityLabel: qualityLabel(video),
	}

	videoSize := declaredSize(video)
	audioSize := declaredSize(audio)
	if videoSize > 0 && audioSize > 0 {
		c.EstimatedSize = videoSize + audioSize
		c.Confident = true
		return c
	}

	// Partial or missing declarations: fall back to a derived total and
	// remember both stream URLs for the probe step.
	total := videoSize + audioSize
	if videoSize == 0 {
		total += derivedSize(video, duration)
	}
	if audioSize == 0 {
		total += derivedSize(audio, duration)
	}
	c.EstimatedSize = total
	for _, f := range []*media.Format{video, audio} {
		if f.URL != "" {
			c.ProbeTargets = append(c.ProbeTargets, f.URL)
		}
	}
	if len(c.ProbeTargets) != 2 {
		// A probe can only confirm the pair if both URLs respond.
		c.ProbeTargets = nil
	}
	return c
}
