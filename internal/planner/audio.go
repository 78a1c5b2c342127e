package planner

import (
	"errors"
	"fmt"
)

// bitrateLadder holds the standard MP3 bitrates, highest first. The
// fitter never degrades below the lowest rung to force a fit.
var bitrateLadder = []int{192, 160, 128, 112, 96, 80, 64, 48, 32}

var (
	// ErrUnknownDuration means the source reported no duration, so no
	// audio size can be bounded.
	ErrUnknownDuration = errors.New("duration unknown, cannot bound audio size")
	// ErrAudioTooLarge means even the lowest ladder bitrate does not
	// fit under the ceiling.
	ErrAudioTooLarge = errors.New("audio does not fit under the size ceiling at any supported bitrate")
)

// FitAudio walks the bitrate ladder and returns a plan for the highest
// bitrate whose estimated encoded size plus the safety headroom fits
// under the ceiling. The returned plan is confident by construction.
func FitAudio(duration float64, ceiling, headroom int64) (*AudioPlan, error) {
	if duration <= 0 {
		return nil, ErrUnknownDuration
	}

	for _, bitrate := range bitrateLadder {
		estimated := int64(duration*float64(bitrate)*1000/8) + headroom
		if estimated <= ceiling {
			return &AudioPlan{
				Bitrate:       bitrate,
				EstimatedSize: estimated,
				QualityLabel:  fmt.Sprintf("%dkbps mp3", bitrate),
			}, nil
		}
	}
	return nil, ErrAudioTooLarge
}
