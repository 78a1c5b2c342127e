// Package media wraps the yt-dlp binary: metadata resolution, format
// listing and the actual fetch with line-based progress reporting.
package media

import "context"

// Format is one entry of the yt-dlp format list. Size fields are zero
// when the extractor did not report them.
type Format struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	URL            string  `json:"url"`
	Protocol       string  `json:"protocol"`
	FormatNote     string  `json:"format_note"`
}

// HasVideo reports whether the format carries a video stream.
func (f *Format) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

// HasAudio reports whether the format carries an audio stream.
func (f *Format) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// Metadata is the subset of yt-dlp -J output the planner needs.
type Metadata struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Duration   float64  `json:"duration"`
	Formats    []Format `json:"formats"`
	WebpageURL string   `json:"webpage_url"`
}

// ProgressUpdate is one parsed progress line from a running fetch.
// Absent values are zero; Finished is only set on the terminal line.
type ProgressUpdate struct {
	DownloadedBytes    int64
	TotalBytes         int64 // hard total reported by the downloader
	TotalBytesEstimate int64
	FragmentIndex      int
	FragmentCount      int
	Finished           bool
}

// ProgressFunc receives progress updates during a fetch. Returning a
// non-nil error aborts the fetch; the same error comes back from Fetch.
type ProgressFunc func(ProgressUpdate) error

// FetchRequest describes a single yt-dlp download invocation.
type FetchRequest struct {
	URL            string
	FormatSelector string // yt-dlp -f value, e.g. "137+140" or "22"
	OutputTemplate string // yt-dlp -o value, prefix included
	MaxFilesize    int64  // passed as --max-filesize guard, 0 = none
	AudioBitrate   int    // kbps; >0 selects MP3 extraction at this rate
	Progress       ProgressFunc
}

// Resolver resolves metadata and fetches media.
type Resolver interface {
	// Metadata fetches the format list and title for a single item.
	Metadata(ctx context.Context, url string) (*Metadata, error)
	// Fetch downloads per the request, reporting progress line by line.
	Fetch(ctx context.Context, req FetchRequest) error
}
