package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/telefetch-project/telefetch/internal/logger"
)

// progressPrefix tags the lines our progress template emits so they can
// be told apart from yt-dlp's other output.
const progressPrefix = "TFPROG|"

// progressTemplate asks yt-dlp for a fixed-field line per progress tick:
// downloaded|total|total_estimate|frag_index|frag_count|status
const progressTemplate = "download:" + progressPrefix +
	"%(progress.downloaded_bytes)s|%(progress.total_bytes)s|%(progress.total_bytes_estimate)s|" +
	"%(progress.fragment_index)s|%(progress.fragment_count)s|%(progress.status)s"

// YTDLPOptions configures the exec-based resolver.
type YTDLPOptions struct {
	Binary              string // defaults to "yt-dlp"
	ConcurrentFragments int
	Retries             int
	FragmentRetries     int
	SocketTimeout       int // seconds
}

// YTDLPResolver implements Resolver by shelling out to yt-dlp.
type YTDLPResolver struct {
	opts YTDLPOptions
	log  *logger.Logger
}

// NewYTDLPResolver creates a resolver around the yt-dlp binary.
func NewYTDLPResolver(opts YTDLPOptions, log *logger.Logger) *YTDLPResolver {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.ConcurrentFragments <= 0 {
		opts.ConcurrentFragments = 4
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &YTDLPResolver{opts: opts, log: log}
}

// CheckDependencies verifies that yt-dlp and ffmpeg are on PATH.
// ffmpeg is needed for stream merging and MP3 extraction.
func (r *YTDLPResolver) CheckDependencies() error {
	if _, err := exec.LookPath(r.opts.Binary); err != nil {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", r.opts.Binary)
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("missing dependency: ffmpeg is required for merging and audio extraction")
	}
	return nil
}

// Metadata runs yt-dlp -J and decodes the single-item payload.
func (r *YTDLPResolver) Metadata(ctx context.Context, url string) (*Metadata, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("url is required")
	}

	args := r.commonArgs()
	args = append(args, "-J", "--no-playlist", url)

	cmd := exec.CommandContext(ctx, r.opts.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp metadata failed: %w: %s", err, firstLine(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("yt-dlp returned empty metadata")
	}

	meta := &Metadata{}
	if err := json.Unmarshal(stdout.Bytes(), meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// Fetch runs a download, streaming progress lines to req.Progress.
// A progress callback error kills the process and is returned as-is,
// so callers can distinguish their own abort from a yt-dlp failure.
func (r *YTDLPResolver) Fetch(ctx context.Context, req FetchRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("url is required")
	}
	if strings.TrimSpace(req.OutputTemplate) == "" {
		return fmt.Errorf("output template is required")
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := r.commonArgs()
	args = append(args,
		"--no-playlist",
		"--newline",
		"--progress-template", progressTemplate,
		"-o", req.OutputTemplate,
	)
	if req.AudioBitrate > 0 {
		args = append(args,
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", fmt.Sprintf("%dK", req.AudioBitrate),
		)
	} else if req.FormatSelector != "" {
		args = append(args, "-f", req.FormatSelector)
	}
	if req.MaxFilesize > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(req.MaxFilesize, 10))
	}
	args = append(args, req.URL)

	r.log.WithField("url", req.URL).WithField("format", req.FormatSelector).Debug("starting yt-dlp fetch")

	cmd := exec.CommandContext(fetchCtx, r.opts.Binary, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}

	var mu sync.Mutex
	var abortErr error

	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		update, ok := ParseProgressLine(line)
		if !ok || req.Progress == nil {
			continue
		}
		if err := req.Progress(update); err != nil {
			mu.Lock()
			if abortErr == nil {
				abortErr = err
			}
			mu.Unlock()
			cancel()
			break
		}
	}

	waitErr := cmd.Wait()

	mu.Lock()
	defer mu.Unlock()
	if abortErr != nil {
		return abortErr
	}
	if fetchCtx.Err() != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		return fmt.Errorf("yt-dlp failed: %w: %s", waitErr, firstLine(stderr.String()))
	}
	return nil
}

func (r *YTDLPResolver) commonArgs() []string {
	args := []string{
		"-N", strconv.Itoa(r.opts.ConcurrentFragments),
	}
	if r.opts.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(r.opts.Retries))
	}
	if r.opts.FragmentRetries > 0 {
		args = append(args, "--fragment-retries", strconv.Itoa(r.opts.FragmentRetries))
	}
	if r.opts.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(r.opts.SocketTimeout))
	}
	return args
}

// ParseProgressLine decodes a progress-template line. Returns false for
// any line that is not one of ours.
func ParseProgressLine(line string) (ProgressUpdate, bool) {
	if !strings.HasPrefix(line, progressPrefix) {
		return ProgressUpdate{}, false
	}
	parts := strings.Split(strings.TrimPrefix(line, progressPrefix), "|")
	if len(parts) != 6 {
		return ProgressUpdate{}, false
	}

	update := ProgressUpdate{
		DownloadedBytes:    parseSize(parts[0]),
		TotalBytes:         parseSize(parts[1]),
		TotalBytesEstimate: parseSize(parts[2]),
		FragmentIndex:      int(parseSize(parts[3])),
		FragmentCount:      int(parseSize(parts[4])),
		Finished:           parts[5] == "finished",
	}
	return update, true
}

// parseSize handles yt-dlp's habit of reporting NA or float strings.
func parseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" || s == "None" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
