package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// uploadEndpoints maps delivery modes to API methods. The multipart
// file field shares the mode's name.
var uploadEndpoints = map[Mode]string{
	ModeVideo:    "sendVideo",
	ModeDocument: "sendDocument",
	ModeAudio:    "sendAudio",
}

// UploadRequest describes one chunked media upload.
type UploadRequest struct {
	ChatID   int64
	ReplyTo  int
	Mode     Mode
	FilePath string
	FileName string // name presented to the platform, defaults to base of FilePath
	// Progress runs before each chunk with cumulative sent bytes.
	// Returning an error aborts the upload; the error is returned
	// from Upload unchanged, so cancellation checks compose.
	Progress func(sent, total int64) error
}

// apiResponse is the platform's JSON envelope.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Uploader streams files to the platform's media-send endpoints with a
// chunked multipart body, so cancellation can interrupt between chunks
// instead of waiting out a monolithic write.
type Uploader struct {
	endpoint  string // base API endpoint
	token     string
	chunkSize int
	client    *http.Client
}

// NewUploader creates an uploader. chunkSize is in bytes; timeout
// bounds the whole upload.
func NewUploader(apiEndpoint, token string, chunkSize int, timeout time.Duration) *Uploader {
	if chunkSize <= 0 {
		chunkSize = 256 * 1024
	}
	return &Uploader{
		endpoint:  apiEndpoint,
		token:     token,
		chunkSize: chunkSize,
		client:    &http.Client{Timeout: timeout},
	}
}

// Upload streams the file to the mode's endpoint. The platform's
// rejection comes back as an error carrying its description.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) error {
	method, ok := uploadEndpoints[req.Mode]
	if !ok {
		return fmt.Errorf("unknown delivery mode %q", req.Mode)
	}

	file, err := os.Open(req.FilePath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	total := info.Size()

	fileName := req.FileName
	if fileName == "" {
		fileName = filepath.Base(req.FilePath)
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	var mu sync.Mutex
	var abortErr error
	setAbort := func(err error) {
		mu.Lock()
		if abortErr == nil {
			abortErr = err
		}
		mu.Unlock()
	}

	go func() {
		err := u.writeBody(writer, file, req, fileName, total, setAbort)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	url := fmt.Sprintf("%s/bot%s/%s", u.endpoint, u.token, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(httpReq)

	mu.Lock()
	aborted := abortErr
	mu.Unlock()
	if aborted != nil {
		return aborted
	}
	if err != nil {
		return fmt.Errorf("upload transport: %w", err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("decode upload response: %w", err)
	}
	if !api.OK {
		if api.Description == "" {
			api.Description = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("platform rejected upload: %s", api.Description)
	}
	return nil
}

// writeBody emits the multipart form: scalar fields first, then the
// file in chunks with a progress checkpoint before each one.
func (u *Uploader) writeBody(writer *multipart.Writer, file *os.File, req UploadRequest, fileName string, total int64, setAbort func(error)) error {
	fields := map[string]string{
		"chat_id": strconv.FormatInt(req.ChatID, 10),
	}
	if req.ReplyTo != 0 {
		fields["reply_to_message_id"] = strconv.Itoa(req.ReplyTo)
	}
	if req.Mode == ModeVideo {
		fields["supports_streaming"] = "true"
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}

	part, err := writer.CreateFormFile(string(req.Mode), fileName)
	if err != nil {
		return err
	}

	buf := make([]byte, u.chunkSize)
	var sent int64
	for {
		if req.Progress != nil {
			if err := req.Progress(sent, total); err != nil {
				setAbort(err)
				return err
			}
		}

		n, readErr := file.Read(buf)
		if n > 0 {
			if _, err := part.Write(buf[:n]); err != nil {
				return err
			}
			sent += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if req.Progress != nil {
		if err := req.Progress(sent, total); err != nil {
			setAbort(err)
			return err
		}
	}
	return writer.Close()
}
