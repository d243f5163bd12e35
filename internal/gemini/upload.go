package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/h2non/filetype"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/metrics"
)

// File states reported by the provider
const (
	FileStateProcessing = "PROCESSING"
	FileStateActive     = "ACTIVE"
	FileStateFailed     = "FAILED"
)

// Status strings passed to StatusFunc during Upload. Display only.
const (
	StatusUploading  = "Uploading video to Google servers..."
	StatusProcessing = "Video uploaded. Processing (this may take a minute)..."
)

// SessionState tracks an UploadSession through its lifecycle
type SessionState string

const (
	SessionStarting   SessionState = "starting"
	SessionSending    SessionState = "sending"
	SessionActivating SessionState = "activating"
	SessionActive     SessionState = "active"
	SessionFailed     SessionState = "failed"
)

// UploadSession is local to one upload call
type UploadSession struct {
	Endpoint   string
	TotalBytes int64
	BytesSent  int64
	State      SessionState
}

// File is the provider's record of an uploaded file
type File struct {
	Name        string `json:"name"`
	URI         string `json:"uri"`
	MIMEType    string `json:"mimeType"`
	State       string `json:"state"`
	DisplayName string `json:"displayName,omitempty"`
}

// UploadFile is a local video ready to be sent
type UploadFile struct {
	DisplayName string
	MIMEType    string
	Size        int64
	Body        io.Reader
}

// Close closes Body when it is closable
func (f *UploadFile) Close() error {
	if c, ok := f.Body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (f *UploadFile) mimeType() string {
	if f.MIMEType == "" {
		return DefaultVideoMIMEType
	}
	return f.MIMEType
}

// OpenFile opens a local video and detects its MIME type from content
func OpenFile(path string) (*UploadFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}

	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("failed to stat video: %w", err)
	}

	head := make([]byte, 261)
	n, err := io.ReadFull(fh, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		fh.Close()
		return nil, fmt.Errorf("failed to read video header: %w", err)
	}
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		fh.Close()
		return nil, fmt.Errorf("failed to rewind video: %w", err)
	}

	return &UploadFile{
		DisplayName: filepath.Base(path),
		MIMEType:    DetectMIMEType(head[:n]),
		Size:        info.Size(),
		Body:        fh,
	}, nil
}

// DetectMIMEType sniffs a video MIME type, falling back to video/mp4
func DetectMIMEType(head []byte) string {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown || !filetype.IsVideo(head) {
		return DefaultVideoMIMEType
	}
	return kind.MIME.Value
}

// StatusFunc receives human-readable phase strings
type StatusFunc func(status string)

// ProgressFunc receives byte-level transfer progress
type ProgressFunc func(sent, total int64)

// StartSession negotiates a resumable upload and returns its session endpoint
func (c *Client) StartSession(ctx context.Context, f *UploadFile) (*UploadSession, error) {
	session := &UploadSession{TotalBytes: f.Size, State: SessionStarting}

	payload, err := json.Marshal(map[string]interface{}{
		"file": map[string]string{"displayName": f.DisplayName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.UploadURL, "files"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(f.Size, 10))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", f.mimeType())
	req.Header.Set("Content-Type", "application/json")

	start := c.now()
	resp, _, err := c.do(req)
	if err != nil {
		session.State = SessionFailed
		return nil, apperror.Wrap(apperror.KindUploadInit, "Failed to start upload", err)
	}
	metrics.RecordProviderCall("upload.start", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if !isSuccess(resp.StatusCode) {
		session.State = SessionFailed
		return nil, apperror.Newf(apperror.KindUploadInit, "Failed to start upload: %s", http.StatusText(resp.StatusCode))
	}

	endpoint := resp.Header.Get("X-Goog-Upload-URL")
	if endpoint == "" {
		session.State = SessionFailed
		return nil, apperror.New(apperror.KindUploadInit, "No upload URL returned from API")
	}

	session.Endpoint = endpoint
	return session, nil
}

// countingReader reports bytes as they are read by the transport
type countingReader struct {
	r       io.Reader
	sent    *int64
	total   int64
	onRead  ProgressFunc
	lastPct int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		sent := atomic.AddInt64(cr.sent, int64(n))
		if cr.onRead != nil && cr.total > 0 {
			pct := sent * 100 / cr.total
			if pct != cr.lastPct {
				cr.lastPct = pct
				cr.onRead(sent, cr.total)
			}
		}
	}
	return n, err
}

// SendBytes streams the whole file to the session endpoint and finalizes it.
// There is no chunk-level resume: any failure is terminal for this session.
func (c *Client) SendBytes(ctx context.Context, session *UploadSession, f *UploadFile, onProgress ProgressFunc) (*File, error) {
	session.State = SessionSending

	body := &countingReader{
		r:      f.Body,
		sent:   &session.BytesSent,
		total:  f.Size,
		onRead: onProgress,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.Endpoint, body)
	if err != nil {
		session.State = SessionFailed
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = f.Size
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.Header.Set("Content-Length", strconv.FormatInt(f.Size, 10))

	start := c.now()
	resp, respBody, err := c.do(req)
	if err != nil {
		session.State = SessionFailed
		metrics.RecordUpload("error", f.Size)
		return nil, apperror.Wrap(apperror.KindUploadTransfer, "Upload failed", err)
	}
	metrics.RecordProviderCall("upload.send", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if !isSuccess(resp.StatusCode) {
		session.State = SessionFailed
		metrics.RecordUpload("error", f.Size)
		return nil, apperror.Newf(apperror.KindUploadTransfer, "Upload failed: %s", http.StatusText(resp.StatusCode))
	}

	var out struct {
		File *File `json:"file"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		session.State = SessionFailed
		return nil, apperror.Wrap(apperror.KindUploadTransfer, "Upload failed: unreadable response", err)
	}
	if out.File == nil || out.File.URI == "" || out.File.Name == "" {
		session.State = SessionFailed
		return nil, apperror.New(apperror.KindUploadTransfer, "Upload failed: response did not include a file reference")
	}
	if out.File.MIMEType == "" {
		out.File.MIMEType = f.mimeType()
	}

	session.State = SessionActivating
	metrics.RecordUpload("success", f.Size)
	return out.File, nil
}

// GetFile fetches the provider's current record for an uploaded file
func (c *Client) GetFile(ctx context.Context, name string) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.cfg.BaseURL, name), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, body, err := c.do(req)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindProvider, "Failed to check file status", err)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, apperror.Newf(apperror.KindProvider, "Failed to check file status: %s", http.StatusText(resp.StatusCode))
	}

	var f File
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, apperror.Wrap(apperror.KindProvider, "Failed to check file status", err)
	}
	return &f, nil
}

// AwaitActive polls the file until it is ACTIVE. FAILED is a ProcessingFailed
// error; exceeding PollTimeout is a Timeout error.
func (c *Client) AwaitActive(ctx context.Context, name string) error {
	start := c.now()
	deadline := time.NewTimer(c.cfg.PollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		f, err := c.GetFile(ctx, name)
		if err != nil {
			return err
		}

		switch f.State {
		case FileStateActive:
			metrics.RecordFileActivation(time.Since(start).Seconds())
			return nil
		case FileStateFailed:
			return apperror.New(apperror.KindProcessingFailed, "File processing failed on Gemini servers")
		}

		c.logger.WithField("file", name).WithField("polls", polls).Debugf("File state %s, waiting", f.State)

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return apperror.Wrap(apperror.KindTimeout, "Timed out waiting for video processing", ctx.Err())
			}
			return fmt.Errorf("waiting for file %s: %w", name, ctx.Err())
		case <-deadline.C:
			return apperror.Newf(apperror.KindTimeout, "Video processing did not finish within %s", c.cfg.PollTimeout)
		case <-ticker.C:
		}
	}
}

// Upload runs the full resumable upload: start, send, then wait for ACTIVE.
func (c *Client) Upload(ctx context.Context, f *UploadFile, onStatus StatusFunc) (*File, error) {
	notify := func(s string) {
		if onStatus != nil {
			onStatus(s)
		}
	}

	notify(StatusUploading)
	session, err := c.StartSession(ctx, f)
	if err != nil {
		return nil, err
	}

	file, err := c.SendBytes(ctx, session, f, func(sent, total int64) {
		c.logger.LogUploadProgress(f.DisplayName, sent, total)
	})
	if err != nil {
		return nil, err
	}

	notify(StatusProcessing)
	if err := c.AwaitActive(ctx, file.Name); err != nil {
		session.State = SessionFailed
		return nil, err
	}

	session.State = SessionActive
	file.State = FileStateActive
	return file, nil
}
