package transcoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/metrics"
	"github.com/smashers-ai/smashers/internal/tracing"
)

// Name prefixes of the scratch directories and finished clips left under the temp dir
const (
	WorkspacePrefix = "smashers-trim-"
	ClipPrefix      = "smashers-clip-"
)

// Phase is a step of a trim
type Phase string

const (
	PhaseReading    Phase = "reading"
	PhaseWriting    Phase = "writing"
	PhaseProcessing Phase = "processing"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
)

// Progress is one trim progress report
type Progress struct {
	Phase   Phase  `json:"phase"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// ProgressFunc receives trim progress
type ProgressFunc func(Progress)

// Clip is a trimmed video on local disk. The caller owns it and must Close it.
type Clip struct {
	Path     string
	Size     int64
	MIMEType string
	Start    float64
	End      float64
}

// Open opens the clip for reading
func (c *Clip) Open() (*os.File, error) {
	return os.Open(c.Path)
}

// Duration returns the clip length in seconds
func (c *Clip) Duration() float64 {
	return c.End - c.Start
}

// Close removes the clip file
func (c *Clip) Close() error {
	if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Trimmer cuts segments out of source videos
type Trimmer struct {
	engine  *Engine
	tempDir string
	logger  *logging.Logger
}

// NewTrimmer creates a trimmer. An empty tempDir uses os.TempDir().
func NewTrimmer(engine *Engine, tempDir string, logger *logging.Logger) *Trimmer {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Trimmer{
		engine:  engine,
		tempDir: tempDir,
		logger:  logging.OrNop(logger),
	}
}

// Trim copies src into a private workspace, cuts [start, end) with stream
// copy and returns the result as a Clip. size is the source length in bytes
// and may be 0 when unknown. The workspace is removed before returning.
func (t *Trimmer) Trim(ctx context.Context, src io.Reader, name string, size int64, start, end float64, onProgress ProgressFunc) (clip *Clip, err error) {
	span, ctx := tracing.StartSpan(ctx, "transcoder.Trim")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "start", start)
	tracing.SetTag(span, "end", end)

	startTime := time.Now()
	defer func() {
		metrics.RecordTrim(metrics.Status(err), time.Since(startTime).Seconds())
		if err != nil {
			tracing.LogError(span, err)
		}
	}()

	if end <= start {
		return nil, apperror.New(apperror.KindInvalidTimeRange, "End time must be after start time")
	}

	report := func(phase Phase, percent int, message string) {
		if onProgress != nil {
			onProgress(Progress{Phase: phase, Percent: percent, Message: message})
		}
	}

	report(PhaseReading, 0, "Loading video processor...")
	ff, err := t.engine.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer t.engine.Release()

	workspace, err := os.MkdirTemp(t.tempDir, WorkspacePrefix+"*")
	if err != nil {
		return nil, apperror.Wrap(apperror.KindTranscodeFailed, "Failed to prepare workspace", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workspace); rmErr != nil {
			t.logger.WithError(rmErr).WithField("workspace", workspace).Warn("Failed to remove trim workspace")
		}
	}()

	inputPath := filepath.Join(workspace, "input"+Extension(name))
	outputPath := filepath.Join(workspace, "output.mp4")

	if err := t.copyInput(src, inputPath, size, report); err != nil {
		return nil, err
	}

	duration := end - start
	report(PhaseProcessing, 0, "Trimming video...")
	err = ff.Trim(ctx, TrimOptions{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Start:      start,
		Duration:   duration,
	}, func(p float64) {
		report(PhaseProcessing, int(p), fmt.Sprintf("Trimming video... %d%%", int(p)))
	})
	if err != nil {
		t.logger.WithError(err).Error("Trim failed")
		return nil, apperror.Wrap(apperror.KindTranscodeFailed, "Failed to trim video", err)
	}

	report(PhaseFinalizing, 90, "Finalizing trimmed video...")
	clip, err = t.keep(outputPath, start, end)
	if err != nil {
		return nil, err
	}

	report(PhaseDone, 100, "Trim complete!")
	t.logger.WithFields(map[string]interface{}{
		"source":   name,
		"start":    start,
		"end":      end,
		"clip":     clip.Path,
		"size":     clip.Size,
		"duration": time.Since(startTime).String(),
	}).Info("Video trimmed")

	return clip, nil
}

// Probe returns the length of a local video in seconds
func (t *Trimmer) Probe(ctx context.Context, path string) (float64, error) {
	ff, err := t.engine.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer t.engine.Release()

	return ff.ProbeDuration(ctx, path)
}

func (t *Trimmer) copyInput(src io.Reader, path string, size int64, report func(Phase, int, string)) error {
	f, err := os.Create(path)
	if err != nil {
		return apperror.Wrap(apperror.KindTranscodeFailed, "Failed to prepare workspace", err)
	}

	reader := &progressReader{r: src, total: size, onRead: func(pct int) {
		report(PhaseReading, pct, fmt.Sprintf("Reading video file... %d%%", pct))
	}}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		return apperror.Wrap(apperror.KindTranscodeFailed, "Failed to read video file", err)
	}

	report(PhaseWriting, 0, "Preparing video for trimming...")
	if err := f.Sync(); err != nil {
		f.Close()
		return apperror.Wrap(apperror.KindTranscodeFailed, "Failed to write video file", err)
	}
	if err := f.Close(); err != nil {
		return apperror.Wrap(apperror.KindTranscodeFailed, "Failed to write video file", err)
	}
	report(PhaseWriting, 100, "Preparing video for trimming...")
	return nil
}

// keep moves the output out of the workspace so it survives cleanup
func (t *Trimmer) keep(outputPath string, start, end float64) (*Clip, error) {
	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindTranscodeFailed, "Trimmed output missing", err)
	}

	f, err := os.CreateTemp(t.tempDir, ClipPrefix+"*.mp4")
	if err != nil {
		return nil, apperror.Wrap(apperror.KindTranscodeFailed, "Failed to store trimmed video", err)
	}
	clipPath := f.Name()
	f.Close()

	if err := os.Rename(outputPath, clipPath); err != nil {
		os.Remove(clipPath)
		return nil, apperror.Wrap(apperror.KindTranscodeFailed, "Failed to store trimmed video", err)
	}

	return &Clip{
		Path:     clipPath,
		Size:     info.Size(),
		MIMEType: "video/mp4",
		Start:    start,
		End:      end,
	}, nil
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	onRead func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 && n > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last {
			p.last = pct
			p.onRead(pct)
		}
	}
	return n, err
}
