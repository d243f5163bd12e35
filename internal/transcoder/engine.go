package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/logging"
)

// ErrEngineClosed is returned by Acquire after Close
var ErrEngineClosed = errors.New("transcoder engine closed")

// Loader resolves and verifies the binaries backing an Engine
type Loader func(ctx context.Context) (*FFmpeg, error)

// BinaryLoader looks up ffmpeg and ffprobe on PATH (or at the given paths)
// and checks that ffmpeg starts.
func BinaryLoader(ffmpegPath, ffprobePath string, logger *logging.Logger) Loader {
	logger = logging.OrNop(logger)
	return func(ctx context.Context) (*FFmpeg, error) {
		ffmpeg, err := exec.LookPath(ffmpegPath)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
		ffprobe, err := exec.LookPath(ffprobePath)
		if err != nil {
			return nil, fmt.Errorf("ffprobe not found: %w", err)
		}

		ff := NewFFmpeg(ffmpeg, ffprobe)
		version, err := ff.Version(ctx)
		if err != nil {
			return nil, err
		}
		logger.WithField("version", version).Info("Transcoding engine loaded")
		return ff, nil
	}
}

type loadCall struct {
	done chan struct{}
	err  error
}

// Engine is a lazily loaded, reference-counted handle on the transcoding
// binaries. The first Acquire runs the loader; concurrent callers share
// that load. A failed load is reported to everyone waiting on it and the
// next Acquire tries again.
type Engine struct {
	loader Loader

	mu     sync.Mutex
	ff     *FFmpeg
	call   *loadCall
	refs   int
	loads  int
	closed bool
}

// NewEngine creates an engine that loads on first use
func NewEngine(loader Loader) *Engine {
	return &Engine{loader: loader}
}

// Acquire returns the loaded binaries and takes a reference. Every
// successful Acquire must be paired with Release.
func (e *Engine) Acquire(ctx context.Context) (*FFmpeg, error) {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, ErrEngineClosed
		}
		if e.ff != nil {
			e.refs++
			ff := e.ff
			e.mu.Unlock()
			return ff, nil
		}

		call := e.call
		if call == nil {
			call = &loadCall{done: make(chan struct{})}
			e.call = call
			go e.load(context.WithoutCancel(ctx), call)
		}
		e.mu.Unlock()

		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if call.err != nil {
			return nil, call.err
		}
	}
}

// load runs the loader detached from the cancellation of whichever caller
// started it.
func (e *Engine) load(ctx context.Context, call *loadCall) {
	ff, err := e.loader(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.call = nil
	if err != nil {
		call.err = apperror.Wrap(apperror.KindTranscodeFailed, "Failed to load video processing engine", err)
	} else {
		e.ff = ff
		e.loads++
	}
	close(call.done)
}

// Release drops a reference taken by Acquire
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refs > 0 {
		e.refs--
	}
}

// Close unloads the engine. Later Acquire calls fail.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refs > 0 {
		return fmt.Errorf("transcoder engine still in use by %d callers", e.refs)
	}
	e.closed = true
	e.ff = nil
	return nil
}

// Loaded reports whether the binaries have been resolved
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ff != nil
}

// Refs returns the number of outstanding references
func (e *Engine) Refs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

// Loads returns how many times the loader has succeeded
func (e *Engine) Loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads
}
