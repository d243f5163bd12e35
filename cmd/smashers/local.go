package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/smashers-ai/smashers/pkg/models"
)

// localSources serves source videos straight from disk. Object keys are file paths.
type localSources struct{}

func (localSources) DownloadFile(ctx context.Context, path, dest string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// Delete keeps the caller's file
func (localSources) Delete(ctx context.Context, path string) error {
	return nil
}

// statusPrinter reports job progress on a terminal and remembers the last status
type statusPrinter struct {
	w    io.Writer
	mu   sync.Mutex
	last models.JobStatus
}

func (p *statusPrinter) SetJobStatus(ctx context.Context, status *models.JobStatus, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if status.Status != p.last.Status || status.Message != p.last.Message {
		if status.Progress > 0 {
			fmt.Fprintf(p.w, "[%3.0f%%] %s\n", status.Progress, status.Message)
		} else {
			fmt.Fprintf(p.w, "       %s\n", status.Message)
		}
	}
	p.last = *status
	return nil
}

func (p *statusPrinter) Last() models.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
