package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// FFmpeg wraps the ffmpeg and ffprobe binaries
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// VideoMetadata holds video metadata extracted from ffprobe
type VideoMetadata struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

// FormatInfo holds format information
type FormatInfo struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// StreamInfo holds stream information
type StreamInfo struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Version runs `ffmpeg -version` and returns the first line
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, f.ffmpegPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg -version failed: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// ProbeVideo extracts metadata from a video file
func (f *FFmpeg) ProbeVideo(ctx context.Context, inputPath string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	var metadata VideoMetadata
	if err := json.Unmarshal(stdout.Bytes(), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	return &metadata, nil
}

// ProbeDuration returns the container duration in seconds
func (f *FFmpeg) ProbeDuration(ctx context.Context, inputPath string) (float64, error) {
	metadata, err := f.ProbeVideo(ctx, inputPath)
	if err != nil {
		return 0, err
	}
	duration, err := strconv.ParseFloat(metadata.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", metadata.Format.Duration, err)
	}
	return duration, nil
}

// TrimOptions describes a stream-copy cut
type TrimOptions struct {
	InputPath  string
	OutputPath string
	Start      float64
	Duration   float64
}

// TrimArgs builds the ffmpeg arguments for a fast seek-and-copy cut.
// -ss before -i seeks without decoding; -c copy avoids re-encoding.
func TrimArgs(opts TrimOptions) []string {
	return []string{
		"-ss", strconv.FormatFloat(opts.Start, 'f', -1, 64),
		"-i", opts.InputPath,
		"-t", strconv.FormatFloat(opts.Duration, 'f', -1, 64),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-y",
		"-progress", "pipe:1",
		opts.OutputPath,
	}
}

// ProgressCallback is called with progress updates (0-100)
type ProgressCallback func(progress float64)

var progressRegex = regexp.MustCompile(`out_time_ms=(\d+)`)

// Trim cuts [Start, Start+Duration) out of the input with stream copy
func (f *FFmpeg) Trim(ctx context.Context, opts TrimOptions, progressCB ProgressCallback) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, TrimArgs(opts)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			matches := progressRegex.FindStringSubmatch(scanner.Text())
			if len(matches) < 2 || progressCB == nil || opts.Duration <= 0 {
				continue
			}
			// out_time_ms is reported in microseconds despite its name
			if us, err := strconv.ParseFloat(matches[1], 64); err == nil {
				progress := (us / 1000000.0) / opts.Duration * 100
				if progress > 100 {
					progress = 100
				}
				progressCB(progress)
			}
		}
	}()

	wg.Wait()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderrBuf.String())
	}

	return nil
}
