// Package framesource turns a video file or camera device into a stream of
// JPEG frames by piping ffmpeg's MJPEG output through a JPEG splitter.
package framesource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/google/uuid"

	"github.com/adverant/nexus/mrz-worker/internal/processor"
)

const megabyte = 1024 * 1024

var (
	jpegSOI = []byte{0xFF, 0xD8} // Start of Image
	jpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is a bufio.SplitFunc that yields whole JPEG images, skipping any
// bytes before the first Start Of Image marker.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], jpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// Options controls decoding
type Options struct {
	// FPS resamples the input. Zero keeps the source rate.
	FPS float64
	// Width and Height are recorded on every frame; ffmpeg does not scale.
	Width  int
	Height int
	// Rotation is recorded on every frame, in degrees
	Rotation int
}

// NewFFmpegCmd builds a decoder writing MJPEG frames to stdout
func NewFFmpegCmd(ctx context.Context, input string, opts Options) *exec.Cmd {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", input}
	if opts.FPS > 0 {
		args = append(args, "-vf", "fps="+strconv.FormatFloat(opts.FPS, 'f', -1, 64))
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
	return exec.CommandContext(ctx, "ffmpeg", args...)
}

// Handler receives frames in decode order. Returning false stops the stream.
type Handler func(frame *processor.Frame) bool

// Stream splits r into JPEG frames and hands each to fn. Frames share one
// session ID and are numbered from zero. It returns the number of frames
// read.
func Stream(ctx context.Context, r io.Reader, opts Options, fn Handler) (int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(SplitJpeg)

	session := uuid.NewString()
	var index int64
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return index, err
		}

		// the scanner reuses its buffer
		data := make([]byte, len(scanner.Bytes()))
		copy(data, scanner.Bytes())

		frame := processor.NewFrame(data, opts.Width, opts.Height, opts.Rotation)
		frame.SessionID = session
		frame.Index = index
		index++

		if !fn(frame) {
			return index, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return index, fmt.Errorf("frame splitter failed: %w", err)
	}
	return index, nil
}

// Decode runs ffmpeg on input and streams its frames to fn. Stopping early
// kills ffmpeg.
func Decode(ctx context.Context, input string, opts Options, fn Handler) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := NewFFmpegCmd(ctx, input, opts)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	stopped := false
	n, streamErr := Stream(ctx, out, opts, func(frame *processor.Frame) bool {
		if !fn(frame) {
			stopped = true
			return false
		}
		return true
	})

	if stopped || streamErr != nil {
		cancel()
		_ = cmd.Wait()
		return n, streamErr
	}

	if err := cmd.Wait(); err != nil {
		if stderr.Len() > 0 {
			return n, fmt.Errorf("ffmpeg failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return n, fmt.Errorf("ffmpeg failed: %w", err)
	}
	return n, nil
}

// CountFrames asks ffprobe for the number of video frames in input. It
// returns 0 when the count is unavailable so callers can fall back to a
// spinner.
func CountFrames(ctx context.Context, input string) int {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0
	}

	type ffprobeOutput struct {
		Streams []struct {
			NbFrames string `json:"nb_frames"`
		} `json:"streams"`
	}

	out, err := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=nb_frames", "-of", "json", input).Output()
	if err != nil {
		return 0
	}

	var res ffprobeOutput
	if json.Unmarshal(out, &res) != nil || len(res.Streams) == 0 {
		return 0
	}
	count, err := strconv.Atoi(res.Streams[0].NbFrames)
	if err != nil || count < 0 {
		return 0
	}
	return count
}
