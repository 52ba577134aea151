package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/mrz-worker/internal/framesource"
	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/mrz"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
	"github.com/adverant/nexus/mrz-worker/internal/scanner"
)

// VideoOptions holds `mrzscan video` flags
type VideoOptions struct {
	InputPath string
	FPS       float64
	Rotation  int
	All       bool
	// Realtime paces frames at FPS and lets the scanner drop frames as a
	// live camera would. Otherwise each frame waits for the scanner.
	Realtime bool
}

var videoOpts VideoOptions

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Read MRZs from a video file or capture device through the live scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if videoOpts.InputPath == "" {
			return fmt.Errorf("--input is required")
		}
		if videoOpts.Realtime && videoOpts.FPS <= 0 {
			return fmt.Errorf("--realtime needs --fps")
		}
		return runVideo(cmd.Context(), videoOpts, cmd.OutOrStdout())
	},
}

// videoMatch is one line of `mrzscan video` output
type videoMatch struct {
	Frame     int64      `json:"frame"`
	FrameID   string     `json:"frameId"`
	ElapsedMs int64      `json:"elapsedMs"`
	Record    mrz.Record `json:"record"`
}

// printListener writes matches as JSON lines and counts outcomes
type printListener struct {
	mu      sync.Mutex
	enc     *json.Encoder
	logger  *logging.Logger
	matched atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

func newPrintListener(out io.Writer, logger *logging.Logger) *printListener {
	return &printListener{enc: json.NewEncoder(out), logger: logger}
}

func (l *printListener) OnMatch(frame *processor.Frame, record mrz.Record, elapsed time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(videoMatch{
		Frame:     frame.Index,
		FrameID:   frame.ID,
		ElapsedMs: elapsed.Milliseconds(),
		Record:    record,
	}); err != nil {
		l.logger.Error("Failed to write match", "error", err)
	}
	l.matched.Add(1)
}

func (l *printListener) OnNoMatch(frame *processor.Frame, elapsed time.Duration) {
	l.misses.Add(1)
}

func (l *printListener) OnError(frame *processor.Frame, err error, elapsed time.Duration) {
	l.errors.Add(1)
	l.logger.Warn("Recognition failed", "frame", frame.Index, "error", err)
}

func runVideo(ctx context.Context, opts VideoOptions, out io.Writer) error {
	logger := logging.NewLogger("MRZSCAN")

	recognizer, err := newRecognizer()
	if err != nil {
		return err
	}

	listener := newPrintListener(out, logger)
	scan, err := scanner.New(&scanner.Config{
		Recognizer:         recognizer,
		Listener:           listener,
		RecognitionTimeout: cfg.RecognitionTimeout,
		Logger:             logging.NewLogger("SCANNER"),
	})
	if err != nil {
		recognizer.Close()
		return err
	}

	total := framesource.CountFrames(ctx, opts.InputPath)
	if total == 0 {
		total = -1
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Scanning for MRZ"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var interval time.Duration
	if opts.Realtime {
		interval = time.Duration(float64(time.Second) / opts.FPS)
	}

	decoded, decodeErr := framesource.Decode(ctx, opts.InputPath, framesource.Options{
		FPS:      opts.FPS,
		Rotation: opts.Rotation,
	}, func(frame *processor.Frame) bool {
		_ = bar.Add(1)

		done := func() bool { return !opts.All && listener.matched.Load() > 0 }
		if done() {
			return false
		}
		if interval > 0 {
			scan.Offer(frame)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(interval):
			}
			return true
		}
		return offerWhenIdle(ctx, scan, frame, done)
	})
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.RecognitionTimeout+5*time.Second)
	defer cancel()
	stopErr := scan.Stop(stopCtx)

	admitted, dropped := scan.Stats()
	logger.Info("Scan finished",
		"decoded", decoded,
		"admitted", admitted,
		"dropped", dropped,
		"matches", listener.matched.Load(),
		"noMatches", listener.misses.Load(),
		"errors", listener.errors.Load())

	if decodeErr != nil && ctx.Err() == nil {
		return decodeErr
	}
	if stopErr != nil {
		return stopErr
	}
	if listener.matched.Load() == 0 {
		return fmt.Errorf("no MRZ found in %s", opts.InputPath)
	}
	return nil
}

// offerWhenIdle retries the frame until the scanner admits it. It gives up
// when done reports true; the listener runs before the gate reopens, so done
// sees the outcome of the previous frame.
func offerWhenIdle(ctx context.Context, scan *scanner.Scanner, frame *processor.Frame, done func() bool) bool {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if done() {
			return false
		}
		if scan.Offer(frame) {
			return true
		}
		if scan.Stopped() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(videoCmd)

	videoCmd.Flags().StringVarP(&videoOpts.InputPath, "input", "i", "", "Video file or capture device (anything ffmpeg accepts)")
	videoCmd.Flags().Float64Var(&videoOpts.FPS, "fps", 0, "Resample the input to this rate (0 keeps the source rate)")
	videoCmd.Flags().IntVar(&videoOpts.Rotation, "rotation", 0, "Rotation of the frames in degrees")
	videoCmd.Flags().BoolVar(&videoOpts.All, "all", false, "Keep scanning after the first match")
	videoCmd.Flags().BoolVar(&videoOpts.Realtime, "realtime", false, "Pace frames at --fps and drop frames while busy, like a live camera")
}
