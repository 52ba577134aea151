package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/mrz"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
	"github.com/adverant/nexus/mrz-worker/internal/scanner"
)

// imageResult is one line of `mrzscan image` output
type imageResult struct {
	File    string      `json:"file"`
	Matched bool        `json:"matched"`
	Format  mrz.Format  `json:"format,omitempty"`
	Record  *mrz.Record `json:"record,omitempty"`
	Error   string      `json:"error,omitempty"`
}

var imageCmd = &cobra.Command{
	Use:   "image <file>...",
	Short: "Read the MRZ of one or more still images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recognizer, err := newRecognizer()
		if err != nil {
			return err
		}
		defer recognizer.Close()

		failed := scanImages(cmd.Context(), recognizer, args, cmd.OutOrStdout(), logging.NewLogger("MRZSCAN"))
		if failed > 0 {
			return fmt.Errorf("%d of %d images failed", failed, len(args))
		}
		return nil
	},
}

// scanImages writes one JSON line per file and returns how many failed
func scanImages(ctx context.Context, recognizer processor.Recognizer, files []string, out io.Writer, logger *logging.Logger) int {
	enc := json.NewEncoder(out)
	failed := 0

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}

		res := scanFile(ctx, recognizer, file)
		if res.Error != "" {
			failed++
			logger.Warn("Image scan failed", "file", file, "error", res.Error)
		}
		if err := enc.Encode(res); err != nil {
			logger.Error("Failed to write result", "error", err)
			return failed + 1
		}
	}
	return failed
}

func scanFile(ctx context.Context, recognizer processor.Recognizer, file string) imageResult {
	res := imageResult{File: file}

	data, err := os.ReadFile(file)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	frame := processor.NewFrame(data, 0, 0, 0)
	frame.ID = filepath.Base(file)

	if cfg.RecognitionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RecognitionTimeout)
		defer cancel()
	}

	record, match, err := scanner.ScanImage(ctx, recognizer, frame)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if match.Matched() {
		res.Matched = true
		res.Format = match.Format
		res.Record = &record
	}
	return res
}

func init() {
	rootCmd.AddCommand(imageCmd)
}
