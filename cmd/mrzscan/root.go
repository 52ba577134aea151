package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/mrz-worker/internal/config"
	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
)

// Version is the application version.
const Version = "0.1.0"

// Options holds flags shared by every subcommand
type Options struct {
	Backend            string
	Language           string
	VisionURL          string
	RecognitionTimeout time.Duration
	LogLevel           string
}

var (
	rootOpts Options
	// cfg is the environment configuration with flag overrides applied
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "mrzscan",
	Short:         "Read passport machine-readable zones from images and video",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(".env.mrz")

		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("backend") {
			cfg.OCRBackend = rootOpts.Backend
		}
		if flags.Changed("lang") {
			cfg.TesseractLanguage = rootOpts.Language
		}
		if flags.Changed("vision-url") {
			cfg.VisionOCRURL = rootOpts.VisionURL
		}
		if flags.Changed("timeout") {
			cfg.RecognitionTimeout = rootOpts.RecognitionTimeout
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = rootOpts.LogLevel
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		// results go to stdout
		logging.ConfigureOutput(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRecognizer() (processor.Recognizer, error) {
	return processor.NewRecognizer(&processor.RecognizerConfig{
		Backend:       cfg.OCRBackend,
		Language:      cfg.TesseractLanguage,
		VisionOCRURL:  cfg.VisionOCRURL,
		RemoteTimeout: cfg.VisionOCRTimeout,
	})
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootOpts.Backend, "backend", "tesseract", "OCR backend: tesseract or remote (env OCR_BACKEND)")
	flags.StringVar(&rootOpts.Language, "lang", "eng", "Tesseract language (env TESSERACT_LANGUAGE)")
	flags.StringVar(&rootOpts.VisionURL, "vision-url", "", "Vision OCR service URL for the remote backend (env VISION_OCR_URL)")
	flags.DurationVar(&rootOpts.RecognitionTimeout, "timeout", 10*time.Second, "Maximum time for one recognition, 0 to wait forever (env RECOGNITION_TIMEOUT)")
	flags.StringVar(&rootOpts.LogLevel, "log-level", "info", "Log level: debug, info, warn or error (env LOG_LEVEL)")
}
