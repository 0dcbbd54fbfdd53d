package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/vshorts/internal/domain/reframe"
	"github.com/forPelevin/vshorts/internal/pipeline"
)

const minHighlight = 15 * time.Second

func run(cmd *cobra.Command, input string) error {
	outDir, _ := cmd.Flags().GetString("out")
	burnSubs, _ := cmd.Flags().GetBool("burn-subtitles")
	detector, _ := cmd.Flags().GetString("detector")
	cascade, _ := cmd.Flags().GetString("cascade")
	smoothing, _ := cmd.Flags().GetFloat64("smoothing")
	minMovement, _ := cmd.Flags().GetInt("min-movement")
	maxSec, _ := cmd.Flags().GetInt("max")
	seed, _ := cmd.Flags().GetInt64("seed")

	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return errors.New("OPENROUTER_API_KEY is required (set it in .env)")
	}

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Hour)
	defer cancel()

	cfg := pipeline.Config{
		InputMP4:      absIn,
		OutDir:        outDir,
		MinHighlight:  minHighlight,
		MaxHighlight:  time.Duration(maxSec) * time.Second,
		BurnSubtitles: burnSubs,

		Detector:    detector,
		CascadePath: cascade,
		Tracker: reframe.Config{
			SmoothingFactor: smoothing,
			MinMovement:     float64(minMovement),
		},
		Seed: seed,

		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",

		WhisperBin:   ".cache/bin/whisper.cpp",
		WhisperModel: ".cache/models/ggml-base.bin",

		OpenRouterAPIKey:       apiKey,
		OpenRouterModel:        getenvDefault("OPENROUTER_MODEL", "z-ai/glm-4.5-air:free"),
		OpenRouterBaseURL:      getenvDefault("OPENROUTER_BASE_URL", "https://openrouter.ai"),
		OpenRouterAllowedHosts: splitHosts(os.Getenv("OPENROUTER_ALLOWED_HOSTS")),

		Logf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		},
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return pipeline.Run(ctx, cfg)
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func splitHosts(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
