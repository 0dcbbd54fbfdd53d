package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/schollz/progressbar/v3"

	"github.com/forPelevin/vshorts/internal/domain/reframe"
	"github.com/forPelevin/vshorts/internal/ports"
	"github.com/forPelevin/vshorts/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/vshorts/internal/ports/adapters/opencv"
	"github.com/forPelevin/vshorts/internal/ports/adapters/openrouter"
	"github.com/forPelevin/vshorts/internal/ports/adapters/pigodetect"
	"github.com/forPelevin/vshorts/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/vshorts/internal/usecase"
)

const (
	DetectorOpenCV = "opencv"
	DetectorPigo   = "pigo"
)

type Config struct {
	InputMP4      string
	OutDir        string
	MinHighlight  time.Duration
	MaxHighlight  time.Duration
	BurnSubtitles bool
	Logf          func(format string, args ...any)

	// Detector selects the face detection backend; CascadePath points at its
	// cascade file (Haar XML for opencv, binary pigo cascade for pigo).
	Detector    string
	CascadePath string

	Tracker reframe.Config

	// Seed is recorded in the run manifest. The reframing policy is
	// deterministic, so it changes nothing today.
	Seed int64

	// CacheDir is the base directory for local artifacts (audio, transcripts,
	// intermediate clips). If empty, defaults to ".cache".
	CacheDir string

	// FaceDetectionDir holds auxiliary detector artifacts. If empty, defaults
	// to a "faces" directory inside the run cache.
	FaceDetectionDir string

	FFmpegPath  string
	FFprobePath string

	WhisperBin   string
	WhisperModel string

	OpenRouterAPIKey       string
	OpenRouterModel        string
	OpenRouterBaseURL      string
	OpenRouterAllowedHosts []string
}

func (c Config) Validate() error {
	if c.InputMP4 == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.InputMP4); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if c.MinHighlight <= 0 {
		return fmt.Errorf("min highlight must be > 0")
	}
	if c.MaxHighlight <= 0 {
		return fmt.Errorf("max highlight must be > 0")
	}
	if c.MinHighlight > c.MaxHighlight {
		return fmt.Errorf("min highlight must be <= max highlight")
	}
	if err := c.Tracker.Validate(); err != nil {
		return err
	}
	switch c.Detector {
	case DetectorOpenCV, DetectorPigo:
	default:
		return fmt.Errorf("unknown detector %q", c.Detector)
	}
	if c.CascadePath == "" {
		return fmt.Errorf("cascade path is required")
	}
	if c.WhisperModel == "" {
		return fmt.Errorf("whisper model path is required")
	}
	return openrouter.ValidateBaseURL(
		c.OpenRouterBaseURL,
		c.OpenRouterAllowedHosts,
	)
}

func Run(ctx context.Context, cfg Config) error {
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	// adapters
	v := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	asr := whispercpp.New(cfg.WhisperBin, cfg.WhisperModel)
	llm := openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterBaseURL)

	detector, closeDetector, err := buildDetector(cfg.Detector, cfg.CascadePath)
	if err != nil {
		return err
	}
	defer closeDetector()

	uc := usecase.New(usecase.Deps{
		Video:    v,
		ASR:      asr,
		LLM:      llm,
		Frames:   opencv.NewIO(),
		Detector: detector,
	})

	jobID := hash(cfg.InputMP4)
	baseCache := cfg.CacheDir
	if baseCache == "" {
		baseCache = ".cache"
	}
	cacheDir := filepath.Join(baseCache, "runs", jobID)
	logf("preparing workspace")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return err
	}
	logf("cache: %s", cacheDir)

	faceDir := cfg.FaceDetectionDir
	if faceDir == "" {
		faceDir = filepath.Join(cacheDir, "faces")
	}

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runOutDir := buildRunOutDir(outDir, cfg.InputMP4, time.Now().UTC())
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return err
	}
	logf("output run dir: %s", runOutDir)

	res, err := uc.Run(ctx, usecase.Input{
		InputMP4:         cfg.InputMP4,
		MinHighlight:     cfg.MinHighlight,
		MaxHighlight:     cfg.MaxHighlight,
		BurnSubtitles:    cfg.BurnSubtitles,
		Tracker:          cfg.Tracker,
		DetectorParams:   ports.DefaultDetectorParams(),
		CacheDir:         cacheDir,
		OutDir:           runOutDir,
		FaceDetectionDir: faceDir,
		Seed:             cfg.Seed,
		Logf:             logf,
		Progress:         frameProgress(),
	})
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(res.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(runOutDir, "manifest.json")
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return err
	}
	logf("manifest written: %s", manifestPath)
	return nil
}

func buildDetector(kind, cascadePath string) (ports.FaceDetector, func(), error) {
	switch kind {
	case DetectorPigo:
		d, err := pigodetect.New(cascadePath)
		if err != nil {
			return nil, nil, err
		}
		return d, func() {}, nil
	default:
		d, err := opencv.NewCascadeDetector(cascadePath)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	}
}

// frameProgress draws a terminal bar over the reframing loop. The bar is
// created on the first callback, once the frame total is known.
func frameProgress() func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("reframing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	}
}

func buildRunOutDir(outRoot, inputMP4 string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(inputMP4), filepath.Ext(inputMP4))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", inputMP4, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.HighlightPicker = (*openrouter.Adapter)(nil)
var _ ports.FrameIO = (*opencv.IO)(nil)
var _ ports.FaceDetector = (*opencv.CascadeDetector)(nil)
var _ ports.FaceDetector = (*pigodetect.Detector)(nil)
