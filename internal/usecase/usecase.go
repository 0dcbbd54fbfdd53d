package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/vshorts/internal/domain/highlights"
	"github.com/forPelevin/vshorts/internal/domain/reframe"
	"github.com/forPelevin/vshorts/internal/domain/subtitles"
	"github.com/forPelevin/vshorts/internal/ports"
	"github.com/forPelevin/vshorts/internal/types"
)

type Deps struct {
	Video    ports.VideoTool
	ASR      ports.ASR
	LLM      ports.HighlightPicker
	Frames   ports.FrameIO
	Detector ports.FaceDetector
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	InputMP4      string
	MinHighlight  time.Duration
	MaxHighlight  time.Duration
	BurnSubtitles bool

	Tracker        reframe.Config
	DetectorParams ports.DetectorParams

	CacheDir string
	OutDir   string

	// FaceDetectionDir is handed to the reframing engine, which guarantees it
	// exists before the detector runs.
	FaceDetectionDir string

	// Seed is recorded in the manifest but drives no decision: the per-frame
	// policy is fully deterministic. Accepted for forward compatibility.
	Seed int64

	Logf     func(format string, args ...any)
	Progress func(done, total int)
}

type Result struct {
	Manifest types.Manifest
}

// EncodeOutcome is the resolved state of the compatibility re-encode stage.
// Every run ends in exactly one of the two.
type EncodeOutcome string

const (
	OutcomeReencoded EncodeOutcome = "reencoded"
	OutcomeKeptRaw   EncodeOutcome = "kept-raw"
)

// Run drives the whole short pipeline: extract audio, transcribe, pick one
// highlight, cut it, reframe it to 9:16, mux the source audio back in, and
// re-encode for compatibility.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	wav := filepath.Join(in.CacheDir, "audio.wav")
	logf("extracting audio")
	if err := u.d.Video.ExtractAudioMono16k(ctx, in.InputMP4, wav); err != nil {
		return Result{}, err
	}

	logf("transcribing")
	tr, err := u.d.ASR.Transcribe(ctx, wav, in.CacheDir)
	if err != nil {
		return Result{}, err
	}

	cands := highlights.BuildWindows(tr, in.MinHighlight, in.MaxHighlight)
	if len(cands) == 0 {
		return Result{}, fmt.Errorf("no highlight candidates in transcript")
	}
	logf("picking highlight from %d candidate windows", len(cands))
	hl, err := u.d.LLM.Pick(ctx, tr, cands, in.MinHighlight, in.MaxHighlight)
	if err != nil {
		return Result{}, err
	}
	if hl.End <= hl.Start {
		return Result{}, fmt.Errorf("highlight picker returned empty window [%s,%s]", hl.Start, hl.End)
	}
	logf("highlight: %.1fs - %.1fs", hl.Start.Seconds(), hl.End.Seconds())

	cutPath := filepath.Join(in.CacheDir, "highlight.mp4")
	if err := u.d.Video.CutClip(ctx, in.InputMP4, hl.Start, hl.End, cutPath); err != nil {
		return Result{}, err
	}

	logf("reframing to 9:16")
	croppedPath := filepath.Join(in.CacheDir, "reframed.mp4")
	rr, err := u.Reframe(ctx, ReframeInput{
		InPath:   cutPath,
		OutPath:  croppedPath,
		Tracker:  in.Tracker,
		Detector: in.DetectorParams,
		FaceDir:  in.FaceDetectionDir,
		Progress: in.Progress,
		Logf:     logf,
	})
	if err != nil {
		return Result{}, err
	}
	logf("reframed %d/%d frames", rr.FramesWritten, rr.Meta.TotalFrames)

	// The cropped stream carries no audio; pull the track back from the cut
	// clip. A mux failure downgrades to a silent deliverable, it never loses
	// the frames already produced.
	rawPath := filepath.Join(in.CacheDir, "reframed-audio.mp4")
	if err := u.d.Video.MuxAudio(ctx, cutPath, croppedPath, rawPath); err != nil {
		logf("audio mux failed, continuing without audio: %v", err)
		rawPath = croppedPath
	}

	var assPath string
	if in.BurnSubtitles {
		ass, err := subtitles.RenderShortASS(tr, hl.Start, hl.End, rr.Meta)
		if err != nil {
			return Result{}, err
		}
		assPath = filepath.Join(in.OutDir, "subtitles.ass")
		if err := os.WriteFile(assPath, []byte(ass), 0o644); err != nil {
			return Result{}, err
		}
	}

	finalPath := filepath.Join(in.OutDir, shortFileName(in.InputMP4))
	outcome, err := u.FinalizeVideo(ctx, rawPath, finalPath, assPath, logf)
	if err != nil {
		return Result{}, err
	}

	m := types.Manifest{
		Input: in.InputMP4,
		Seed:  in.Seed,
		Highlight: types.ManifestHighlight{
			StartSec: hl.Start.Seconds(),
			EndSec:   hl.End.Seconds(),
			Content:  hl.Content,
		},
		Reframe: types.ManifestReframe{
			Width:          rr.Meta.Width,
			Height:         rr.Meta.Height,
			VerticalWidth:  rr.Meta.VerticalWidth(),
			VerticalHeight: rr.Meta.VerticalHeight(),
			FPS:            rr.Meta.FPS,
			TotalFrames:    rr.Meta.TotalFrames,
			FramesWritten:  rr.FramesWritten,
			Truncated:      rr.Truncated,
		},
		Encode: string(outcome),
		File:   filepath.Base(finalPath),
	}
	if assPath != "" {
		m.Subtitles = filepath.Base(assPath)
	}
	return Result{Manifest: m}, nil
}

// FinalizeVideo runs the compatibility re-encode pass. Failure is non-fatal:
// the raw cropped stream is kept as the deliverable and the stage still
// resolves to a definite outcome.
func (u Usecase) FinalizeVideo(
	ctx context.Context,
	rawPath, finalPath, burnASS string,
	logf func(format string, args ...any),
) (EncodeOutcome, error) {
	err := u.d.Video.Reencode(ctx, rawPath, finalPath, burnASS)
	if err == nil {
		return OutcomeReencoded, nil
	}
	logf("compatibility re-encode failed, keeping raw output: %v", err)
	if err := copyFile(rawPath, finalPath); err != nil {
		return "", fmt.Errorf("keep raw output: %w", err)
	}
	return OutcomeKeptRaw, nil
}

func shortFileName(inputMP4 string) string {
	name := strings.TrimSuffix(filepath.Base(inputMP4), filepath.Ext(inputMP4))
	if name == "" {
		name = "input"
	}
	return name + "-short.mp4"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
