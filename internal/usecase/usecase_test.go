package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forPelevin/vshorts/internal/domain/reframe"
	"github.com/forPelevin/vshorts/internal/ports"
	"github.com/forPelevin/vshorts/internal/types"
)

type fakeVideoTool struct {
	muxErr      error
	reencodeErr error

	cutOut      []string
	muxVideoIn  []string
	reencodeRaw []string
	reencodeASS []string
}

func (f *fakeVideoTool) ExtractAudioMono16k(_ context.Context, _, _ string) error { return nil }

func (f *fakeVideoTool) CutClip(_ context.Context, _ string, _, _ time.Duration, outMP4 string) error {
	f.cutOut = append(f.cutOut, outMP4)
	return nil
}

func (f *fakeVideoTool) MuxAudio(_ context.Context, _, videoMP4, _ string) error {
	f.muxVideoIn = append(f.muxVideoIn, videoMP4)
	return f.muxErr
}

func (f *fakeVideoTool) Reencode(_ context.Context, rawMP4, _ string, burnASS string) error {
	f.reencodeRaw = append(f.reencodeRaw, rawMP4)
	f.reencodeASS = append(f.reencodeASS, burnASS)
	return f.reencodeErr
}

func (f *fakeVideoTool) ProbeDuration(_ context.Context, _ string) (time.Duration, error) {
	return 0, nil
}

type fakeASR struct{ tr types.Transcript }

func (f fakeASR) Transcribe(_ context.Context, _, _ string) (types.Transcript, error) {
	return f.tr, nil
}

type fakePicker struct {
	hl  types.Highlight
	err error
}

func (f fakePicker) Pick(
	_ context.Context,
	_ types.Transcript,
	_ []types.Candidate,
	_ time.Duration,
	_ time.Duration,
) (types.Highlight, error) {
	return f.hl, f.err
}

func pipelineTranscript() types.Transcript {
	return types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 8, Text: "Welcome back to the channel.", Words: []types.Word{
			{Start: 0.2, End: 0.6, Word: "Welcome"},
			{Start: 0.6, End: 0.9, Word: "back"},
		}},
		{Start: 8, End: 17, Text: "Here is why step 1 is important.", Words: []types.Word{
			{Start: 8.1, End: 8.4, Word: "Here"},
			{Start: 8.4, End: 8.7, Word: "is"},
			{Start: 8.7, End: 9.1, Word: "why"},
		}},
		{Start: 17, End: 26, Text: "Never skip the warmup."},
		{Start: 26, End: 40, Text: "And that is all for today."},
	}}
}

func pipelineDeps(video *fakeVideoTool, picker fakePicker, frames int) Deps {
	src := &fakeSource{meta: engineMeta(frames), failAt: -1, badCropAt: -1}
	return Deps{
		Video:    video,
		ASR:      fakeASR{tr: pipelineTranscript()},
		LLM:      picker,
		Frames:   &fakeIO{src: src, sink: &fakeSink{failAt: -1}},
		Detector: &scriptedDetector{},
	}
}

func pipelineInput(tmp string, burn bool) Input {
	return Input{
		InputMP4:       filepath.Join(tmp, "in.mp4"),
		MinHighlight:   10 * time.Second,
		MaxHighlight:   60 * time.Second,
		BurnSubtitles:  burn,
		Tracker:        reframe.DefaultConfig(),
		DetectorParams: ports.DefaultDetectorParams(),
		CacheDir:       filepath.Join(tmp, "cache"),
		OutDir:         tmp,
	}
}

func TestRun_BurnSubtitlesToggle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		burn bool
	}{
		{name: "disabled", burn: false},
		{name: "enabled", burn: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tmp := t.TempDir()
			video := &fakeVideoTool{}
			picker := fakePicker{hl: types.Highlight{Start: 8 * time.Second, End: 26 * time.Second, Content: "warmup"}}
			uc := New(pipelineDeps(video, picker, 30))

			res, err := uc.Run(context.Background(), pipelineInput(tmp, tc.burn))
			if err != nil {
				t.Fatalf("run: %v", err)
			}

			m := res.Manifest
			if m.Highlight.StartSec != 8 || m.Highlight.EndSec != 26 {
				t.Fatalf("unexpected highlight window: %+v", m.Highlight)
			}
			if m.Reframe.FramesWritten != 30 || m.Reframe.VerticalWidth != 607 {
				t.Fatalf("unexpected reframe stats: %+v", m.Reframe)
			}
			if m.Encode != string(OutcomeReencoded) {
				t.Fatalf("encode outcome = %q, want %q", m.Encode, OutcomeReencoded)
			}
			if m.File != "in-short.mp4" {
				t.Fatalf("unexpected output file name: %q", m.File)
			}

			assPath := filepath.Join(tmp, "subtitles.ass")
			if tc.burn {
				if m.Subtitles != "subtitles.ass" {
					t.Fatalf("manifest subtitles = %q", m.Subtitles)
				}
				if _, err := os.Stat(assPath); err != nil {
					t.Fatalf("subtitles file missing: %v", err)
				}
				if len(video.reencodeASS) != 1 || video.reencodeASS[0] == "" {
					t.Fatalf("expected re-encode to burn subtitles, got %v", video.reencodeASS)
				}
			} else {
				if m.Subtitles != "" {
					t.Fatalf("unexpected manifest subtitles: %q", m.Subtitles)
				}
				if _, err := os.Stat(assPath); !os.IsNotExist(err) {
					t.Fatalf("unexpected subtitles file, stat err=%v", err)
				}
			}
		})
	}
}

func TestRun_MuxFailureKeepsSilentVideo(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	video := &fakeVideoTool{muxErr: fmt.Errorf("no audio track")}
	picker := fakePicker{hl: types.Highlight{Start: 8 * time.Second, End: 26 * time.Second}}
	uc := New(pipelineDeps(video, picker, 10))

	res, err := uc.Run(context.Background(), pipelineInput(tmp, false))
	if err != nil {
		t.Fatalf("mux failure must not be fatal: %v", err)
	}
	if len(video.reencodeRaw) != 1 {
		t.Fatalf("expected one re-encode call, got %d", len(video.reencodeRaw))
	}
	// The silent cropped stream is promoted to the deliverable.
	if want := filepath.Join(tmp, "cache", "reframed.mp4"); video.reencodeRaw[0] != want {
		t.Fatalf("re-encode input = %q, want %q", video.reencodeRaw[0], want)
	}
	if res.Manifest.Encode != string(OutcomeReencoded) {
		t.Fatalf("encode outcome = %q", res.Manifest.Encode)
	}
}

func TestRun_EmptyHighlightWindowFails(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	video := &fakeVideoTool{}
	uc := New(pipelineDeps(video, fakePicker{}, 10))

	if _, err := uc.Run(context.Background(), pipelineInput(tmp, false)); err == nil {
		t.Fatal("expected error for empty highlight window")
	}
	if len(video.cutOut) != 0 {
		t.Fatal("cut must not run without a highlight")
	}
}

func TestFinalizeVideo_Outcomes(t *testing.T) {
	t.Parallel()

	t.Run("reencoded", func(t *testing.T) {
		t.Parallel()

		u := New(Deps{Video: &fakeVideoTool{}})
		outcome, err := u.FinalizeVideo(context.Background(), "raw.mp4", "final.mp4", "", func(string, ...any) {})
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if outcome != OutcomeReencoded {
			t.Fatalf("outcome = %q, want %q", outcome, OutcomeReencoded)
		}
	})

	t.Run("kept raw on reencode failure", func(t *testing.T) {
		t.Parallel()

		tmp := t.TempDir()
		raw := filepath.Join(tmp, "raw.mp4")
		final := filepath.Join(tmp, "final.mp4")
		if err := os.WriteFile(raw, []byte("frames"), 0o644); err != nil {
			t.Fatal(err)
		}

		u := New(Deps{Video: &fakeVideoTool{reencodeErr: errors.New("codec missing")}})
		outcome, err := u.FinalizeVideo(context.Background(), raw, final, "", func(string, ...any) {})
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if outcome != OutcomeKeptRaw {
			t.Fatalf("outcome = %q, want %q", outcome, OutcomeKeptRaw)
		}
		b, err := os.ReadFile(final)
		if err != nil {
			t.Fatalf("raw deliverable missing: %v", err)
		}
		if string(b) != "frames" {
			t.Fatalf("deliverable content mismatch: %q", b)
		}
		if _, err := os.Stat(raw); err != nil {
			t.Fatalf("raw file must be preserved: %v", err)
		}
	})
}
