package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/forPelevin/vshorts/internal/domain/reframe"
	"github.com/forPelevin/vshorts/internal/ports"
	"github.com/forPelevin/vshorts/internal/types"
)

type ReframeInput struct {
	InPath  string
	OutPath string

	Tracker  reframe.Config
	Detector ports.DetectorParams

	// FaceDir, if set, is created before processing starts. Detector backends
	// may persist auxiliary artifacts there; the engine itself writes nothing
	// to it.
	FaceDir string

	// Progress, if set, is called after every written frame.
	Progress func(done, total int)
	Logf     func(format string, args ...any)
}

type ReframeResult struct {
	Meta          types.StreamMeta
	FramesWritten int
	// Truncated marks a run that stopped before TotalFrames (mid-stream read
	// failure or cancellation). The output written so far is still valid.
	Truncated bool
}

// Reframe runs the frame-by-frame crop loop: read, detect, track, crop,
// write. Processing is strictly sequential; the tracker's output for a frame
// depends on its own output for the previous one.
//
// Only a failed stream open or a source narrower than the target crop abort
// without output. Everything after the first frame resolves to partial
// output at worst: read failures and cancellation finalize early, detector
// errors degrade to a centered frame, and a cropped sub-frame of the wrong
// size is replaced by the exact centered crop.
func (u Usecase) Reframe(ctx context.Context, in ReframeInput) (ReframeResult, error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	if in.FaceDir != "" {
		if err := os.MkdirAll(in.FaceDir, 0o755); err != nil {
			return ReframeResult{}, fmt.Errorf("create face detection dir: %w", err)
		}
	}

	src, err := u.d.Frames.OpenSource(in.InPath)
	if err != nil {
		return ReframeResult{}, fmt.Errorf("%w: %s: %v", types.ErrStreamOpen, in.InPath, err)
	}
	defer src.Close()

	meta := src.Meta()
	vw, vh := meta.VerticalWidth(), meta.VerticalHeight()
	if meta.Width < vw {
		return ReframeResult{}, fmt.Errorf("%w: source width %d < vertical width %d",
			types.ErrDimension, meta.Width, vw)
	}

	sink, err := u.d.Frames.CreateSink(in.OutPath, meta)
	if err != nil {
		return ReframeResult{}, fmt.Errorf("%w: %s: %v", types.ErrStreamOpen, in.OutPath, err)
	}

	tracker := reframe.NewTracker(meta, in.Tracker)
	res := ReframeResult{Meta: meta}

	for i := 0; i < meta.TotalFrames; i++ {
		if ctx.Err() != nil {
			logf("reframe cancelled at frame %d/%d, finalizing partial output", i, meta.TotalFrames)
			res.Truncated = true
			break
		}

		frame, err := src.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logf("frame %d/%d: read failed, finalizing early: %v", i, meta.TotalFrames, err)
			}
			res.Truncated = true
			break
		}

		faces, err := u.d.Detector.Detect(frame, in.Detector)
		if err != nil {
			logf("frame %d: face detection failed, falling back to centered crop: %v", i, err)
			faces = nil
		}

		win := tracker.Update(faces)
		cropped := cropChecked(frame, win, vw, vh)
		if cropped == nil {
			// Never propagate a bad sub-frame; substitute the exact centered
			// window for this frame.
			logf("frame %d: crop %+v produced wrong dimensions, substituting centered crop", i, win)
			cropped = cropChecked(frame, reframe.Centered(meta), vw, vh)
		}
		if cropped == nil {
			frame.Close()
			logf("frame %d: centered crop failed, finalizing early", i)
			res.Truncated = true
			break
		}

		werr := sink.Write(cropped)
		cropped.Close()
		frame.Close()
		if werr != nil {
			logf("frame %d: write failed, finalizing early: %v", i, werr)
			res.Truncated = true
			break
		}

		res.FramesWritten++
		if in.Progress != nil {
			in.Progress(res.FramesWritten, meta.TotalFrames)
		}
	}

	if err := sink.Close(); err != nil {
		return res, fmt.Errorf("finalize cropped stream: %w", err)
	}
	return res, nil
}

// cropChecked extracts win from frame and verifies the result matches the
// target dimensions exactly. Returns nil on any mismatch.
func cropChecked(frame ports.Frame, win types.CropWindow, vw, vh int) ports.Frame {
	cropped, err := frame.Crop(win.XStart, win.XEnd)
	if err != nil || cropped == nil {
		return nil
	}
	if w, h := cropped.Size(); w != vw || h != vh {
		cropped.Close()
		return nil
	}
	return cropped
}
