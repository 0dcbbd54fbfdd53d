package ports

import (
	"context"
	"time"

	"github.com/forPelevin/vshorts/internal/types"
)

type VideoTool interface {
	ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error
	CutClip(ctx context.Context, inMP4 string, start, end time.Duration, outMP4 string) error
	MuxAudio(ctx context.Context, audioFromMP4, videoMP4, outMP4 string) error
	Reencode(ctx context.Context, rawMP4, outMP4 string, burnASS string) error
	ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error)
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

type HighlightPicker interface {
	Pick(
		ctx context.Context,
		tr types.Transcript,
		cands []types.Candidate,
		minHighlight time.Duration,
		maxHighlight time.Duration,
	) (types.Highlight, error)
}

// Frame is one decoded video frame. Crop must produce a full-height
// sub-frame; the parent frame stays valid until both are closed.
type Frame interface {
	Size() (width, height int)
	Gray() ([]uint8, error)
	Crop(xStart, xEnd int) (Frame, error)
	Close() error
}

// FrameSource yields frames strictly in stream order. Read returns io.EOF
// when the stream is exhausted; any other error means a mid-stream decode
// failure the caller may treat as a soft end of stream.
type FrameSource interface {
	Meta() types.StreamMeta
	Read() (Frame, error)
	Close() error
}

type FrameSink interface {
	Write(Frame) error
	Close() error
}

type FrameIO interface {
	OpenSource(path string) (FrameSource, error)
	CreateSink(path string, meta types.StreamMeta) (FrameSink, error)
}

// DetectorParams is fixed configuration owned by the engine and passed
// opaquely to detectors. Implementations map what they can and ignore the
// rest.
type DetectorParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

func DefaultDetectorParams() DetectorParams {
	return DetectorParams{ScaleFactor: 1.1, MinNeighbors: 5, MinSize: 50}
}

// FaceDetector is a stateless per-frame capability: given a frame, return
// zero or more face boxes.
type FaceDetector interface {
	Detect(frame Frame, p DetectorParams) ([]types.FaceBox, error)
}
