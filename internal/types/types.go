package types

import (
	"errors"
	"time"
)

// Fatal pre-processing failures of the reframing engine. Everything else the
// engine recovers from locally and reports as a warning.
var (
	ErrStreamOpen = errors.New("cannot open video stream")
	ErrDimension  = errors.New("source too narrow for vertical crop")
)

type Transcript struct {
	Segments []Segment `json:"segments"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Candidate is a continuous transcript window considered for the short.
type Candidate struct {
	Start time.Duration
	End   time.Duration
	Text  string

	Score float64
}

// Highlight is the single continuous window the LLM picked for the short.
type Highlight struct {
	Start   time.Duration
	End     time.Duration
	Content string
}

// FaceBox is one detector-reported rectangle in source-frame pixel
// coordinates. Boxes are produced fresh per frame and carry no identity
// across frames.
type FaceBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (b FaceBox) CenterX() float64 { return float64(b.X) + float64(b.Width)/2 }
func (b FaceBox) CenterY() float64 { return float64(b.Y) + float64(b.Height)/2 }

// CropWindow is the horizontal pixel range extracted from a source frame.
// Vertical bounds are always the full source height.
type CropWindow struct {
	XStart int
	XEnd   int
}

func (w CropWindow) Width() int { return w.XEnd - w.XStart }

// StreamMeta is read once when a stream is opened and is immutable for the
// run. FPS travels here and on results, never in shared state.
type StreamMeta struct {
	Width       int
	Height      int
	FPS         float64
	TotalFrames int
}

// VerticalWidth is the 9:16 crop width derived from the source height.
func (m StreamMeta) VerticalWidth() int  { return m.Height * 9 / 16 }
func (m StreamMeta) VerticalHeight() int { return m.Height }

type Manifest struct {
	Input     string            `json:"input"`
	Seed      int64             `json:"seed,omitempty"`
	Highlight ManifestHighlight `json:"highlight"`
	Reframe   ManifestReframe   `json:"reframe"`
	Encode    string            `json:"encode"`
	File      string            `json:"file"`
	Subtitles string            `json:"subtitles,omitempty"`
}

type ManifestHighlight struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Content  string  `json:"content,omitempty"`
}

type ManifestReframe struct {
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	VerticalWidth  int     `json:"vertical_width"`
	VerticalHeight int     `json:"vertical_height"`
	FPS            float64 `json:"fps"`
	TotalFrames    int     `json:"total_frames"`
	FramesWritten  int     `json:"frames_written"`
	Truncated      bool    `json:"truncated,omitempty"`
}
