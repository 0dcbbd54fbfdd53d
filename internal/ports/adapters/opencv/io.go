// Package opencv adapts gocv video capture, writing and cascade face
// detection to the frame ports.
package opencv

import (
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"

	"github.com/forPelevin/vshorts/internal/ports"
	"github.com/forPelevin/vshorts/internal/types"
)

type IO struct{}

func NewIO() *IO { return &IO{} }

func (IO) OpenSource(path string) (ports.FrameSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	meta := types.StreamMeta{
		Width:       int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:      int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:         vc.Get(gocv.VideoCaptureFPS),
		TotalFrames: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		_ = vc.Close()
		return nil, fmt.Errorf("capture %s reports %dx%d", path, meta.Width, meta.Height)
	}
	return &source{cap: vc, meta: meta}, nil
}

func (IO) CreateSink(path string, meta types.StreamMeta) (ports.FrameSink, error) {
	w, err := gocv.VideoWriterFile(path, "mp4v", meta.FPS, meta.VerticalWidth(), meta.VerticalHeight(), true)
	if err != nil {
		return nil, fmt.Errorf("open writer %s: %w", path, err)
	}
	return &sink{w: w}, nil
}

type source struct {
	cap  *gocv.VideoCapture
	meta types.StreamMeta
}

func (s *source) Meta() types.StreamMeta { return s.meta }

// Read cannot tell a decoder failure from the end of the stream: OpenCV
// reports both as a failed read. Either way the stream is over, so report
// io.EOF.
func (s *source) Read() (ports.Frame, error) {
	m := gocv.NewMat()
	if ok := s.cap.Read(&m); !ok || m.Empty() {
		_ = m.Close()
		return nil, io.EOF
	}
	return &frame{mat: m}, nil
}

func (s *source) Close() error { return s.cap.Close() }

type sink struct {
	w *gocv.VideoWriter
}

func (s *sink) Write(f ports.Frame) error {
	mf, ok := f.(*frame)
	if !ok {
		return fmt.Errorf("opencv sink: unexpected frame type %T", f)
	}
	return s.w.Write(mf.mat)
}

func (s *sink) Close() error { return s.w.Close() }

type frame struct {
	mat gocv.Mat
}

func (f *frame) Size() (int, int) { return f.mat.Cols(), f.mat.Rows() }

func (f *frame) Gray() ([]uint8, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(f.mat, &gray, gocv.ColorBGRToGray)
	return gray.ToBytes(), nil
}

// Crop clones the region so the result owns its pixels and outlives the
// parent frame.
func (f *frame) Crop(xStart, xEnd int) (ports.Frame, error) {
	w := f.mat.Cols()
	if xStart < 0 || xEnd > w || xEnd <= xStart {
		return nil, fmt.Errorf("crop [%d,%d] out of bounds for width %d", xStart, xEnd, w)
	}
	region := f.mat.Region(image.Rect(xStart, 0, xEnd, f.mat.Rows()))
	defer region.Close()
	return &frame{mat: region.Clone()}, nil
}

func (f *frame) Close() error { return f.mat.Close() }
