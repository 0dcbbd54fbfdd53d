package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/forPelevin/vshorts/internal/domain/reframe"
	"github.com/forPelevin/vshorts/internal/ports"
	"github.com/forPelevin/vshorts/internal/types"
)

type fakeFrame struct {
	w, h int
	// badCrop makes the next Crop return a frame one pixel too narrow,
	// simulating a decoder/view glitch the engine must absorb.
	badCrop bool
}

func (f *fakeFrame) Size() (int, int) { return f.w, f.h }

func (f *fakeFrame) Gray() ([]uint8, error) { return make([]uint8, f.w*f.h), nil }

func (f *fakeFrame) Crop(xStart, xEnd int) (ports.Frame, error) {
	if xStart < 0 || xEnd > f.w || xEnd <= xStart {
		return nil, fmt.Errorf("crop [%d,%d] out of bounds for width %d", xStart, xEnd, f.w)
	}
	w := xEnd - xStart
	if f.badCrop {
		f.badCrop = false
		w--
	}
	return &fakeFrame{w: w, h: f.h}, nil
}

func (f *fakeFrame) Close() error { return nil }

type fakeSource struct {
	meta      types.StreamMeta
	failAt    int // frame index whose read fails; -1 for never
	badCropAt int // frame whose first crop misbehaves; -1 for never
	reads     int
	closed    bool
}

func (s *fakeSource) Meta() types.StreamMeta { return s.meta }

func (s *fakeSource) Read() (ports.Frame, error) {
	i := s.reads
	s.reads++
	if s.failAt >= 0 && i == s.failAt {
		return nil, fmt.Errorf("decode failure at frame %d", i)
	}
	if i >= s.meta.TotalFrames {
		return nil, io.EOF
	}
	fr := &fakeFrame{w: s.meta.Width, h: s.meta.Height}
	if s.badCropAt >= 0 && i == s.badCropAt {
		fr.badCrop = true
	}
	return fr, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeSink struct {
	sizes  [][2]int
	failAt int // write index that fails; -1 for never
	closed bool
}

func (s *fakeSink) Write(f ports.Frame) error {
	if s.failAt >= 0 && len(s.sizes) == s.failAt {
		return fmt.Errorf("write failure")
	}
	w, h := f.Size()
	s.sizes = append(s.sizes, [2]int{w, h})
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

type fakeIO struct {
	src     *fakeSource
	sink    *fakeSink
	openErr error
	sinks   int
}

func (f *fakeIO) OpenSource(string) (ports.FrameSource, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.src, nil
}

func (f *fakeIO) CreateSink(string, types.StreamMeta) (ports.FrameSink, error) {
	f.sinks++
	return f.sink, nil
}

type scriptedDetector struct {
	fn     func(frameIdx int) ([]types.FaceBox, error)
	params []ports.DetectorParams
	calls  int
}

func (d *scriptedDetector) Detect(_ ports.Frame, p ports.DetectorParams) ([]types.FaceBox, error) {
	i := d.calls
	d.calls++
	d.params = append(d.params, p)
	if d.fn == nil {
		return nil, nil
	}
	return d.fn(i)
}

func engineMeta(totalFrames int) types.StreamMeta {
	return types.StreamMeta{Width: 1920, Height: 1080, FPS: 30, TotalFrames: totalFrames}
}

func newEngine(src *fakeSource, sink *fakeSink, det ports.FaceDetector) (Usecase, *fakeIO) {
	fio := &fakeIO{src: src, sink: sink}
	return New(Deps{Frames: fio, Detector: det}), fio
}

func defaultInput() ReframeInput {
	return ReframeInput{
		InPath:   "in.mp4",
		OutPath:  "out.mp4",
		Tracker:  reframe.DefaultConfig(),
		Detector: ports.DefaultDetectorParams(),
	}
}

func TestReframe_DimensionInvariant(t *testing.T) {
	t.Parallel()

	meta := engineMeta(30)
	src := &fakeSource{meta: meta, failAt: -1, badCropAt: -1}
	sink := &fakeSink{failAt: -1}
	face := types.FaceBox{X: 300, Y: 200, Width: 80, Height: 80}
	u, _ := newEngine(src, sink, &scriptedDetector{fn: func(int) ([]types.FaceBox, error) {
		return []types.FaceBox{face}, nil
	}})

	in := defaultInput()
	in.FaceDir = filepath.Join(t.TempDir(), "faces")
	res, err := u.Reframe(context.Background(), in)
	if err != nil {
		t.Fatalf("reframe: %v", err)
	}
	if res.FramesWritten != 30 || res.Truncated {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := os.Stat(in.FaceDir); err != nil {
		t.Fatalf("face detection dir not created: %v", err)
	}
	vw, vh := meta.VerticalWidth(), meta.VerticalHeight()
	for i, sz := range sink.sizes {
		if sz[0] != vw || sz[1] != vh {
			t.Fatalf("frame %d: output %dx%d, want %dx%d", i, sz[0], sz[1], vw, vh)
		}
	}
	if !sink.closed || !src.closed {
		t.Fatalf("source/sink not closed: src=%v sink=%v", src.closed, sink.closed)
	}
}

func TestReframe_SourceTooNarrow(t *testing.T) {
	t.Parallel()

	// 500 wide but 1080 tall: the 9:16 crop needs 607 columns.
	meta := types.StreamMeta{Width: 500, Height: 1080, FPS: 30, TotalFrames: 10}
	src := &fakeSource{meta: meta, failAt: -1, badCropAt: -1}
	sink := &fakeSink{failAt: -1}
	u, fio := newEngine(src, sink, &scriptedDetector{})

	_, err := u.Reframe(context.Background(), defaultInput())
	if !errors.Is(err, types.ErrDimension) {
		t.Fatalf("expected ErrDimension, got %v", err)
	}
	if fio.sinks != 0 {
		t.Fatalf("sink created before dimension check")
	}
	if src.reads != 0 {
		t.Fatalf("frames read despite fatal dimension error")
	}
}

func TestReframe_OpenFailure(t *testing.T) {
	t.Parallel()

	fio := &fakeIO{openErr: fmt.Errorf("no such file")}
	u := New(Deps{Frames: fio, Detector: &scriptedDetector{}})

	_, err := u.Reframe(context.Background(), defaultInput())
	if !errors.Is(err, types.ErrStreamOpen) {
		t.Fatalf("expected ErrStreamOpen, got %v", err)
	}
}

func TestReframe_EarlyStopOnReadFailure(t *testing.T) {
	t.Parallel()

	src := &fakeSource{meta: engineMeta(100), failAt: 42, badCropAt: -1}
	sink := &fakeSink{failAt: -1}
	u, _ := newEngine(src, sink, &scriptedDetector{})

	res, err := u.Reframe(context.Background(), defaultInput())
	if err != nil {
		t.Fatalf("mid-stream read failure must not be fatal, got %v", err)
	}
	if res.FramesWritten != 42 {
		t.Fatalf("frames written = %d, want 42", res.FramesWritten)
	}
	if !res.Truncated {
		t.Fatal("expected truncated result")
	}
	if !sink.closed {
		t.Fatal("sink must be finalized after early stop")
	}
}

func TestReframe_BadCropSubstitutesCentered(t *testing.T) {
	t.Parallel()

	meta := engineMeta(10)
	src := &fakeSource{meta: meta, failAt: -1, badCropAt: 5}
	sink := &fakeSink{failAt: -1}
	u, _ := newEngine(src, sink, &scriptedDetector{})

	var warned bool
	in := defaultInput()
	in.Logf = func(string, ...any) { warned = true }
	res, err := u.Reframe(context.Background(), in)
	if err != nil {
		t.Fatalf("reframe: %v", err)
	}
	if res.FramesWritten != 10 {
		t.Fatalf("frames written = %d, want 10", res.FramesWritten)
	}
	vw := meta.VerticalWidth()
	for i, sz := range sink.sizes {
		if sz[0] != vw {
			t.Fatalf("frame %d: width %d leaked through, want %d", i, sz[0], vw)
		}
	}
	if !warned {
		t.Fatal("expected a warning for the substituted frame")
	}
}

func TestReframe_DetectorErrorFallsBackToCentered(t *testing.T) {
	t.Parallel()

	meta := engineMeta(5)
	src := &fakeSource{meta: meta, failAt: -1, badCropAt: -1}
	sink := &fakeSink{failAt: -1}
	u, _ := newEngine(src, sink, &scriptedDetector{fn: func(int) ([]types.FaceBox, error) {
		return nil, fmt.Errorf("model exploded")
	}})

	res, err := u.Reframe(context.Background(), defaultInput())
	if err != nil {
		t.Fatalf("detector failure must not be fatal, got %v", err)
	}
	if res.FramesWritten != 5 || res.Truncated {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestReframe_WriteFailureStopsEarly(t *testing.T) {
	t.Parallel()

	src := &fakeSource{meta: engineMeta(20), failAt: -1, badCropAt: -1}
	sink := &fakeSink{failAt: 7}
	u, _ := newEngine(src, sink, &scriptedDetector{})

	res, err := u.Reframe(context.Background(), defaultInput())
	if err != nil {
		t.Fatalf("write failure must finalize, got %v", err)
	}
	if res.FramesWritten != 7 || !res.Truncated {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestReframe_CancellationFinalizesPartialOutput(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{meta: engineMeta(100), failAt: -1, badCropAt: -1}
	sink := &fakeSink{failAt: -1}
	u, _ := newEngine(src, sink, &scriptedDetector{fn: func(i int) ([]types.FaceBox, error) {
		if i == 5 {
			cancel()
		}
		return nil, nil
	}})

	res, err := u.Reframe(ctx, defaultInput())
	if err != nil {
		t.Fatalf("cancellation must finalize, got %v", err)
	}
	// Frame 5 completes before the next iteration observes the cancel.
	if res.FramesWritten != 6 || !res.Truncated {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !sink.closed {
		t.Fatal("sink must be finalized after cancellation")
	}
}

func TestReframe_DetectorParamsPassedThrough(t *testing.T) {
	t.Parallel()

	src := &fakeSource{meta: engineMeta(3), failAt: -1, badCropAt: -1}
	det := &scriptedDetector{}
	u, _ := newEngine(src, &fakeSink{failAt: -1}, det)

	in := defaultInput()
	if _, err := u.Reframe(context.Background(), in); err != nil {
		t.Fatalf("reframe: %v", err)
	}
	want := ports.DefaultDetectorParams()
	for i, p := range det.params {
		if p != want {
			t.Fatalf("call %d: detector params %+v, want %+v", i, p, want)
		}
	}
	if det.calls != 3 {
		t.Fatalf("detector called %d times, want 3", det.calls)
	}
}

func TestReframe_ProgressReported(t *testing.T) {
	t.Parallel()

	src := &fakeSource{meta: engineMeta(4), failAt: -1, badCropAt: -1}
	u, _ := newEngine(src, &fakeSink{failAt: -1}, &scriptedDetector{})

	var got [][2]int
	in := defaultInput()
	in.Progress = func(done, total int) { got = append(got, [2]int{done, total}) }
	if _, err := u.Reframe(context.Background(), in); err != nil {
		t.Fatalf("reframe: %v", err)
	}
	if len(got) != 4 || got[3] != [2]int{4, 4} {
		t.Fatalf("unexpected progress calls: %v", got)
	}
}
