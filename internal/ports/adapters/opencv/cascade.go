package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/forPelevin/vshorts/internal/ports"
	"github.com/forPelevin/vshorts/internal/types"
)

// CascadeDetector runs a Haar cascade over full frames. Not safe for
// concurrent use; the engine calls it from a single goroutine.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
}

func NewCascadeDetector(cascadePath string) (*CascadeDetector, error) {
	c := gocv.NewCascadeClassifier()
	if !c.Load(cascadePath) {
		_ = c.Close()
		return nil, fmt.Errorf("load cascade %s", cascadePath)
	}
	return &CascadeDetector{classifier: c}, nil
}

func (d *CascadeDetector) Detect(f ports.Frame, p ports.DetectorParams) ([]types.FaceBox, error) {
	mf, ok := f.(*frame)
	if !ok {
		return nil, fmt.Errorf("cascade detector: unexpected frame type %T", f)
	}
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mf.mat, &gray, gocv.ColorBGRToGray)

	rects := d.classifier.DetectMultiScaleWithParams(
		gray,
		p.ScaleFactor,
		p.MinNeighbors,
		0,
		image.Pt(p.MinSize, p.MinSize),
		image.Pt(0, 0),
	)
	if len(rects) == 0 {
		return nil, nil
	}
	boxes := make([]types.FaceBox, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, types.FaceBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()})
	}
	return boxes, nil
}

func (d *CascadeDetector) Close() error { return d.classifier.Close() }
