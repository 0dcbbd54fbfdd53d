// Package pigodetect runs face detection with the pure-Go pigo cascade,
// an alternative to the OpenCV Haar classifier that needs no extra
// native data files beyond its binary cascade.
package pigodetect

import (
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/forPelevin/vshorts/internal/ports"
	"github.com/forPelevin/vshorts/internal/types"
)

// Detections below this cluster quality are discarded. Roughly comparable
// to a Haar cascade with five neighbor votes.
const minQuality = 5.0

type Detector struct {
	classifier *pigo.Pigo
}

func New(cascadePath string) (*Detector, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("read cascade %s: %w", cascadePath, err)
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade %s: %w", cascadePath, err)
	}
	return &Detector{classifier: classifier}, nil
}

func (d *Detector) Detect(f ports.Frame, p ports.DetectorParams) ([]types.FaceBox, error) {
	w, h := f.Size()
	pixels, err := f.Gray()
	if err != nil {
		return nil, fmt.Errorf("grayscale frame: %w", err)
	}
	if len(pixels) != w*h {
		return nil, fmt.Errorf("grayscale buffer %d bytes for %dx%d frame", len(pixels), w, h)
	}

	params := pigo.CascadeParams{
		MinSize:     p.MinSize,
		MaxSize:     h,
		ShiftFactor: 0.1,
		ScaleFactor: p.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   h,
			Cols:   w,
			Dim:    w,
		},
	}
	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, 0.2)

	var boxes []types.FaceBox
	for _, det := range dets {
		if det.Q < minQuality {
			continue
		}
		// det.Scale is the full side length of the square face region.
		boxes = append(boxes, types.FaceBox{
			X:      det.Col - det.Scale/2,
			Y:      det.Row - det.Scale/2,
			Width:  det.Scale,
			Height: det.Scale,
		})
	}
	return boxes, nil
}
