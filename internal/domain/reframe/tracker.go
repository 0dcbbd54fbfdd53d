// Package reframe holds the crop-window policy for converting a
// horizontally-framed video into a 9:16 vertical one. A Tracker follows the
// detected speaker(s) with a smoothed horizontal center; the engine extracts
// one full-height crop window per frame from it.
package reframe

import (
	"fmt"
	"math"

	"github.com/forPelevin/vshorts/internal/types"
)

type Config struct {
	// SmoothingFactor is the fraction of the distance to the target center
	// covered per frame (EMA weight).
	SmoothingFactor float64
	// MinMovement is the dead zone in pixels: target shifts smaller than this
	// leave the tracked center untouched, suppressing micro-jitter.
	MinMovement float64
}

func DefaultConfig() Config {
	return Config{SmoothingFactor: 0.15, MinMovement: 3}
}

func (c Config) Validate() error {
	if c.SmoothingFactor <= 0 || c.SmoothingFactor >= 1 {
		return fmt.Errorf("smoothing factor must be in (0,1), got %v", c.SmoothingFactor)
	}
	if c.MinMovement < 0 {
		return fmt.Errorf("min movement must be >= 0, got %v", c.MinMovement)
	}
	return nil
}

// Tracker owns the only state carried across frames: the current horizontal
// crop center. One Tracker serves exactly one stream pass.
type Tracker struct {
	cfg     Config
	meta    types.StreamMeta
	centerX float64
}

func NewTracker(meta types.StreamMeta, cfg Config) *Tracker {
	return &Tracker{
		cfg:     cfg,
		meta:    meta,
		centerX: float64(meta.Width) / 2,
	}
}

// CenterX reports the current smoothed crop center.
func (t *Tracker) CenterX() float64 { return t.centerX }

// Centered is the exact centered crop window for a stream, used both for the
// face-count reset policy and as the engine's substitute for a bad crop.
func Centered(meta types.StreamMeta) types.CropWindow {
	vw := meta.VerticalWidth()
	xStart := (meta.Width - vw) / 2
	return types.CropWindow{XStart: xStart, XEnd: xStart + vw}
}

// Update classifies the frame by face count and derives its crop window,
// mutating the tracked center.
//
// Zero faces or three and more reset the center to the frame midpoint
// immediately (not smoothed into) and return the exact centered window. One
// face targets that box's center; two faces target the mean of both centers,
// which makes the result independent of detector ordering. Non-reset targets
// go through dead-zone exponential smoothing, and boundary clamping
// overwrites the smoothed center so the next frame starts from the clamped
// position.
func (t *Tracker) Update(faces []types.FaceBox) types.CropWindow {
	if len(faces) == 0 || len(faces) >= 3 {
		t.centerX = float64(t.meta.Width) / 2
		return Centered(t.meta)
	}

	target := faces[0].CenterX()
	if len(faces) == 2 {
		target = (faces[0].CenterX() + faces[1].CenterX()) / 2
	}

	diff := target - t.centerX
	if math.Abs(diff) > t.cfg.MinMovement {
		t.centerX += diff * t.cfg.SmoothingFactor
	}

	vw := t.meta.VerticalWidth()
	xStart := int(math.Round(t.centerX - float64(vw)/2))
	xEnd := xStart + vw
	if xStart < 0 {
		xStart, xEnd = 0, vw
		t.centerX = float64(vw) / 2
	}
	if xEnd > t.meta.Width {
		xStart, xEnd = t.meta.Width-vw, t.meta.Width
		t.centerX = float64(t.meta.Width) - float64(vw)/2
	}
	return types.CropWindow{XStart: xStart, XEnd: xEnd}
}
