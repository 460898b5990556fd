package faceunlock

import (
	"context"
	"errors"
	"fmt"

	"github.com/kardianos/faceunlock/engine"
	"github.com/kardianos/faceunlock/fustore"
)

// DefaultEnrollFrames is the number of face samples averaged into a
// profile.
const DefaultEnrollFrames = 10

// ErrNoFaceCaptured is returned when enrollment sees too few faces.
var ErrNoFaceCaptured = errors.New("faceunlock: not enough frames with a face")

// EnrollOpt configures a capture.
type EnrollOpt struct {
	Camera     engine.Camera
	Recognizer engine.Recognizer
	Devices    *engine.Devices

	CameraIndex     int
	Frames          int
	DetectThreshold float64
	// MaxReads bounds the frames read; zero allows ten per wanted sample.
	MaxReads int
	// Progress is called after each accepted sample.
	Progress func()
}

// Capture reads frames until opt.Frames of them contain a face and
// returns their average feature.
func Capture(ctx context.Context, opt EnrollOpt) (engine.Feature, error) {
	frames := opt.Frames
	if frames <= 0 {
		frames = DefaultEnrollFrames
	}
	maxReads := opt.MaxReads
	if maxReads <= 0 {
		maxReads = frames * 10
	}
	threshold := opt.DetectThreshold
	if threshold == 0 {
		threshold = fustore.DefaultDetectThreshold
	}
	if opt.Devices != nil {
		release, err := opt.Devices.Acquire()
		if err != nil {
			return nil, err
		}
		defer release()
	}

	if err := opt.Camera.Open(ctx, opt.CameraIndex); err != nil {
		return nil, fmt.Errorf("open camera %d: %w", opt.CameraIndex, err)
	}
	defer opt.Camera.Close()

	features := make([]engine.Feature, 0, frames)
	for reads := 0; len(features) < frames; reads++ {
		if reads >= maxReads {
			return nil, fmt.Errorf("%w: %d of %d after %d frames", ErrNoFaceCaptured, len(features), frames, reads)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := opt.Camera.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		f, err := opt.Recognizer.ExtractFeature(ctx, frame, threshold)
		if errors.Is(err, engine.ErrNoFace) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("extract feature: %w", err)
		}
		features = append(features, f)
		if opt.Progress != nil {
			opt.Progress()
		}
	}
	return engine.Average(features)
}
