// Package engine defines the camera, recognition and liveness
// collaborators used by a face match, and production adapters for them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoFace is returned by ExtractFeature when the frame has no face.
	// It is transient; the caller captures another frame.
	ErrNoFace = errors.New("engine: no face detected")
	// ErrBusy is returned when the camera and models are held by another scan.
	ErrBusy = errors.New("engine: devices busy")
	// ErrClosed is returned by a collaborator used after Close.
	ErrClosed = errors.New("engine: closed")
)

// Format identifies the pixel layout of a Frame.
type Format int

const (
	FormatJPEG  Format = iota + 1 // Data is a complete JPEG image.
	FormatRGB24                   // Data is packed 8-bit R, G, B.
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatRGB24:
		return "rgb24"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Frame is one captured camera image.
type Frame struct {
	Width  int    `cbor:"1,keyasint"`
	Height int    `cbor:"2,keyasint"`
	Format Format `cbor:"3,keyasint"`
	Data   []byte `cbor:"4,keyasint"`
}

// Feature is a face embedding.
type Feature []float32

// Camera captures frames from one device.
type Camera interface {
	Open(ctx context.Context, index int) error
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Recognizer extracts and compares face embeddings.
type Recognizer interface {
	// ExtractFeature returns the embedding of the most prominent face whose
	// detection score reaches detectThreshold, or ErrNoFace.
	ExtractFeature(ctx context.Context, frame Frame, detectThreshold float64) (Feature, error)
	// Match returns a similarity in [0, 1]; higher is more similar.
	Match(a, b Feature) float64
}

// Liveness classifies a JPEG image as a live face or a spoof.
type Liveness interface {
	Detect(ctx context.Context, jpeg []byte) (live bool, confidence float64, err error)
}

// Devices guards the process-wide camera and model handles. Only one scan
// may hold them at a time.
type Devices struct {
	mu sync.Mutex
}

// Acquire takes the devices without waiting. It returns ErrBusy when they
// are already held. The release func may be called more than once.
func (d *Devices) Acquire() (release func(), err error) {
	if !d.mu.TryLock() {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() { once.Do(d.mu.Unlock) }, nil
}
