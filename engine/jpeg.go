package engine

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// JPEGQuality is used when a raw frame has to be compressed.
const JPEGQuality = 90

// EncodeJPEG returns frame as a JPEG image.
func EncodeJPEG(frame Frame) ([]byte, error) {
	switch frame.Format {
	case FormatJPEG:
		return frame.Data, nil
	case FormatRGB24:
	default:
		return nil, fmt.Errorf("encode jpeg: unsupported format %v", frame.Format)
	}
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.Data) < frame.Width*frame.Height*3 {
		return nil, fmt.Errorf("encode jpeg: %dx%d frame with %d bytes", frame.Width, frame.Height, len(frame.Data))
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for i, j := 0, 0; i < frame.Width*frame.Height; i, j = i+1, j+3 {
		img.Pix[i*4+0] = frame.Data[j+0]
		img.Pix[i*4+1] = frame.Data[j+1]
		img.Pix[i*4+2] = frame.Data[j+2]
		img.Pix[i*4+3] = 0xff
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
