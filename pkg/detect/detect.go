// Package detect holds the detection types shared by the scene and session
// code. Backends live in subpackages.
package detect

import (
	"context"
	"image"
)

// Detection is one labeled object found in a frame.
type Detection struct {
	Label      string
	Box        image.Rectangle // pixel coordinates in the source frame
	Confidence float64
}

// Detector finds objects in a JPEG encoded frame.
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) ([]Detection, error)
	Close() error
}

// Labels returns the label of every detection, duplicates included.
func Labels(dets []Detection) []string {
	out := make([]string, 0, len(dets))
	for _, d := range dets {
		out = append(out, d.Label)
	}
	return out
}
