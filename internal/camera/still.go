package camera

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// Still serves one image file as every frame, for runs without a camera.
type Still struct {
	Path    string
	Quality int

	mu   sync.Mutex
	jpeg []byte
}

// Open loads and re-encodes the image.
func (s *Still) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jpeg != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(s.Path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	img := gocv.IMRead(s.Path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("%w: cannot decode %s", ErrUnavailable, s.Path)
	}
	b, err := encodeJPEG(img, s.Quality)
	if err != nil {
		return err
	}
	s.jpeg = b
	return nil
}

// Capture returns the image.
func (s *Still) Capture(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jpeg == nil {
		return nil, ErrNotOpen
	}
	return s.jpeg, ctx.Err()
}

// Close forgets the image.
func (s *Still) Close() error {
	s.mu.Lock()
	s.jpeg = nil
	s.mu.Unlock()
	return nil
}
