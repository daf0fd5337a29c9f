// Package yolo runs YOLOv8 ONNX models through the OpenCV DNN module.
package yolo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"vista/pkg/detect"
)

// ErrModelNotFound is returned when the ONNX model file is missing.
var ErrModelNotFound = errors.New("yolo: model file not found")

// Config holds detector configuration.
type Config struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultConfig returns defaults for YOLOv8n exported to ONNX.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// Detector is a COCO object detector backed by the OpenCV DNN module.
// The network is loaded on first use; call Warmup to pay that cost up front.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	net    gocv.Net
	loaded bool
}

// New validates the configuration and returns an unloaded detector.
func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, fmt.Errorf("yolo: invalid input size %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, logger: logger.With("component", "detect.yolo")}, nil
}

// Warmup loads the network if it is not loaded yet.
func (y *Detector) Warmup(ctx context.Context) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.load(ctx)
}

func (y *Detector) load(ctx context.Context) error {
	if y.loaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	net := gocv.ReadNetFromONNX(y.cfg.ModelPath)
	if net.Empty() {
		return fmt.Errorf("yolo: failed to load model from %s", y.cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	y.net = net
	y.loaded = true
	y.logger.Info("model loaded", "path", y.cfg.ModelPath)
	return nil
}

// Detect finds objects in the JPEG image.
func (y *Detector) Detect(ctx context.Context, jpeg []byte) ([]detect.Detection, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	if err := y.load(ctx); err != nil {
		return nil, err
	}

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, errors.New("yolo: empty image")
	}

	size := image.Pt(y.cfg.InputWidth, y.cfg.InputHeight)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	y.net.SetInput(blob, "")
	output := y.net.Forward("")
	defer output.Close()

	dets, err := y.parse(output, float32(img.Cols()), float32(img.Rows()))
	if err != nil {
		return nil, err
	}

	y.logger.Debug("frame analyzed", "objects", len(dets))
	return dets, nil
}

// parse decodes a YOLOv8 output tensor of shape [1, 4+classes, anchors].
func (y *Detector) parse(output gocv.Mat, imgW, imgH float32) ([]detect.Detection, error) {
	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("yolo: unexpected output shape %v", dims)
	}
	attrs, anchors := dims[1], dims[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("yolo: read output: %w", err)
	}

	scaleX := imgW / float32(y.cfg.InputWidth)
	scaleY := imgH / float32(y.cfg.InputHeight)

	var (
		boxes       []image.Rectangle
		confidences []float32
		classIDs    []int
	)

	for i := 0; i < anchors; i++ {
		best := float32(0)
		bestID := 0
		for c := 4; c < attrs; c++ {
			if score := data[c*anchors+i]; score > best {
				best = score
				bestID = c - 4
			}
		}
		if best < y.cfg.ConfidenceThresh {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		boxes = append(boxes, image.Rect(
			int((cx-w/2)*scaleX),
			int((cy-h/2)*scaleY),
			int((cx+w/2)*scaleX),
			int((cy+h/2)*scaleY),
		))
		confidences = append(confidences, best)
		classIDs = append(classIDs, bestID)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, confidences, y.cfg.ConfidenceThresh, y.cfg.NMSThresh)

	dets := make([]detect.Detection, 0, len(keep))
	for _, idx := range keep {
		label := detect.ClassName(classIDs[idx])
		if label == "" {
			continue
		}
		dets = append(dets, detect.Detection{
			Label:      label,
			Box:        boxes[idx],
			Confidence: float64(confidences[idx]),
		})
	}
	return dets, nil
}

// Close releases the network.
func (y *Detector) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.loaded {
		y.loaded = false
		return y.net.Close()
	}
	return nil
}

var _ detect.Detector = (*Detector)(nil)
