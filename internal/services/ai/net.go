package ai

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"detectsuite/internal/config"
	"detectsuite/internal/logger"
	"detectsuite/internal/model"

	"gocv.io/x/gocv"
)

const (
	// ssdInputSize is the square input of SSD-MobileNet graphs.
	ssdInputSize = 300
	// yoloInputSize is the square input of Ultralytics exports.
	yoloInputSize = 640
	// nmsThreshold is the IoU above which overlapping YOLO boxes are merged.
	nmsThreshold = 0.45
)

type NetOptions struct {
	ModelPath  string
	ConfigPath string // TensorFlow text graph; empty for ONNX
	Format     string // config.DetectorSSD or config.DetectorYOLO
	Catalog    *model.ClassCatalog
}

// NetDetector runs a DNN through OpenCV. A gocv.Net is not safe for
// concurrent forward passes, so inference is serialized.
type NetDetector struct {
	net     gocv.Net
	format  string
	catalog *model.ClassCatalog
	name    string
	mu      sync.Mutex
	logger  *logger.Logger
}

// NewNetDetector loads the network and sets backend/target preferences.
func NewNetDetector(opts NetOptions, logger *logger.Logger) (*NetDetector, error) {
	if err := requireFile("model", opts.ModelPath); err != nil {
		return nil, err
	}
	if opts.ConfigPath != "" {
		if err := requireFile("model config", opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if opts.Format != config.DetectorSSD && opts.Format != config.DetectorYOLO {
		return nil, fmt.Errorf("%w: unsupported network format %q", model.ErrModelUnavailable, opts.Format)
	}
	if opts.Catalog == nil || opts.Catalog.Len() == 0 {
		return nil, fmt.Errorf("%w: empty class catalog", model.ErrModelUnavailable)
	}

	net := gocv.ReadNet(opts.ModelPath, opts.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load network %s", model.ErrModelUnavailable, opts.ModelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("%w: failed to set preferable backend or target", model.ErrModelUnavailable)
	}

	logger.Info("Detection network %s (%s, %d classes) initialized", opts.ModelPath, opts.Format, opts.Catalog.Len())
	return &NetDetector{
		net:     net,
		format:  opts.Format,
		catalog: opts.Catalog,
		name:    filepath.Base(opts.ModelPath),
		logger:  logger,
	}, nil
}

func (d *NetDetector) Detect(frame gocv.Mat, threshold float64) ([]model.Detection, error) {
	if err := checkFrame(frame); err != nil {
		return nil, err
	}

	input := frame
	if frame.Channels() != 3 {
		converted := gocv.NewMat()
		defer converted.Close()
		code := gocv.ColorGrayToBGR
		if frame.Channels() == 4 {
			code = gocv.ColorBGRAToBGR
		}
		if err := gocv.CvtColor(frame, &converted, code); err != nil {
			return nil, fmt.Errorf("%w: failed to convert frame to BGR: %v", model.ErrFrameDecode, err)
		}
		input = converted
	}

	if d.format == config.DetectorSSD {
		return d.detectSSD(input, threshold)
	}
	return d.detectYOLO(input, threshold)
}

func (d *NetDetector) forward(blob gocv.Mat) gocv.Mat {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.SetInput(blob, "")
	return d.net.Forward("")
}

func (d *NetDetector) detectSSD(frame gocv.Mat, threshold float64) ([]model.Detection, error) {
	blob := gocv.BlobFromImage(frame, 1.0/127.5, image.Pt(ssdInputSize, ssdInputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	output := d.forward(blob)
	defer output.Close()
	return decodeSSD(output, threshold, frame.Cols(), frame.Rows())
}

// decodeSSD reads rows of [image, class, confidence, left, top, right, bottom]
// with coordinates normalized to the frame.
func decodeSSD(output gocv.Mat, threshold float64, cols, height int) ([]model.Detection, error) {
	if output.Empty() || output.Total()%7 != 0 {
		return nil, fmt.Errorf("%w: unexpected SSD output of %d values", model.ErrFrameDecode, output.Total())
	}

	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	detections := make([]model.Detection, 0)
	for i := 0; i < rows.Rows(); i++ {
		confidence := float64(rows.GetFloatAt(i, 2))
		if confidence < threshold {
			continue
		}
		left := int(rows.GetFloatAt(i, 3) * float32(cols))
		top := int(rows.GetFloatAt(i, 4) * float32(height))
		right := int(rows.GetFloatAt(i, 5) * float32(cols))
		bottom := int(rows.GetFloatAt(i, 6) * float32(height))

		detections = append(detections, model.Detection{
			Box:        clampBox(left, top, right, bottom, cols, height),
			ClassID:    int(rows.GetFloatAt(i, 1)),
			Confidence: confidence,
		})
	}
	return detections, nil
}

func (d *NetDetector) detectYOLO(frame gocv.Mat, threshold float64) ([]model.Detection, error) {
	square, err := letterbox(frame)
	if err != nil {
		return nil, err
	}
	defer square.Close()

	blob := gocv.BlobFromImage(square, 1.0/255.0, image.Pt(yoloInputSize, yoloInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	output := d.forward(blob)
	defer output.Close()
	return decodeYOLO(output, threshold, square.Cols(), frame.Cols(), frame.Rows())
}

// letterbox pads frame at the bottom or right into a black square so the
// aspect ratio survives the resize to the network input.
func letterbox(frame gocv.Mat) (gocv.Mat, error) {
	cols, rows := frame.Cols(), frame.Rows()
	side := max(cols, rows)

	square := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), side, side, gocv.MatTypeCV8UC3)
	roi := square.Region(image.Rect(0, 0, cols, rows))
	err := frame.CopyTo(&roi)
	roi.Close()
	if err != nil {
		square.Close()
		return gocv.Mat{}, fmt.Errorf("%w: failed to letterbox frame: %v", model.ErrFrameDecode, err)
	}
	return square, nil
}

// decodeYOLO reads an Ultralytics [1, 4+classes, anchors] output: centre
// x/y, width, height in input pixels followed by one score per class. side
// is the letterboxed square the input was resized from.
func decodeYOLO(output gocv.Mat, threshold float64, side, cols, rows int) ([]model.Detection, error) {
	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("%w: unexpected YOLO output shape %v", model.ErrFrameDecode, dims)
	}
	attrs, anchors := dims[1], dims[2]
	scale := float32(side) / yoloInputSize

	table := output.Reshape(1, attrs)
	defer table.Close()

	var (
		boxes   []image.Rectangle
		shifted []image.Rectangle
		scores  []float32
		classes []int
	)
	for a := 0; a < anchors; a++ {
		best, bestScore := -1, float32(0)
		for c := 4; c < attrs; c++ {
			if s := table.GetFloatAt(c, a); s > bestScore {
				best, bestScore = c-4, s
			}
		}
		if best < 0 || float64(bestScore) < threshold {
			continue
		}

		cx, cy := table.GetFloatAt(0, a), table.GetFloatAt(1, a)
		w, h := table.GetFloatAt(2, a), table.GetFloatAt(3, a)
		box := image.Rect(
			int((cx-w/2)*scale), int((cy-h/2)*scale),
			int((cx+w/2)*scale), int((cy+h/2)*scale),
		)
		// Offsetting by class keeps NMS from merging boxes of different classes.
		offset := image.Pt(best*side*2, 0)

		boxes = append(boxes, box)
		shifted = append(shifted, box.Add(offset))
		scores = append(scores, bestScore)
		classes = append(classes, best)
	}
	if len(boxes) == 0 {
		return []model.Detection{}, nil
	}

	keep := gocv.NMSBoxes(shifted, scores, float32(threshold), nmsThreshold)
	detections := make([]model.Detection, 0, len(keep))
	for _, i := range keep {
		b := boxes[i]
		detections = append(detections, model.Detection{
			Box:        clampBox(b.Min.X, b.Min.Y, b.Max.X, b.Max.Y, cols, rows),
			ClassID:    classes[i],
			Confidence: float64(scores[i]),
		})
	}
	return detections, nil
}

func (d *NetDetector) Catalog() *model.ClassCatalog { return d.catalog }

func (d *NetDetector) Scored() bool { return true }

func (d *NetDetector) Name() string { return d.name }

func (d *NetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
