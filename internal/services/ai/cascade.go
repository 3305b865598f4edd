package ai

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"detectsuite/internal/logger"
	"detectsuite/internal/model"

	"gocv.io/x/gocv"
)

const (
	// DefaultScaleFactor is how much the image shrinks between cascade scales.
	DefaultScaleFactor = 1.1
	// DefaultMinNeighbors is how many overlapping hits a candidate needs.
	DefaultMinNeighbors = 3
	// PlateClassName is the only class a plate cascade reports.
	PlateClassName = "number plate"
)

type CascadeOptions struct {
	Path         string
	ScaleFactor  float64
	MinNeighbors int
	ClassName    string
}

// CascadeDetector runs a Haar cascade on a grayscale copy of each frame.
// The cascade has no notion of confidence, so every hit scores 1.0.
type CascadeDetector struct {
	classifier   gocv.CascadeClassifier
	catalog      *model.ClassCatalog
	scaleFactor  float64
	minNeighbors int
	name         string
	mu           sync.Mutex
	logger       *logger.Logger
}

// NewCascadeDetector loads the cascade XML at opts.Path.
func NewCascadeDetector(opts CascadeOptions, logger *logger.Logger) (*CascadeDetector, error) {
	if err := requireFile("cascade", opts.Path); err != nil {
		return nil, err
	}
	if opts.ScaleFactor <= 1 {
		opts.ScaleFactor = DefaultScaleFactor
	}
	if opts.MinNeighbors <= 0 {
		opts.MinNeighbors = DefaultMinNeighbors
	}
	if opts.ClassName == "" {
		opts.ClassName = PlateClassName
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(opts.Path) {
		classifier.Close()
		return nil, fmt.Errorf("%w: failed to load cascade %s", model.ErrModelUnavailable, opts.Path)
	}

	logger.Info("Cascade classifier loaded from %s (scale %.2f, neighbors %d)", opts.Path, opts.ScaleFactor, opts.MinNeighbors)
	return &CascadeDetector{
		classifier:   classifier,
		catalog:      model.NewClassCatalog(map[int]string{0: opts.ClassName}),
		scaleFactor:  opts.ScaleFactor,
		minNeighbors: opts.MinNeighbors,
		name:         filepath.Base(opts.Path),
		logger:       logger,
	}, nil
}

func (d *CascadeDetector) Detect(frame gocv.Mat, threshold float64) ([]model.Detection, error) {
	if err := checkFrame(frame); err != nil {
		return nil, err
	}

	gray := frame
	if frame.Channels() != 1 {
		converted := gocv.NewMat()
		defer converted.Close()
		if err := gocv.CvtColor(frame, &converted, grayConversion(frame)); err != nil {
			return nil, fmt.Errorf("%w: failed to convert frame to grayscale: %v", model.ErrFrameDecode, err)
		}
		gray = converted
	}

	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(gray, d.scaleFactor, d.minNeighbors, 0, image.Pt(0, 0), image.Pt(0, 0))
	d.mu.Unlock()

	return cascadeDetections(rects, threshold, frame.Cols(), frame.Rows()), nil
}

// cascadeDetections reports every hit as class 0 with confidence 1.0, so a
// threshold above 1 drops them all.
func cascadeDetections(rects []image.Rectangle, threshold float64, cols, rows int) []model.Detection {
	detections := make([]model.Detection, 0, len(rects))
	if threshold > 1 {
		return detections
	}
	for _, r := range rects {
		detections = append(detections, model.Detection{
			Box:        clampBox(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y, cols, rows),
			ClassID:    0,
			Confidence: 1.0,
		})
	}
	return detections
}

func (d *CascadeDetector) Catalog() *model.ClassCatalog { return d.catalog }

func (d *CascadeDetector) Scored() bool { return false }

func (d *CascadeDetector) Name() string { return d.name }

func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}

// grayConversion picks the conversion code for the frame's channel layout.
// Decoded frames are BGR; PNG uploads with alpha decode as BGRA.
func grayConversion(frame gocv.Mat) gocv.ColorConversionCode {
	if frame.Channels() == 4 {
		return gocv.ColorBGRAToGray
	}
	return gocv.ColorBGRToGray
}
