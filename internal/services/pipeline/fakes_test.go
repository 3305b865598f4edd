package pipeline

import (
	"io"
	"sync"

	"detectsuite/internal/model"

	"gocv.io/x/gocv"
)

var tenClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane",
	"bus", "train", "truck", "boat", "traffic light",
}

// fakeDetector returns canned detections and records the thresholds it saw.
type fakeDetector struct {
	catalog    *model.ClassCatalog
	detections []model.Detection
	err        error
	scored     bool

	mu         sync.Mutex
	thresholds []float64
}

func newFakeDetector(detections ...model.Detection) *fakeDetector {
	return &fakeDetector{
		catalog:    model.CatalogFromList(tenClasses),
		detections: detections,
		scored:     true,
	}
}

func (d *fakeDetector) Detect(frame gocv.Mat, threshold float64) ([]model.Detection, error) {
	d.mu.Lock()
	d.thresholds = append(d.thresholds, threshold)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	out := make([]model.Detection, len(d.detections))
	copy(out, d.detections)
	return out, nil
}

func (d *fakeDetector) Catalog() *model.ClassCatalog { return d.catalog }
func (d *fakeDetector) Scored() bool                 { return d.scored }
func (d *fakeDetector) Name() string                 { return "fake" }
func (d *fakeDetector) Close() error                 { return nil }

// fakeSource yields one item per step: a blank frame, or err when set.
type fakeSource struct {
	steps  []error
	next   int
	closed bool
	onNext func(index int)
}

func (s *fakeSource) Next() (gocv.Mat, error) {
	if s.next >= len(s.steps) {
		return gocv.Mat{}, io.EOF
	}
	i := s.next
	s.next++
	if s.onNext != nil {
		s.onNext(i)
	}
	if s.steps[i] != nil {
		return gocv.Mat{}, s.steps[i]
	}
	return blankFrame(), nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

func blankFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), 120, 160, gocv.MatTypeCV8UC3)
}
