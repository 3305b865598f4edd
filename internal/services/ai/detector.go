package ai

import (
	"fmt"
	"os"

	"detectsuite/internal/config"
	"detectsuite/internal/logger"
	"detectsuite/internal/model"

	"gocv.io/x/gocv"
)

// Detector wraps a pretrained model behind a uniform interface.
// Implementations are safe for concurrent use; the loaded model and
// catalog never change after construction.
type Detector interface {
	// Detect returns every detection at or above threshold, in model order.
	Detect(frame gocv.Mat, threshold float64) ([]model.Detection, error)
	// Catalog returns the classes the model can report.
	Catalog() *model.ClassCatalog
	// Scored reports whether confidences come from the model.
	Scored() bool
	// Name identifies the loaded model for display.
	Name() string
	Close() error
}

// New builds the detector selected by cfg.Detector. It fails with
// model.ErrModelUnavailable when the model files are missing or unreadable.
func New(cfg *config.Config, logger *logger.Logger) (Detector, error) {
	switch cfg.Detector {
	case config.DetectorCascade:
		d, err := NewCascadeDetector(CascadeOptions{
			Path:         cfg.CascadePath,
			ScaleFactor:  cfg.CascadeScaleFactor,
			MinNeighbors: cfg.CascadeMinNeighbors,
		}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DetectorSSD, config.DetectorYOLO:
		catalog, err := loadCatalog(cfg.LabelsPath, cfg.Detector)
		if err != nil {
			return nil, err
		}
		d, err := NewNetDetector(NetOptions{
			ModelPath:  cfg.ModelPath,
			ConfigPath: cfg.ModelConfigPath,
			Format:     cfg.Detector,
			Catalog:    catalog,
		}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: unknown detector %q", model.ErrModelUnavailable, cfg.Detector)
	}
}

func loadCatalog(labelsPath, format string) (*model.ClassCatalog, error) {
	if labelsPath == "" {
		if format == config.DetectorSSD {
			return COCO91Catalog(), nil
		}
		return COCO80Catalog(), nil
	}

	f, err := os.Open(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: labels file: %v", model.ErrModelUnavailable, err)
	}
	defer f.Close()

	catalog, err := model.ReadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrModelUnavailable, err)
	}
	return catalog, nil
}

// requireFile checks that a model resource exists before handing it to OpenCV,
// which otherwise fails with an unhelpful message.
func requireFile(kind, path string) error {
	if path == "" {
		return fmt.Errorf("%w: %s path not set", model.ErrModelUnavailable, kind)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s file not found: %s", model.ErrModelUnavailable, kind, path)
	}
	return nil
}

// clampBox limits a box to the frame. Boxes that end up with no area are
// returned as-is with a non-positive size so callers can discard them.
func clampBox(x1, y1, x2, y2, cols, rows int) model.Box {
	x1 = max(0, min(x1, cols))
	y1 = max(0, min(y1, rows))
	x2 = max(0, min(x2, cols))
	y2 = max(0, min(y2, rows))
	return model.Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func checkFrame(frame gocv.Mat) error {
	if frame.Empty() {
		return fmt.Errorf("%w: frame is empty", model.ErrFrameDecode)
	}
	return nil
}
