package ai

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"detectsuite/internal/config"
	"detectsuite/internal/logger"
	"detectsuite/internal/model"

	"github.com/google/go-cmp/cmp"
)

func TestNew_MissingModelFiles(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"yolo", config.Config{Detector: config.DetectorYOLO, ModelPath: filepath.Join(dir, "missing.onnx")}},
		{"ssd", config.Config{Detector: config.DetectorSSD, ModelPath: filepath.Join(dir, "missing.pb")}},
		{"ssd config", config.Config{Detector: config.DetectorSSD, ModelPath: writeFile(t, dir, "model.pb", "x"), ModelConfigPath: filepath.Join(dir, "missing.pbtxt")}},
		{"cascade", config.Config{Detector: config.DetectorCascade, CascadePath: filepath.Join(dir, "missing.xml")}},
		{"cascade unset", config.Config{Detector: config.DetectorCascade}},
		{"labels", config.Config{Detector: config.DetectorYOLO, LabelsPath: filepath.Join(dir, "missing.txt")}},
		{"unknown", config.Config{Detector: "rcnn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(&tt.cfg, logger.NewNop())
			if !errors.Is(err, model.ErrModelUnavailable) {
				t.Errorf("Expected ErrModelUnavailable, got %v", err)
			}
			if d != nil {
				t.Error("Expected no detector on failure")
			}
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	yolo, err := loadCatalog("", config.DetectorYOLO)
	if err != nil {
		t.Fatalf("loadCatalog failed: %v", err)
	}
	if name, _ := yolo.Name(2); name != "car" || yolo.Len() != 80 {
		t.Errorf("COCO80: id 2 = %q, len %d", name, yolo.Len())
	}

	ssd, err := loadCatalog("", config.DetectorSSD)
	if err != nil {
		t.Fatalf("loadCatalog failed: %v", err)
	}
	if name, _ := ssd.Name(3); name != "car" || ssd.Len() != 80 {
		t.Errorf("COCO91: id 3 = %q, len %d", name, ssd.Len())
	}
	if _, ok := ssd.Name(12); ok {
		t.Error("COCO91 id 12 is unused and should not resolve")
	}

	labels := writeFile(t, t.TempDir(), "labels.txt", "plate\nsign\n")
	custom, err := loadCatalog(labels, config.DetectorYOLO)
	if err != nil {
		t.Fatalf("loadCatalog failed: %v", err)
	}
	want := []model.Class{{ID: 0, Name: "plate"}, {ID: 1, Name: "sign"}}
	if diff := cmp.Diff(want, custom.Classes()); diff != "" {
		t.Errorf("Custom catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestCOCOTablesAligned(t *testing.T) {
	if len(cocoNames) != 80 || len(coco91IDs) != len(cocoNames) {
		t.Fatalf("COCO tables misaligned: %d names, %d ids", len(cocoNames), len(coco91IDs))
	}
	for i := 1; i < len(coco91IDs); i++ {
		if coco91IDs[i] <= coco91IDs[i-1] {
			t.Errorf("COCO91 ids not ascending at %d", i)
		}
	}
}

func TestClampBox(t *testing.T) {
	tests := []struct {
		name           string
		x1, y1, x2, y2 int
		want           model.Box
		valid          bool
	}{
		{"inside", 10, 20, 60, 40, model.Box{X: 10, Y: 20, Width: 50, Height: 20}, true},
		{"overflow", -5, -5, 500, 500, model.Box{X: 0, Y: 0, Width: 160, Height: 120}, true},
		{"outside", 200, 10, 300, 20, model.Box{X: 160, Y: 10, Width: 0, Height: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampBox(tt.x1, tt.y1, tt.x2, tt.y2, 160, 120)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("clampBox mismatch (-want +got):\n%s", diff)
			}
			if got.Valid() != tt.valid {
				t.Errorf("Valid() = %v, want %v", got.Valid(), tt.valid)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}
