package dto

import (
	"path/filepath"
	"strings"

	"detectsuite/internal/model"
)

// ImageResult is the outcome of running detection on one uploaded image.
type ImageResult struct {
	Name         string            `json:"name"`
	Counts       map[string]int    `json:"counts"`
	Summary      string            `json:"summary"`
	Detections   []model.Detection `json:"detections"`
	Image        string            `json:"image,omitempty"` // base64 JPEG preview
	DownloadName string            `json:"downloadName,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ImagesResponse is returned by the image detection endpoint.
type ImagesResponse struct {
	Results   []ImageResult `json:"results"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
}

// DownloadName derives the attachment name "detected_<base>.png" of an
// annotated upload.
func DownloadName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "image"
	}
	return "detected_" + base + ".png"
}
