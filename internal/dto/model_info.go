package dto

import "detectsuite/internal/model"

// ModelInfo mirrors the "model information" panel of the UI.
type ModelInfo struct {
	Name       string        `json:"name"`
	Detector   string        `json:"detector"`
	Scored     bool          `json:"scored"`
	Total      int           `json:"totalClasses"`
	Classes    []model.Class `json:"classes"`
	Confidence float64       `json:"defaultConfidence"`
	Modes      []string      `json:"modes"`
}
