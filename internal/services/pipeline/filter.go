package pipeline

import "detectsuite/internal/model"

// DropInvalid removes detections whose box has a negative origin or no area.
// The input slice is not modified.
func DropInvalid(detections []model.Detection) []model.Detection {
	valid := make([]model.Detection, 0, len(detections))
	for _, d := range detections {
		if d.Box.Valid() {
			valid = append(valid, d)
		}
	}
	return valid
}

// Filter keeps the detections whose class is selected, in their original order.
// An empty selection yields an empty result.
func Filter(detections []model.Detection, selected model.ClassSet) []model.Detection {
	kept := make([]model.Detection, 0, len(detections))
	if len(selected) == 0 {
		return kept
	}
	for _, d := range detections {
		if selected.Has(d.ClassID) {
			kept = append(kept, d)
		}
	}
	return kept
}
