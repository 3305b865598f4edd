package model

import (
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether the box has a non-negative origin and a positive area.
func (b Box) Valid() bool {
	return b.X >= 0 && b.Y >= 0 && b.Width > 0 && b.Height > 0
}

// Rect converts the box to an image.Rectangle for drawing.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Detection is one predicted object instance.
type Detection struct {
	Box        Box     `json:"box"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// ClassSet is a set of class ids chosen by the user.
type ClassSet map[int]struct{}

// NewClassSet builds a set from the given ids.
func NewClassSet(ids ...int) ClassSet {
	set := make(ClassSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is selected.
func (s ClassSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the selected ids in ascending order.
func (s ClassSet) IDs() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// FrameResult is the output of processing a single frame.
// The caller must not modify it; Annotated is owned by whoever closes it.
type FrameResult struct {
	Index      int
	Annotated  gocv.Mat
	Detections []Detection
	Counts     map[string]int
}

// Close releases the annotated frame.
func (r *FrameResult) Close() error {
	return r.Annotated.Close()
}
