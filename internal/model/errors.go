package model

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable means the detector model could not be located or loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrFrameDecode means a single frame could not be decoded or run through the model.
	ErrFrameDecode = errors.New("frame decode failed")
	// ErrSourceUnavailable means a frame source could not be opened or stopped producing frames.
	ErrSourceUnavailable = errors.New("frame source unavailable")
)

// UnknownClassIDError is returned when a detection references a class id
// the catalog does not contain. It indicates a model/catalog mismatch.
type UnknownClassIDError struct {
	ClassID     int
	CatalogSize int
}

func (e *UnknownClassIDError) Error() string {
	return fmt.Sprintf("unknown class id %d (catalog has %d classes)", e.ClassID, e.CatalogSize)
}

// IsUnknownClassID reports whether err wraps an UnknownClassIDError.
func IsUnknownClassID(err error) bool {
	var target *UnknownClassIDError
	return errors.As(err, &target)
}
