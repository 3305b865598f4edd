package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"detectsuite/internal/logger"
	"detectsuite/internal/model"
	"detectsuite/internal/services/ai"

	"gocv.io/x/gocv"
)

// DefaultConfidence is the threshold used when none is chosen.
const DefaultConfidence = 0.3

// Options are fixed for the duration of one frame or one stream.
type Options struct {
	Selected  model.ClassSet
	Threshold float64
}

// Source yields frames in order. Next returns io.EOF once a bounded source
// is exhausted and an error wrapping model.ErrFrameDecode for a frame that
// could not be decoded. The caller owns and closes returned Mats.
type Source interface {
	Next() (gocv.Mat, error)
	Close() error
}

// Sink receives the outcome of every pulled frame, in arrival order.
// A FrameResult is only valid during the Frame call; clone the Mat to keep it.
type Sink interface {
	Frame(result *model.FrameResult) error
	Skip(index int, err error)
}

// SinkFuncs adapts plain functions to a Sink. Nil functions are ignored.
type SinkFuncs struct {
	OnFrame func(result *model.FrameResult) error
	OnSkip  func(index int, err error)
}

func (s SinkFuncs) Frame(result *model.FrameResult) error {
	if s.OnFrame == nil {
		return nil
	}
	return s.OnFrame(result)
}

func (s SinkFuncs) Skip(index int, err error) {
	if s.OnSkip != nil {
		s.OnSkip(index, err)
	}
}

// Summary describes a finished stream.
type Summary struct {
	Frames    int  `json:"frames"`
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
	Cancelled bool `json:"cancelled"`
}

// Pipeline drives frames through detect, filter, count and annotate.
// It keeps no state between frames besides the loaded detector.
type Pipeline struct {
	detector  ai.Detector
	catalog   *model.ClassCatalog
	annotator *Annotator
	logger    *logger.Logger
}

// New builds a pipeline around a loaded detector.
func New(detector ai.Detector, logger *logger.Logger) (*Pipeline, error) {
	if detector == nil {
		return nil, fmt.Errorf("%w: no detector loaded", model.ErrModelUnavailable)
	}
	catalog := detector.Catalog()
	if catalog == nil || catalog.Len() == 0 {
		return nil, fmt.Errorf("%w: detector has an empty class catalog", model.ErrModelUnavailable)
	}
	return &Pipeline{
		detector:  detector,
		catalog:   catalog,
		annotator: NewAnnotator(catalog, detector.Scored()),
		logger:    logger,
	}, nil
}

// Catalog returns the classes of the loaded model.
func (p *Pipeline) Catalog() *model.ClassCatalog {
	return p.catalog
}

// Detector returns the loaded detector.
func (p *Pipeline) Detector() ai.Detector {
	return p.detector
}

// Process runs a single frame. The frame is not modified and stays owned by
// the caller; the returned FrameResult must be closed.
func (p *Pipeline) Process(frame gocv.Mat, opts Options) (*model.FrameResult, error) {
	return p.process(0, frame, opts)
}

func (p *Pipeline) process(index int, frame gocv.Mat, opts Options) (*model.FrameResult, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("%w: frame %d is empty", model.ErrFrameDecode, index)
	}

	raw, err := p.detector.Detect(frame, opts.Threshold)
	if err != nil {
		if errors.Is(err, model.ErrFrameDecode) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: detection failed on frame %d: %v", model.ErrFrameDecode, index, err)
	}

	filtered := Filter(DropInvalid(raw), opts.Selected)

	counts, err := Count(filtered, p.catalog)
	if err != nil {
		return nil, err
	}

	annotated, err := p.annotator.Annotate(frame, filtered)
	if err != nil {
		return nil, fmt.Errorf("failed to annotate frame %d: %w", index, err)
	}

	return &model.FrameResult{
		Index:      index,
		Annotated:  annotated,
		Detections: filtered,
		Counts:     counts,
	}, nil
}

// Run pulls frames from src until it is exhausted, ctx is cancelled or a
// non-recoverable error occurs. Cancellation is observed between frames,
// never during detection. Frames that fail to decode are reported to
// sink.Skip and the stream continues. src is closed before Run returns.
func (p *Pipeline) Run(ctx context.Context, src Source, opts Options, sink Sink) (summary Summary, err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to release frame source: %w", cerr)
		}
	}()

	for {
		if ctx.Err() != nil {
			summary.Cancelled = true
			return summary, nil
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			return summary, nil
		}
		index := summary.Frames
		summary.Frames++

		if err != nil {
			if !errors.Is(err, model.ErrFrameDecode) {
				return summary, err
			}
			p.skip(&summary, sink, index, err)
			continue
		}

		if ctx.Err() != nil {
			frame.Close()
			summary.Frames--
			summary.Cancelled = true
			return summary, nil
		}

		result, err := p.process(index, frame, opts)
		frame.Close()
		if err != nil {
			if !errors.Is(err, model.ErrFrameDecode) {
				return summary, err
			}
			p.skip(&summary, sink, index, err)
			continue
		}

		summary.Processed++
		err = sink.Frame(result)
		result.Close()
		if err != nil {
			return summary, fmt.Errorf("frame sink failed on frame %d: %w", index, err)
		}
	}
}

func (p *Pipeline) skip(summary *Summary, sink Sink, index int, err error) {
	summary.Skipped++
	p.logger.Warning("Skipping frame %d: %v", index, err)
	sink.Skip(index, err)
}
