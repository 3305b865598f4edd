package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"detectsuite/internal/logger"
	"detectsuite/internal/model"

	"github.com/google/go-cmp/cmp"
	"gocv.io/x/gocv"
)

func newTestPipeline(t *testing.T, d *fakeDetector) *Pipeline {
	t.Helper()
	p, err := New(d, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	return p
}

// recorder is a Sink that remembers what it was given, in order.
type recorder struct {
	events []string
	counts []map[string]int
}

func (r *recorder) Frame(res *model.FrameResult) error {
	r.events = append(r.events, fmt.Sprintf("frame %d", res.Index))
	r.counts = append(r.counts, res.Counts)
	return nil
}

func (r *recorder) Skip(index int, err error) {
	r.events = append(r.events, fmt.Sprintf("skip %d", index))
}

func TestNew_RequiresDetector(t *testing.T) {
	if _, err := New(nil, logger.NewNop()); !errors.Is(err, model.ErrModelUnavailable) {
		t.Errorf("Expected ErrModelUnavailable for nil detector, got %v", err)
	}

	d := newFakeDetector()
	d.catalog = model.CatalogFromList(nil)
	if _, err := New(d, logger.NewNop()); !errors.Is(err, model.ErrModelUnavailable) {
		t.Errorf("Expected ErrModelUnavailable for empty catalog, got %v", err)
	}
}

// ========================================
// Single Frame Tests
// ========================================

func TestProcess_FiltersToSelection(t *testing.T) {
	d := newFakeDetector(det(10, 10, 50, 20, 2, 0.9), det(0, 0, 30, 30, 5, 0.8))
	p := newTestPipeline(t, d)

	frame := blankFrame()
	defer frame.Close()

	res, err := p.Process(frame, Options{Selected: model.NewClassSet(2), Threshold: 0.5})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	defer res.Close()

	if diff := cmp.Diff(map[string]int{"car": 1}, res.Counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.Detection{det(10, 10, 50, 20, 2, 0.9)}, res.Detections); diff != "" {
		t.Errorf("Detections mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.5}, d.thresholds); diff != "" {
		t.Errorf("Threshold not passed to detector (-want +got):\n%s", diff)
	}
}

func TestProcess_EmptySelection(t *testing.T) {
	p := newTestPipeline(t, newFakeDetector(det(10, 10, 50, 20, 2, 0.9)))

	frame := blankFrame()
	defer frame.Close()

	res, err := p.Process(frame, Options{Selected: model.NewClassSet(), Threshold: 0.3})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	defer res.Close()

	if len(res.Counts) != 0 || len(res.Detections) != 0 {
		t.Errorf("Expected nothing selected, got counts=%v detections=%v", res.Counts, res.Detections)
	}
	if !bytes.Equal(frame.ToBytes(), res.Annotated.ToBytes()) {
		t.Error("Annotated frame should equal the input when nothing is drawn")
	}
}

func TestProcess_DropsZeroAreaBoxes(t *testing.T) {
	p := newTestPipeline(t, newFakeDetector(det(0, 0, 0, 30, 2, 0.9)))

	frame := blankFrame()
	defer frame.Close()

	res, err := p.Process(frame, Options{Selected: model.NewClassSet(2), Threshold: 0.3})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	defer res.Close()

	if len(res.Detections) != 0 || len(res.Counts) != 0 {
		t.Errorf("Zero width box should be dropped, got %v", res.Detections)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	p := newTestPipeline(t, newFakeDetector(det(10, 10, 50, 20, 2, 0.9), det(20, 20, 10, 10, 0, 0.6)))
	opts := Options{Selected: model.NewClassSet(0, 2), Threshold: 0.3}

	frame := blankFrame()
	defer frame.Close()

	first, err := p.Process(frame, opts)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	defer first.Close()
	second, err := p.Process(frame, opts)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	defer second.Close()

	if diff := cmp.Diff(first.Counts, second.Counts); diff != "" {
		t.Errorf("Counts differ between runs (-first +second):\n%s", diff)
	}
	if !bytes.Equal(first.Annotated.ToBytes(), second.Annotated.ToBytes()) {
		t.Error("Annotated frames differ between runs")
	}
}

func TestProcess_UnknownClassID(t *testing.T) {
	p := newTestPipeline(t, newFakeDetector(det(1, 1, 5, 5, 99, 0.9)))

	frame := blankFrame()
	defer frame.Close()

	_, err := p.Process(frame, Options{Selected: model.NewClassSet(99), Threshold: 0.3})
	if !model.IsUnknownClassID(err) {
		t.Errorf("Expected UnknownClassIDError, got %v", err)
	}
}

func TestProcess_EmptyFrame(t *testing.T) {
	d := newFakeDetector()
	p := newTestPipeline(t, d)

	empty := gocv.NewMat()
	defer empty.Close()

	if _, err := p.Process(empty, Options{Selected: model.NewClassSet(0)}); !errors.Is(err, model.ErrFrameDecode) {
		t.Errorf("Expected ErrFrameDecode, got %v", err)
	}
	if len(d.thresholds) != 0 {
		t.Error("Detector should not run on an empty frame")
	}
}

func TestProcess_DetectorFailureIsFrameError(t *testing.T) {
	d := newFakeDetector()
	d.err = errors.New("forward failed")
	p := newTestPipeline(t, d)

	frame := blankFrame()
	defer frame.Close()

	if _, err := p.Process(frame, Options{Selected: model.NewClassSet(0)}); !errors.Is(err, model.ErrFrameDecode) {
		t.Errorf("Expected ErrFrameDecode, got %v", err)
	}
}

// ========================================
// Stream Tests
// ========================================

func TestRun_SkipsUndecodableFrames(t *testing.T) {
	p := newTestPipeline(t, newFakeDetector(det(10, 10, 50, 20, 2, 0.9)))
	src := &fakeSource{steps: []error{nil, fmt.Errorf("%w: corrupt", model.ErrFrameDecode), nil}}
	rec := &recorder{}

	summary, err := p.Run(context.Background(), src, Options{Selected: model.NewClassSet(2), Threshold: 0.3}, rec)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if diff := cmp.Diff([]string{"frame 0", "skip 1", "frame 2"}, rec.events); diff != "" {
		t.Errorf("Event order mismatch (-want +got):\n%s", diff)
	}
	want := Summary{Frames: 3, Processed: 2, Skipped: 1}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("Summary mismatch (-want +got):\n%s", diff)
	}
	if !src.closed {
		t.Error("Source should be closed after the stream ends")
	}
}

func TestRun_Cancellation(t *testing.T) {
	p := newTestPipeline(t, newFakeDetector())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	sink := SinkFuncs{
		OnFrame: func(res *model.FrameResult) error {
			cancel()
			return rec.Frame(res)
		},
	}
	src := &fakeSource{steps: make([]error, 5)}

	summary, err := p.Run(ctx, src, Options{Selected: model.NewClassSet(0)}, sink)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !summary.Cancelled || summary.Processed != 1 {
		t.Errorf("Expected cancellation after one frame, got %+v", summary)
	}
	if src.next != 1 {
		t.Errorf("No frame should be pulled after cancellation, pulled %d", src.next)
	}
	if !src.closed {
		t.Error("Source should be closed after cancellation")
	}
}

func TestRun_CancelledWhilePulling(t *testing.T) {
	d := newFakeDetector()
	p := newTestPipeline(t, d)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{steps: make([]error, 3), onNext: func(int) { cancel() }}

	summary, err := p.Run(ctx, src, Options{Selected: model.NewClassSet(0)}, &recorder{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !summary.Cancelled || summary.Frames != 0 || summary.Processed != 0 {
		t.Errorf("Frame pulled during cancellation should be dropped, got %+v", summary)
	}
	if len(d.thresholds) != 0 {
		t.Error("Detector should not run after cancellation")
	}
}

func TestRun_SourceFailureStopsStream(t *testing.T) {
	p := newTestPipeline(t, newFakeDetector())
	src := &fakeSource{steps: []error{nil, fmt.Errorf("%w: camera unplugged", model.ErrSourceUnavailable), nil}}

	summary, err := p.Run(context.Background(), src, Options{Selected: model.NewClassSet(0)}, &recorder{})
	if !errors.Is(err, model.ErrSourceUnavailable) {
		t.Fatalf("Expected ErrSourceUnavailable, got %v", err)
	}
	if summary.Processed != 1 {
		t.Errorf("Expected one processed frame before the failure, got %+v", summary)
	}
	if !src.closed {
		t.Error("Source should be closed after a failure")
	}
}

func TestRun_UnknownClassIDStopsStream(t *testing.T) {
	p := newTestPipeline(t, newFakeDetector(det(1, 1, 5, 5, 42, 0.9)))
	src := &fakeSource{steps: make([]error, 2)}

	_, err := p.Run(context.Background(), src, Options{Selected: model.NewClassSet(42)}, &recorder{})
	if !model.IsUnknownClassID(err) {
		t.Errorf("Expected UnknownClassIDError, got %v", err)
	}
}

func TestRun_SinkError(t *testing.T) {
	p := newTestPipeline(t, newFakeDetector())
	src := &fakeSource{steps: make([]error, 3)}
	boom := errors.New("viewer gone")

	summary, err := p.Run(context.Background(), src, Options{Selected: model.NewClassSet(0)},
		SinkFuncs{OnFrame: func(*model.FrameResult) error { return boom }})
	if !errors.Is(err, boom) {
		t.Errorf("Expected sink error, got %v", err)
	}
	if summary.Frames != 1 {
		t.Errorf("Stream should stop at the failing frame, got %+v", summary)
	}
}

func TestRun_CountsPerFrame(t *testing.T) {
	p := newTestPipeline(t, newFakeDetector(det(10, 10, 50, 20, 2, 0.9), det(0, 0, 30, 30, 5, 0.8)))
	src := &fakeSource{steps: make([]error, 2)}
	rec := &recorder{}

	if _, err := p.Run(context.Background(), src, Options{Selected: model.NewClassSet(2, 5), Threshold: 0.3}, rec); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []map[string]int{{"car": 1, "bus": 1}, {"car": 1, "bus": 1}}
	if diff := cmp.Diff(want, rec.counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
}
