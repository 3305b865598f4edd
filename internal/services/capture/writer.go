package capture

import (
	"fmt"

	"detectsuite/internal/model"

	"gocv.io/x/gocv"
)

const defaultFPS = 25

// VideoWriter encodes annotated frames into a video file. The underlying
// writer is opened lazily on the first frame since the frame size is not
// known before then.
type VideoWriter struct {
	path   string
	codec  string
	fps    float64
	writer *gocv.VideoWriter
}

func NewVideoWriter(path, codec string, fps float64) *VideoWriter {
	if codec == "" {
		codec = "mp4v"
	}
	if fps <= 0 {
		fps = defaultFPS
	}
	return &VideoWriter{path: path, codec: codec, fps: fps}
}

// Write appends a frame to the video.
func (w *VideoWriter) Write(frame gocv.Mat) error {
	if w.writer == nil {
		vw, err := gocv.VideoWriterFile(w.path, w.codec, w.fps, frame.Cols(), frame.Rows(), frame.Channels() != 1)
		if err != nil {
			return fmt.Errorf("%w: could not create video %s: %v", model.ErrSourceUnavailable, w.path, err)
		}
		w.writer = vw
	}
	return w.writer.Write(frame)
}

func (w *VideoWriter) Close() error {
	if w.writer == nil {
		return nil
	}
	return w.writer.Close()
}
