package capture

import (
	"fmt"
	"io"

	"detectsuite/internal/model"

	"gocv.io/x/gocv"
)

// EncodedImage is an uploaded still image that has not been decoded yet.
type EncodedImage struct {
	Name string
	Data []byte
}

// ImageSet is a finite source over still images, decoded lazily in order.
// A corrupt image fails only its own frame.
type ImageSet struct {
	images []EncodedImage
	next   int
}

func NewImageSet(images ...EncodedImage) *ImageSet {
	return &ImageSet{images: images}
}

func (s *ImageSet) Next() (gocv.Mat, error) {
	if s.next >= len(s.images) {
		return gocv.Mat{}, io.EOF
	}
	img := s.images[s.next]
	s.next++

	mat, err := Decode(img.Data)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%s: %w", img.Name, err)
	}
	return mat, nil
}

// Name returns the name of the image at position index.
func (s *ImageSet) Name(index int) string {
	if index < 0 || index >= len(s.images) {
		return ""
	}
	return s.images[index].Name
}

func (s *ImageSet) Len() int {
	return len(s.images)
}

func (s *ImageSet) Close() error {
	s.next = len(s.images)
	return nil
}

// Decode turns an encoded image into a BGR frame.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, fmt.Errorf("%w: no image data", model.ErrFrameDecode)
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", model.ErrFrameDecode, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("%w: decoded image is empty", model.ErrFrameDecode)
	}
	return mat, nil
}

// VideoFile decodes frames from a video container on disk.
type VideoFile struct {
	capture *gocv.VideoCapture
	path    string
	total   int
}

// OpenVideoFile opens path for reading. A missing or unsupported container
// fails with model.ErrSourceUnavailable.
func OpenVideoFile(path string) (*VideoFile, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open video file %s: %v", model.ErrSourceUnavailable, path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: video file %s is corrupt or in an unsupported format", model.ErrSourceUnavailable, path)
	}
	return &VideoFile{
		capture: vc,
		path:    path,
		total:   int(vc.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

func (v *VideoFile) Next() (gocv.Mat, error) {
	mat := gocv.NewMat()
	if ok := v.capture.Read(&mat); !ok {
		mat.Close()
		return gocv.Mat{}, io.EOF
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("%w: empty frame in %s", model.ErrFrameDecode, v.path)
	}
	return mat, nil
}

// FrameCount is the container's frame count, or 0 when unknown.
func (v *VideoFile) FrameCount() int {
	if v.total < 0 {
		return 0
	}
	return v.total
}

// FPS is the container's frame rate, or 0 when unknown.
func (v *VideoFile) FPS() float64 {
	return v.capture.Get(gocv.VideoCaptureFPS)
}

func (v *VideoFile) Close() error {
	return v.capture.Close()
}

// Camera reads frames from a live capture device until closed.
type Camera struct {
	capture *gocv.VideoCapture
	device  int
}

// OpenCamera opens a capture device. A busy device or a denied permission
// fails with model.ErrSourceUnavailable.
func OpenCamera(device int) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot access camera %d: %v", model.ErrSourceUnavailable, device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: camera %d is busy or permission was denied", model.ErrSourceUnavailable, device)
	}
	return &Camera{capture: vc, device: device}, nil
}

// Next blocks until the device delivers a frame. A failed grab means the
// device went away and ends the stream.
func (c *Camera) Next() (gocv.Mat, error) {
	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("%w: failed to grab frame from camera %d", model.ErrSourceUnavailable, c.device)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("%w: camera %d returned an empty frame", model.ErrFrameDecode, c.device)
	}
	return mat, nil
}

func (c *Camera) Close() error {
	return c.capture.Close()
}

// Encode compresses a frame into the format named by ext (".png" or ".jpg").
func Encode(frame gocv.Mat, ext gocv.FileExt) ([]byte, error) {
	buf, err := gocv.IMEncode(ext, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame as %s: %w", ext, err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}
