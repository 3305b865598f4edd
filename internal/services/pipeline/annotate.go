package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"detectsuite/internal/model"

	"gocv.io/x/gocv"
)

const (
	boxThickness = 2
	labelScale   = 0.5
	labelPadding = 3
)

// palette gives each class id a stable color across frames of a stream.
var palette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 146, G: 204, B: 23, A: 255},
	{R: 61, G: 219, B: 134, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
	{R: 44, G: 153, B: 168, A: 255},
	{R: 0, G: 194, B: 255, A: 255},
	{R: 52, G: 69, B: 147, A: 255},
	{R: 100, G: 115, B: 255, A: 255},
	{R: 0, G: 24, B: 236, A: 255},
	{R: 132, G: 56, B: 255, A: 255},
	{R: 82, G: 0, B: 133, A: 255},
	{R: 203, G: 56, B: 255, A: 255},
	{R: 255, G: 149, B: 200, A: 255},
	{R: 255, G: 55, B: 199, A: 255},
}

// ColorFor returns the drawing color of a class id.
func ColorFor(classID int) color.RGBA {
	i := classID % len(palette)
	if i < 0 {
		i += len(palette)
	}
	return palette[i]
}

// Annotator draws detections onto copies of frames.
type Annotator struct {
	catalog        *model.ClassCatalog
	showConfidence bool
}

func NewAnnotator(catalog *model.ClassCatalog, showConfidence bool) *Annotator {
	return &Annotator{catalog: catalog, showConfidence: showConfidence}
}

// Annotate returns a new frame with a box and label drawn for every detection.
// The input frame is left untouched; the caller owns the returned Mat.
func (a *Annotator) Annotate(frame gocv.Mat, detections []model.Detection) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: cannot annotate an empty frame", model.ErrFrameDecode)
	}

	out := frame.Clone()
	for _, d := range detections {
		if err := a.draw(&out, d); err != nil {
			out.Close()
			return gocv.NewMat(), err
		}
	}
	return out, nil
}

func (a *Annotator) draw(img *gocv.Mat, d model.Detection) error {
	c := ColorFor(d.ClassID)
	rect := d.Box.Rect()
	if err := gocv.Rectangle(img, rect, c, boxThickness); err != nil {
		return fmt.Errorf("failed to draw rectangle: %w", err)
	}

	label := a.label(d)
	size := gocv.GetTextSize(label, gocv.FontHersheySimplex, labelScale, 1)
	height := size.Y + 2*labelPadding

	// Put the label above the box unless that runs off the top edge.
	top := rect.Min.Y - height
	if top < 0 {
		top = rect.Min.Y
	}
	background := image.Rect(rect.Min.X, top, rect.Min.X+size.X+2*labelPadding, top+height)
	if err := gocv.Rectangle(img, background, c, -1); err != nil {
		return fmt.Errorf("failed to draw label background: %w", err)
	}

	origin := image.Pt(rect.Min.X+labelPadding, top+height-labelPadding)
	if err := gocv.PutText(img, label, origin, gocv.FontHersheySimplex, labelScale, textColor(c), 1); err != nil {
		return fmt.Errorf("failed to draw text: %w", err)
	}
	return nil
}

func (a *Annotator) label(d model.Detection) string {
	name, ok := a.catalog.Name(d.ClassID)
	if !ok {
		name = fmt.Sprintf("class %d", d.ClassID)
	}
	if a.showConfidence {
		return fmt.Sprintf("%s %.2f", name, d.Confidence)
	}
	return name
}

// textColor picks black or white for contrast against the label background.
func textColor(bg color.RGBA) color.RGBA {
	luma := 0.299*float64(bg.R) + 0.587*float64(bg.G) + 0.114*float64(bg.B)
	if luma > 150 {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: 255, G: 255, B: 255, A: 255}
}
