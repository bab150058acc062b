package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ErrInvalidImageSize is returned when an image has a non-positive dimension.
var ErrInvalidImageSize = errors.New("invalid image size")

// RelativePoint is a point in the relative image frame: both coordinates run from 0 to 1,
// the origin is the top left corner and y grows downwards. Control points entered on an
// image are expressed in this frame.
type RelativePoint struct {
	r2.Point
}

// NewRelativePoint returns the relative point (x, y).
func NewRelativePoint(x, y float64) RelativePoint {
	return RelativePoint{r2.Point{X: x, Y: y}}
}

// ImagePlanePoint is a point in the image plane frame: the origin is the image centre,
// y grows upwards and half of the larger image dimension has length 1. All vanishing point
// and pose math happens in this frame.
type ImagePlanePoint struct {
	r2.Point
}

// NewImagePlanePoint returns the image plane point (x, y).
func NewImagePlanePoint(x, y float64) ImagePlanePoint {
	return ImagePlanePoint{r2.Point{X: x, Y: y}}
}

// ImageSize is the pixel size of an image.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CheckValid returns an error if either dimension is not positive.
func (s ImageSize) CheckValid() error {
	if s.Width <= 0 || s.Height <= 0 {
		return errors.Wrapf(ErrInvalidImageSize, "(%d, %d)", s.Width, s.Height)
	}
	return nil
}

// AspectRatio returns width over height.
func (s ImageSize) AspectRatio() float64 {
	return float64(s.Width) / float64(s.Height)
}

// ToImagePlane converts a relative point to the image plane frame.
func (s ImageSize) ToImagePlane(p RelativePoint) ImagePlanePoint {
	aspect := s.AspectRatio()
	if aspect <= 1 {
		return NewImagePlanePoint((2*p.X-1)*aspect, 1-2*p.Y)
	}
	return NewImagePlanePoint(2*p.X-1, (1-2*p.Y)/aspect)
}

// ToRelative converts an image plane point to the relative frame. It is the inverse of ToImagePlane.
func (s ImageSize) ToRelative(p ImagePlanePoint) RelativePoint {
	aspect := s.AspectRatio()
	if aspect <= 1 {
		return NewRelativePoint((p.X/aspect+1)/2, (1-p.Y)/2)
	}
	return NewRelativePoint((p.X+1)/2, (1-p.Y*aspect)/2)
}

// PixelToRelative converts a pixel coordinate (origin top left) to the relative frame.
func (s ImageSize) PixelToRelative(x, y float64) RelativePoint {
	return NewRelativePoint(x/float64(s.Width), y/float64(s.Height))
}

// RelativeToPixel converts a relative point to a pixel coordinate.
func (s ImageSize) RelativeToPixel(p RelativePoint) (float64, float64) {
	return p.X * float64(s.Width), p.Y * float64(s.Height)
}

// PixelsPerImagePlaneUnit is half of the larger image dimension.
func (s ImageSize) PixelsPerImagePlaneUnit() float64 {
	return 0.5 * math.Max(float64(s.Width), float64(s.Height))
}
