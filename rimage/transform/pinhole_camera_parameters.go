package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// squarePixelTolerance is the largest relative difference between fx and fy accepted by the
// single focal length image plane model.
const squarePixelTolerance = 1e-3

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, intrinsics.CheckValid()
}

// NewPinholeCameraIntrinsicsFromFieldOfView builds intrinsics for an image of the given size
// with square pixels, a centred principal point and the given horizontal field of view in radians.
func NewPinholeCameraIntrinsicsFromFieldOfView(size ImageSize, horizontalFOV float64) (*PinholeCameraIntrinsics, error) {
	if err := size.CheckValid(); err != nil {
		return nil, err
	}
	if horizontalFOV <= 0 || horizontalFOV >= math.Pi {
		return nil, NewNoIntrinsicsError(fmt.Sprintf("Invalid field of view %v", horizontalFOV))
	}
	f := 0.5 * float64(size.Width) / math.Tan(0.5*horizontalFOV)
	return &PinholeCameraIntrinsics{
		Width:  size.Width,
		Height: size.Height,
		Fx:     f,
		Fy:     f,
		Ppx:    0.5 * float64(size.Width),
		Ppy:    0.5 * float64(size.Height),
	}, nil
}

// ImageSize returns the image dimensions.
func (params *PinholeCameraIntrinsics) ImageSize() ImageSize {
	return ImageSize{Width: params.Width, Height: params.Height}
}

// ImagePlaneFocalLength returns the focal length relative to half of the larger image dimension.
// Non-square pixels cannot be expressed in that model and are rejected.
func (params *PinholeCameraIntrinsics) ImagePlaneFocalLength() (float64, error) {
	if err := params.CheckValid(); err != nil {
		return 0, err
	}
	if math.Abs(params.Fx-params.Fy) > squarePixelTolerance*params.Fx {
		return 0, NewNoIntrinsicsError(fmt.Sprintf("non-square pixels fx = %v, fy = %v", params.Fx, params.Fy))
	}
	return params.Fx / params.ImageSize().PixelsPerImagePlaneUnit(), nil
}

// ImagePlanePrincipalPoint returns the principal point in the image plane frame.
func (params *PinholeCameraIntrinsics) ImagePlanePrincipalPoint() ImagePlanePoint {
	return params.PixelToImagePlane(params.Ppx, params.Ppy)
}

// PixelToImagePlane converts a pixel coordinate to the image plane frame.
func (params *PinholeCameraIntrinsics) PixelToImagePlane(x, y float64) ImagePlanePoint {
	size := params.ImageSize()
	return size.ToImagePlane(size.PixelToRelative(x, y))
}
