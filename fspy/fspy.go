// Package fspy reads and writes fSpy project files so calibrations can be opened in fSpy and
// its Blender importer.
package fspy

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/perspective/rimage/calibration"
)

const (
	// magic is "fspy" read as a little endian uint32.
	magic uint32 = 2037412710
	// Version is the only container version understood.
	Version uint32 = 1

	headerSize     = 16
	maxSectionSize = 1 << 30

	defaultReferenceDistanceUnit = "Meters"
)

var (
	// ErrInvalidMagic is returned when a file does not start with the fSpy magic number.
	ErrInvalidMagic = errors.New("not an fspy file")
	// ErrUnsupportedVersion is returned for container versions other than Version.
	ErrUnsupportedVersion = errors.New("unsupported fspy version")
)

// PrincipalPoint is in the image plane frame.
type PrincipalPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CameraTransform is the camera to world transform in row major order.
type CameraTransform struct {
	Rows [4][4]float64 `json:"rows"`
}

// CameraParameters is the solved camera as fSpy stores it.
type CameraParameters struct {
	PrincipalPoint        PrincipalPoint  `json:"principalPoint"`
	CameraTransform       CameraTransform `json:"cameraTransform"`
	HorizontalFieldOfView float64         `json:"horizontalFieldOfView"`
	ImageWidth            int             `json:"imageWidth"`
	ImageHeight           int             `json:"imageHeight"`
}

// CalibrationSettingsBase holds the settings fSpy shares between calibration modes.
type CalibrationSettingsBase struct {
	ReferenceDistanceUnit string `json:"referenceDistanceUnit"`
}

// SceneSettings is the JSON section of an fSpy file.
type SceneSettings struct {
	CameraParameters        CameraParameters        `json:"cameraParameters"`
	CalibrationSettingsBase CalibrationSettingsBase `json:"calibrationSettingsBase"`
}

// File is a decoded fSpy file: the scene settings and the raw image bytes.
type File struct {
	Data  SceneSettings
	Image []byte
}

// FromCameraParameters converts a calibration result.
func FromCameraParameters(params *calibration.CameraParameters) SceneSettings {
	unit := params.ReferenceDistanceUnit
	if unit == "" {
		unit = defaultReferenceDistanceUnit
	}
	return SceneSettings{
		CameraParameters: CameraParameters{
			PrincipalPoint:        PrincipalPoint{X: params.PrincipalPoint.X, Y: params.PrincipalPoint.Y},
			CameraTransform:       CameraTransform{Rows: params.CameraTransform.Rows()},
			HorizontalFieldOfView: params.HorizontalFieldOfView,
			ImageWidth:            params.ImageSize.Width,
			ImageHeight:           params.ImageSize.Height,
		},
		CalibrationSettingsBase: CalibrationSettingsBase{ReferenceDistanceUnit: unit},
	}
}

type header struct {
	Magic       uint32
	Version     uint32
	DataLength  uint32
	ImageLength uint32
}

// Encode writes f in the fSpy container format.
func Encode(w io.Writer, f *File) error {
	data, err := json.Marshal(f.Data)
	if err != nil {
		return errors.Wrap(err, "failed to encode scene settings")
	}
	if len(data) > maxSectionSize || len(f.Image) > maxSectionSize {
		return errors.Errorf("fspy sections too large (%d and %d bytes)", len(data), len(f.Image))
	}
	h := header{
		Magic:       magic,
		Version:     Version,
		DataLength:  uint32(len(data)),
		ImageLength: uint32(len(f.Image)),
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write(f.Image)
	return err
}

// Decode reads one fSpy file from r.
func Decode(r io.Reader) (*File, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, errors.Wrap(err, "failed to read fspy header")
	}
	if h.Magic != magic {
		return nil, errors.Wrapf(ErrInvalidMagic, "magic %d", h.Magic)
	}
	if h.Version != Version {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", h.Version)
	}
	if h.DataLength > maxSectionSize || h.ImageLength > maxSectionSize {
		return nil, errors.Errorf("fspy sections too large (%d and %d bytes)", h.DataLength, h.ImageLength)
	}
	data := make([]byte, h.DataLength)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.Wrap(err, "failed to read fspy scene settings")
	}
	f := &File{Image: make([]byte, h.ImageLength)}
	if err := json.Unmarshal(data, &f.Data); err != nil {
		return nil, errors.Wrap(err, "failed to decode fspy scene settings")
	}
	if _, err := io.ReadFull(r, f.Image); err != nil {
		return nil, errors.Wrap(err, "failed to read fspy image")
	}
	return f, nil
}

// WriteFile encodes f to path.
func WriteFile(path string, f *File) error {
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		return err
	}
	//nolint:gosec
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ReadFile decodes the fSpy file at path.
func ReadFile(path string) (*File, error) {
	//nolint:gosec
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(file.Close)
	return Decode(file)
}
