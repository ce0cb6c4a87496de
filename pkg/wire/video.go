package wire

import (
	"encoding/binary"
	"fmt"
)

// Colorspace is the incoming video colorspace.
type Colorspace byte

// Colorspaces.
const (
	ColorspaceRGB      Colorspace = 0x00
	ColorspaceYCbCr444 Colorspace = 0x01
	ColorspaceYCbCr422 Colorspace = 0x02
	ColorspaceYCbCr420 Colorspace = 0x03
)

// String returns the colorspace name.
func (c Colorspace) String() string {
	switch c {
	case ColorspaceRGB:
		return "RGB"
	case ColorspaceYCbCr444:
		return "YCBCR_444"
	case ColorspaceYCbCr422:
		return "YCBCR_422"
	case ColorspaceYCbCr420:
		return "YCBCR_420"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(c))
	}
}

// VideoParameters describes the incoming video stream.
type VideoParameters struct {
	HorizontalResolution int
	VerticalResolution   int
	RefreshRate          int
	Interlaced           bool
	Colorspace           Colorspace
}

// videoParametersSize is the payload length of an incoming video
// parameters answer: hres u16, vres u16, refresh u8, interlaced u8,
// aspect u8, colorspace u8.
const videoParametersSize = 8

// DecodeVideoParameters decodes an incoming video parameters answer.
func DecodeVideoParameters(data []byte) (*VideoParameters, error) {
	if len(data) < videoParametersSize {
		return nil, fmt.Errorf("video parameters: %w (%d bytes)", ErrEmptyData, len(data))
	}
	return &VideoParameters{
		HorizontalResolution: int(binary.BigEndian.Uint16(data[0:2])),
		VerticalResolution:   int(binary.BigEndian.Uint16(data[2:4])),
		RefreshRate:          int(data[4]),
		Interlaced:           data[5] != 0,
		Colorspace:           Colorspace(data[7]),
	}, nil
}

// Encode serializes the parameters for the test emulator.
func (v *VideoParameters) Encode() []byte {
	data := make([]byte, videoParametersSize)
	binary.BigEndian.PutUint16(data[0:2], uint16(v.HorizontalResolution))
	binary.BigEndian.PutUint16(data[2:4], uint16(v.VerticalResolution))
	data[4] = byte(v.RefreshRate)
	if v.Interlaced {
		data[5] = 1
	}
	data[7] = byte(v.Colorspace)
	return data
}

// ScanMode returns "Interlaced" or "Progressive".
func (v *VideoParameters) ScanMode() string {
	if v.Interlaced {
		return "Interlaced"
	}
	return "Progressive"
}

// Resolution returns the resolution as "1920x1080".
func (v *VideoParameters) Resolution() string {
	return fmt.Sprintf("%dx%d", v.HorizontalResolution, v.VerticalResolution)
}
