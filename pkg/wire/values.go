package wire

import (
	"errors"
	"fmt"
)

// Value errors.
var (
	// ErrValueOutOfRange indicates a value outside its protocol range.
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrEmptyData indicates an answer payload with no bytes where at least
	// one was expected.
	ErrEmptyData = errors.New("empty data")
)

// signBit marks negative values in sign-magnitude encoded bytes.
const signBit = 0x80

// DecodeSignMagnitude decodes a sign-magnitude byte: bit 7 is the sign,
// bits 0-6 the magnitude. 0x8E is -14; 0x00 is 0. Reading these as two's
// complement produces wrong values near zero, which is exactly the defect
// this function exists to avoid.
func DecodeSignMagnitude(b byte) int {
	magnitude := int(b &^ byte(signBit))
	if b&signBit != 0 {
		return -magnitude
	}
	return magnitude
}

// EncodeSignMagnitude encodes a value into sign-magnitude form.
func EncodeSignMagnitude(v int) (byte, error) {
	magnitude := v
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude > 0x7F {
		return 0, fmt.Errorf("%w: %d", ErrValueOutOfRange, v)
	}
	b := byte(magnitude)
	if v < 0 {
		b |= signBit
	}
	return b, nil
}

// Equalisation ranges in protocol units (1 dB per unit except trim).
const (
	BassTrebleRange    = 14 // ±14 dB
	BalanceRange       = 13 // ±13
	SubwooferTrimRange = 14 // ±14 half-dB units (±7 dB)
	VolumeMax          = 99
	LipsyncDelayMax    = 200
)

// SubwooferTrimStepDB is the dB value of one subwoofer trim unit.
const SubwooferTrimStepDB = 0.5

// DecodeEqualisation decodes a sign-magnitude EQ byte and validates it
// against the given symmetric range.
func DecodeEqualisation(data []byte, rangeLimit int) (int, error) {
	if len(data) < 1 {
		return 0, ErrEmptyData
	}
	v := DecodeSignMagnitude(data[0])
	if v < -rangeLimit || v > rangeLimit {
		return 0, fmt.Errorf("%w: %d", ErrValueOutOfRange, v)
	}
	return v, nil
}

// EncodeEqualisation encodes an EQ value, validating the range first.
func EncodeEqualisation(v, rangeLimit int) (byte, error) {
	if v < -rangeLimit || v > rangeLimit {
		return 0, fmt.Errorf("%w: %d", ErrValueOutOfRange, v)
	}
	return EncodeSignMagnitude(v)
}

// SubwooferTrimDB converts a raw trim value (half-dB units) to dB.
func SubwooferTrimDB(units int) float64 {
	return float64(units) * SubwooferTrimStepDB
}

// PowerState is the power attribute value.
type PowerState byte

// Power states.
const (
	PowerStandby PowerState = 0x00
	PowerOn      PowerState = 0x01
)

// On reports whether the zone is powered on.
func (p PowerState) On() bool { return p == PowerOn }

// String returns the power state name.
func (p PowerState) String() string {
	switch p {
	case PowerStandby:
		return "STANDBY"
	case PowerOn:
		return "ON"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(p))
	}
}

// DecodePower decodes a power answer payload.
func DecodePower(data []byte) (PowerState, error) {
	if len(data) < 1 {
		return 0, ErrEmptyData
	}
	s := PowerState(data[0])
	if s != PowerStandby && s != PowerOn {
		return 0, fmt.Errorf("%w: 0x%02X", ErrValueOutOfRange, data[0])
	}
	return s, nil
}

// MuteState is the mute attribute value.
type MuteState byte

// Mute states. The receiver reports 0x00 for muted.
const (
	Muted    MuteState = 0x00
	NotMuted MuteState = 0x01
)

// Muted reports whether the zone output is muted.
func (m MuteState) Muted() bool { return m == Muted }

// String returns the mute state name.
func (m MuteState) String() string {
	switch m {
	case Muted:
		return "MUTED"
	case NotMuted:
		return "NOT_MUTED"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(m))
	}
}

// DecodeMute decodes a mute answer payload.
func DecodeMute(data []byte) (MuteState, error) {
	if len(data) < 1 {
		return 0, ErrEmptyData
	}
	s := MuteState(data[0])
	if s != Muted && s != NotMuted {
		return 0, fmt.Errorf("%w: 0x%02X", ErrValueOutOfRange, data[0])
	}
	return s, nil
}

// DecodeVolume decodes a volume answer payload (0..99).
func DecodeVolume(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, ErrEmptyData
	}
	v := int(data[0])
	if v > VolumeMax {
		return 0, fmt.Errorf("%w: %d", ErrValueOutOfRange, v)
	}
	return v, nil
}

// EncodeVolume encodes a volume set value (0..99).
func EncodeVolume(v int) (byte, error) {
	if v < 0 || v > VolumeMax {
		return 0, fmt.Errorf("%w: %d", ErrValueOutOfRange, v)
	}
	return byte(v), nil
}

// Brightness is the front display brightness level.
type Brightness byte

// Brightness levels.
const (
	BrightnessOff    Brightness = 0x00
	BrightnessLevel1 Brightness = 0x01
	BrightnessLevel2 Brightness = 0x02
	BrightnessLevel3 Brightness = 0x03
)

// String returns the brightness level name.
func (b Brightness) String() string {
	switch b {
	case BrightnessOff:
		return "OFF"
	case BrightnessLevel1:
		return "LEVEL_1"
	case BrightnessLevel2:
		return "LEVEL_2"
	case BrightnessLevel3:
		return "LEVEL_3"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(b))
	}
}

// Compression is the dynamic range compression setting.
type Compression byte

// Compression levels.
const (
	CompressionOff    Compression = 0x00
	CompressionLight  Compression = 0x01
	CompressionMedium Compression = 0x02
	CompressionHeavy  Compression = 0x03
)

// String returns the compression level name.
func (c Compression) String() string {
	switch c {
	case CompressionOff:
		return "OFF"
	case CompressionLight:
		return "LIGHT"
	case CompressionMedium:
		return "MEDIUM"
	case CompressionHeavy:
		return "HEAVY"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(c))
	}
}

// DecodeByte decodes a single-byte answer payload without interpretation.
func DecodeByte(data []byte) (byte, error) {
	if len(data) < 1 {
		return 0, ErrEmptyData
	}
	return data[0], nil
}

// DecodeString decodes a text answer payload (RDS text, DLS/PDT, DAB
// station names, now-playing fields). The receiver pads with spaces and
// occasionally NULs; both are stripped.
func DecodeString(data []byte) string {
	end := len(data)
	for end > 0 && (data[end-1] == 0x00 || data[end-1] == ' ') {
		end--
	}
	start := 0
	for start < end && (data[start] == 0x00 || data[start] == ' ') {
		start++
	}
	return string(data[start:end])
}

// DecodeSampleRate decodes an incoming audio sample rate answer to Hz.
var sampleRates = map[byte]int{
	0x00: 32000,
	0x01: 44100,
	0x02: 48000,
	0x03: 88200,
	0x04: 96000,
	0x05: 176400,
	0x06: 192000,
}

// DecodeSampleRate returns the sample rate in Hz, or 0 for "undetected".
func DecodeSampleRate(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, ErrEmptyData
	}
	if rate, ok := sampleRates[data[0]]; ok {
		return rate, nil
	}
	return 0, nil
}
