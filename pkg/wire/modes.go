package wire

import (
	"fmt"
	"strings"
)

// DecodeMode is a surround/stereo processing mode. Two parallel value
// spaces exist: one for two-channel input and one for multichannel input.
// The incoming channel configuration selects the table, never the source
// type or codec name.
type DecodeMode interface {
	fmt.Stringer

	// Code is the raw protocol value within the mode's table.
	Code() byte

	// Multichannel reports which table the mode belongs to.
	Multichannel() bool
}

// DecodeMode2CH is a processing mode for two-channel input.
type DecodeMode2CH byte

// Two-channel decode modes.
const (
	Mode2CHStereo           DecodeMode2CH = 0x01
	Mode2CHProLogicIIxMovie DecodeMode2CH = 0x02
	Mode2CHProLogicIIxMusic DecodeMode2CH = 0x03
	Mode2CHProLogicIIxGame  DecodeMode2CH = 0x04
	Mode2CHNeo6Cinema       DecodeMode2CH = 0x05
	Mode2CHNeo6Music        DecodeMode2CH = 0x06
	Mode2CHMultiChStereo    DecodeMode2CH = 0x07
	Mode2CHDolbySurround    DecodeMode2CH = 0x08
	Mode2CHDTSNeuralX       DecodeMode2CH = 0x09
	Mode2CHDTSVirtualX      DecodeMode2CH = 0x0A
)

var mode2CHNames = map[DecodeMode2CH]string{
	Mode2CHStereo:           "STEREO",
	Mode2CHProLogicIIxMovie: "PRO_LOGIC_IIX_MOVIE",
	Mode2CHProLogicIIxMusic: "PRO_LOGIC_IIX_MUSIC",
	Mode2CHProLogicIIxGame:  "PRO_LOGIC_IIX_GAME",
	Mode2CHNeo6Cinema:       "NEO_6_CINEMA",
	Mode2CHNeo6Music:        "NEO_6_MUSIC",
	Mode2CHMultiChStereo:    "MULTI_CHANNEL_STEREO",
	Mode2CHDolbySurround:    "DOLBY_SURROUND",
	Mode2CHDTSNeuralX:       "DTS_NEURAL_X",
	Mode2CHDTSVirtualX:      "DTS_VIRTUAL_X",
}

// String returns the mode name.
func (m DecodeMode2CH) String() string {
	if name, ok := mode2CHNames[m]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_2CH(0x%02X)", byte(m))
}

// Code returns the raw protocol value.
func (m DecodeMode2CH) Code() byte { return byte(m) }

// Multichannel is always false for two-channel modes.
func (DecodeMode2CH) Multichannel() bool { return false }

// DecodeModeMCH is a processing mode for multichannel input.
type DecodeModeMCH byte

// Multichannel decode modes.
const (
	ModeMCHStereoDownmix    DecodeModeMCH = 0x01
	ModeMCHMultiChannel     DecodeModeMCH = 0x02
	ModeMCHDolbyDEXorDTSES  DecodeModeMCH = 0x03
	ModeMCHProLogicIIxMovie DecodeModeMCH = 0x04
	ModeMCHProLogicIIxMusic DecodeModeMCH = 0x05
	ModeMCHDolbySurround    DecodeModeMCH = 0x06
	ModeMCHDTSNeuralX       DecodeModeMCH = 0x07
	ModeMCHDTSVirtualX      DecodeModeMCH = 0x08
)

var modeMCHNames = map[DecodeModeMCH]string{
	ModeMCHStereoDownmix:    "STEREO_DOWNMIX",
	ModeMCHMultiChannel:     "MULTI_CHANNEL",
	ModeMCHDolbyDEXorDTSES:  "DOLBY_D_EX_OR_DTS_ES",
	ModeMCHProLogicIIxMovie: "PRO_LOGIC_IIX_MOVIE",
	ModeMCHProLogicIIxMusic: "PRO_LOGIC_IIX_MUSIC",
	ModeMCHDolbySurround:    "DOLBY_SURROUND",
	ModeMCHDTSNeuralX:       "DTS_NEURAL_X",
	ModeMCHDTSVirtualX:      "DTS_VIRTUAL_X",
}

// String returns the mode name.
func (m DecodeModeMCH) String() string {
	if name, ok := modeMCHNames[m]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_MCH(0x%02X)", byte(m))
}

// Code returns the raw protocol value.
func (m DecodeModeMCH) Code() byte { return byte(m) }

// Multichannel is always true for multichannel modes.
func (DecodeModeMCH) Multichannel() bool { return true }

// ResolveDecodeMode maps a raw decode-mode value through the table selected
// by the incoming channel configuration. An undetected configuration
// resolves through the two-channel table.
func ResolveDecodeMode(config IncomingAudioConfig, raw byte) DecodeMode {
	if config.Multichannel() {
		return DecodeModeMCH(raw)
	}
	return DecodeMode2CH(raw)
}

// DecodeModeCommand returns the command code that reads or writes the
// decode mode for the given channel configuration.
func DecodeModeCommand(config IncomingAudioConfig) CommandCode {
	if config.Multichannel() {
		return CmdDecodeModeMCH
	}
	return CmdDecodeMode2CH
}

// ModeByName resolves a decode-mode name against both tables, ignoring
// case. Multichannel modes are consulted first when mch is true.
func ModeByName(name string, mch bool) (DecodeMode, bool) {
	name = strings.ToUpper(name)
	if mch {
		for m, n := range modeMCHNames {
			if n == name {
				return m, true
			}
		}
	}
	for m, n := range mode2CHNames {
		if n == name {
			return m, true
		}
	}
	for m, n := range modeMCHNames {
		if n == name {
			return m, true
		}
	}
	return nil, false
}
