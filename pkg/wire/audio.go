package wire

import "fmt"

// IncomingAudioFormat is the detected codec of the incoming audio stream.
type IncomingAudioFormat byte

// Incoming audio formats.
const (
	AudioFormatPCM               IncomingAudioFormat = 0x00
	AudioFormatAnalogueDirect    IncomingAudioFormat = 0x01
	AudioFormatDolbyDigital      IncomingAudioFormat = 0x02
	AudioFormatDolbyDigitalEX    IncomingAudioFormat = 0x03
	AudioFormatDolbyDigitalSrnd  IncomingAudioFormat = 0x04
	AudioFormatDolbyDigitalPlus  IncomingAudioFormat = 0x05
	AudioFormatDolbyTrueHD       IncomingAudioFormat = 0x06
	AudioFormatDTS               IncomingAudioFormat = 0x07
	AudioFormatDTS9624           IncomingAudioFormat = 0x08
	AudioFormatDTSESMatrix       IncomingAudioFormat = 0x09
	AudioFormatDTSESDiscrete     IncomingAudioFormat = 0x0A
	AudioFormatDTSESMatrix9624   IncomingAudioFormat = 0x0B
	AudioFormatDTSESDiscrete9624 IncomingAudioFormat = 0x0C
	AudioFormatDTSHDMaster       IncomingAudioFormat = 0x0D
	AudioFormatDTSHDHighRes      IncomingAudioFormat = 0x0E
	AudioFormatDTSLowBitRate     IncomingAudioFormat = 0x0F
	AudioFormatDTSCore           IncomingAudioFormat = 0x10
	AudioFormatPCMZero           IncomingAudioFormat = 0x13
	AudioFormatUnsupported       IncomingAudioFormat = 0x14
	AudioFormatUndetected        IncomingAudioFormat = 0x15
)

var audioFormatNames = map[IncomingAudioFormat]string{
	AudioFormatPCM:               "PCM",
	AudioFormatAnalogueDirect:    "ANALOGUE_DIRECT",
	AudioFormatDolbyDigital:      "DOLBY_DIGITAL",
	AudioFormatDolbyDigitalEX:    "DOLBY_DIGITAL_EX",
	AudioFormatDolbyDigitalSrnd:  "DOLBY_DIGITAL_SURROUND",
	AudioFormatDolbyDigitalPlus:  "DOLBY_DIGITAL_PLUS",
	AudioFormatDolbyTrueHD:       "DOLBY_TRUE_HD",
	AudioFormatDTS:               "DTS",
	AudioFormatDTS9624:           "DTS_96_24",
	AudioFormatDTSESMatrix:       "DTS_ES_MATRIX",
	AudioFormatDTSESDiscrete:     "DTS_ES_DISCRETE",
	AudioFormatDTSESMatrix9624:   "DTS_ES_MATRIX_96_24",
	AudioFormatDTSESDiscrete9624: "DTS_ES_DISCRETE_96_24",
	AudioFormatDTSHDMaster:       "DTS_HD_MASTER_AUDIO",
	AudioFormatDTSHDHighRes:      "DTS_HD_HIGH_RES_AUDIO",
	AudioFormatDTSLowBitRate:     "DTS_LOW_BIT_RATE",
	AudioFormatDTSCore:           "DTS_CORE",
	AudioFormatPCMZero:           "PCM_ZERO",
	AudioFormatUnsupported:       "UNSUPPORTED",
	AudioFormatUndetected:        "UNDETECTED",
}

// String returns the audio format name.
func (f IncomingAudioFormat) String() string {
	if name, ok := audioFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(f))
}

// IncomingAudioConfig is the channel configuration of the incoming audio
// stream. The configuration, not the codec, decides which decode-mode table
// applies: multichannel PCM selects the multichannel table even though PCM
// is nominally stereo-capable.
type IncomingAudioConfig byte

// Incoming audio channel configurations.
const (
	AudioConfigDualMono       IncomingAudioConfig = 0x00
	AudioConfigCentreOnly     IncomingAudioConfig = 0x01
	AudioConfigStereoOnly     IncomingAudioConfig = 0x02
	AudioConfigStereoSurround IncomingAudioConfig = 0x03
	AudioConfigStereoBack     IncomingAudioConfig = 0x04
	AudioConfigFivePointZero  IncomingAudioConfig = 0x05
	AudioConfigFivePointOne   IncomingAudioConfig = 0x06
	AudioConfigSevenPointOne  IncomingAudioConfig = 0x07
	AudioConfigUndetected     IncomingAudioConfig = 0x0F
)

var audioConfigs = map[IncomingAudioConfig]struct {
	name     string
	channels int
}{
	AudioConfigDualMono:       {"DUAL_MONO", 2},
	AudioConfigCentreOnly:     {"CENTRE_ONLY", 1},
	AudioConfigStereoOnly:     {"STEREO_ONLY", 2},
	AudioConfigStereoSurround: {"STEREO_SURROUND", 4},
	AudioConfigStereoBack:     {"STEREO_SURROUND_BACK", 6},
	AudioConfigFivePointZero:  {"FIVE_POINT_ZERO", 5},
	AudioConfigFivePointOne:   {"FIVE_POINT_ONE", 6},
	AudioConfigSevenPointOne:  {"SEVEN_POINT_ONE", 8},
	AudioConfigUndetected:     {"UNDETECTED", 0},
}

// String returns the channel configuration name.
func (c IncomingAudioConfig) String() string {
	if info, ok := audioConfigs[c]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(c))
}

// ChannelCount returns the number of channels, 0 if undetected/unknown.
func (c IncomingAudioConfig) ChannelCount() int {
	if info, ok := audioConfigs[c]; ok {
		return info.channels
	}
	return 0
}

// Multichannel reports whether the stream carries more than two channels.
func (c IncomingAudioConfig) Multichannel() bool {
	return c.ChannelCount() > 2
}

// DecodeIncomingAudioFormat decodes the two-byte incoming audio format
// answer: format then channel configuration.
func DecodeIncomingAudioFormat(data []byte) (IncomingAudioFormat, IncomingAudioConfig, error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("incoming audio format: %w", ErrEmptyData)
	}
	return IncomingAudioFormat(data[0]), IncomingAudioConfig(data[1]), nil
}
