package wire

// APIModel selects the capability table set for a detected device family.
type APIModel uint8

// API model families.
const (
	// API450Series is the generic fallback used when detection fails.
	API450Series APIModel = iota
	API860Series
	APIHDASeries
	APISASeries
	APIPASeries
	APISTSeries
)

// String returns the family name.
func (m APIModel) String() string {
	switch m {
	case API450Series:
		return "450_SERIES"
	case API860Series:
		return "860_SERIES"
	case APIHDASeries:
		return "HDA_SERIES"
	case APISASeries:
		return "SA_SERIES"
	case APIPASeries:
		return "PA_SERIES"
	case APISTSeries:
		return "ST_SERIES"
	default:
		return "UNKNOWN"
	}
}

// modelFamilies maps the AMX-reported model string to its family.
var modelFamilies = map[string]APIModel{
	"AVR380": API450Series,
	"AVR450": API450Series,
	"AVR750": API450Series,

	"AV860":  API860Series,
	"AVR850": API860Series,
	"AVR550": API860Series,
	"AVR390": API860Series,
	"SR250":  API860Series,

	"AVR5":  APIHDASeries,
	"AVR10": APIHDASeries,
	"AVR20": APIHDASeries,
	"AVR30": APIHDASeries,
	"AV40":  APIHDASeries,
	"AVR11": APIHDASeries,
	"AVR21": APIHDASeries,
	"AVR31": APIHDASeries,
	"AV41":  APIHDASeries,

	"SA10": APISASeries,
	"SA20": APISASeries,
	"SA30": APISASeries,

	"PA240": APIPASeries,
	"PA410": APIPASeries,
	"PA720": APIPASeries,

	"ST60": APISTSeries,
}

// ResolveAPIModel maps a detected model string to its API family.
// Unrecognized or empty strings fall back to the 450-series table so an
// unidentified receiver stays controllable.
func ResolveAPIModel(model string) APIModel {
	if family, ok := modelFamilies[model]; ok {
		return family
	}
	return API450Series
}

// CapabilitySet describes what a device family supports and how.
type CapabilitySet struct {
	Model APIModel

	// Sources selectable on this family.
	Sources []SourceCode

	// DecodeModes2CH and DecodeModesMCH are the primary mode tables.
	DecodeModes2CH []DecodeMode
	DecodeModesMCH []DecodeMode

	// VolumeMax is the highest settable volume.
	VolumeMax int

	// DirectMute, DirectPower and DirectSource report whether the family
	// accepts direct writes for these attributes. When false the client
	// simulates the RC5 remote code instead, and the acknowledgement does
	// not carry the resulting state: a follow-up read is required.
	DirectMute   bool
	DirectPower  bool
	DirectSource bool
}

var capabilities = map[APIModel]*CapabilitySet{
	API450Series: {
		Model: API450Series,
		Sources: []SourceCode{
			SourceFollowZone1, SourceCD, SourceBD, SourceAV, SourceSAT,
			SourcePVR, SourceVCR, SourceAUX, SourceDisplay, SourceFM,
			SourceDAB, SourceNet, SourceUSB,
		},
		DecodeModes2CH: []DecodeMode{
			Mode2CHStereo, Mode2CHProLogicIIxMovie, Mode2CHProLogicIIxMusic,
			Mode2CHProLogicIIxGame, Mode2CHNeo6Cinema, Mode2CHNeo6Music,
			Mode2CHMultiChStereo,
		},
		DecodeModesMCH: []DecodeMode{
			ModeMCHStereoDownmix, ModeMCHMultiChannel, ModeMCHDolbyDEXorDTSES,
			ModeMCHProLogicIIxMovie, ModeMCHProLogicIIxMusic,
		},
		VolumeMax: VolumeMax,
	},
	API860Series: {
		Model: API860Series,
		Sources: []SourceCode{
			SourceFollowZone1, SourceCD, SourceBD, SourceAV, SourceSAT,
			SourcePVR, SourceAUX, SourceDisplay, SourceFM, SourceDAB,
			SourceNet, SourceUSB, SourceSTB, SourceGame,
		},
		DecodeModes2CH: []DecodeMode{
			Mode2CHStereo, Mode2CHDolbySurround, Mode2CHNeo6Cinema,
			Mode2CHNeo6Music, Mode2CHMultiChStereo, Mode2CHDTSNeuralX,
		},
		DecodeModesMCH: []DecodeMode{
			ModeMCHStereoDownmix, ModeMCHMultiChannel, ModeMCHDolbySurround,
			ModeMCHDTSNeuralX,
		},
		VolumeMax: VolumeMax,
	},
	APIHDASeries: {
		Model: APIHDASeries,
		Sources: []SourceCode{
			SourceFollowZone1, SourceCD, SourceBD, SourceAV, SourceSAT,
			SourcePVR, SourceAUX, SourceDisplay, SourceFM, SourceDAB,
			SourceBT, SourceNet, SourceSTB, SourceGame, SourcePhono,
		},
		DecodeModes2CH: []DecodeMode{
			Mode2CHStereo, Mode2CHDolbySurround, Mode2CHDTSNeuralX,
			Mode2CHDTSVirtualX, Mode2CHMultiChStereo,
		},
		DecodeModesMCH: []DecodeMode{
			ModeMCHStereoDownmix, ModeMCHMultiChannel, ModeMCHDolbySurround,
			ModeMCHDTSNeuralX, ModeMCHDTSVirtualX,
		},
		VolumeMax:    VolumeMax,
		DirectMute:   true,
		DirectPower:  true,
		DirectSource: true,
	},
	APISASeries: {
		Model: APISASeries,
		Sources: []SourceCode{
			SourceCD, SourceAV, SourceSAT, SourcePVR, SourceAUX,
			SourceBT, SourceNet, SourceUSB, SourcePhono,
		},
		DecodeModes2CH: []DecodeMode{Mode2CHStereo},
		VolumeMax:      VolumeMax,
		DirectMute:     true,
		DirectPower:    true,
		DirectSource:   true,
	},
	APIPASeries: {
		Model:     APIPASeries,
		VolumeMax: VolumeMax,
	},
	APISTSeries: {
		Model: APISTSeries,
		Sources: []SourceCode{
			SourceNet, SourceUSB, SourceBT,
		},
		DecodeModes2CH: []DecodeMode{Mode2CHStereo},
		VolumeMax:      VolumeMax,
		DirectMute:     true,
		DirectPower:    true,
		DirectSource:   true,
	},
}

// Capabilities returns the capability set for a family. The result is
// shared and must not be mutated.
func Capabilities(m APIModel) *CapabilitySet {
	if caps, ok := capabilities[m]; ok {
		return caps
	}
	return capabilities[API450Series]
}

// SupportsSource reports whether the family lists the source.
func (c *CapabilitySet) SupportsSource(s SourceCode) bool {
	for _, candidate := range c.Sources {
		if candidate == s {
			return true
		}
	}
	return false
}

// DecodeModesFor returns the primary mode table for a channel
// configuration.
func (c *CapabilitySet) DecodeModesFor(config IncomingAudioConfig) []DecodeMode {
	if config.Multichannel() {
		return c.DecodeModesMCH
	}
	return c.DecodeModes2CH
}
