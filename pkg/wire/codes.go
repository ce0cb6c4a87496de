package wire

import "fmt"

// CommandCode identifies a protocol command.
type CommandCode byte

// Command codes from the Arcam control reference.
const (
	// System commands.
	CmdPower               CommandCode = 0x00
	CmdDisplayBrightness   CommandCode = 0x01
	CmdHeadphones          CommandCode = 0x02
	CmdFMGenre             CommandCode = 0x03
	CmdSoftwareVersion     CommandCode = 0x04
	CmdRestoreFactory      CommandCode = 0x05
	CmdSaveRestoreSettings CommandCode = 0x06
	CmdSimulateRC5         CommandCode = 0x08
	CmdDisplayInformation  CommandCode = 0x09
	CmdCurrentSource       CommandCode = 0x1D
	CmdHeadphoneOverride   CommandCode = 0x1F

	// Input commands.
	CmdVideoSelection      CommandCode = 0x0A
	CmdSelectAnalogDigital CommandCode = 0x0B
	CmdVideoInputType      CommandCode = 0x0C

	// Output commands.
	CmdVolume                CommandCode = 0x0D
	CmdMute                  CommandCode = 0x0E
	CmdDirectMode            CommandCode = 0x0F
	CmdDecodeMode2CH         CommandCode = 0x10
	CmdDecodeModeMCH         CommandCode = 0x11
	CmdRDSInformation        CommandCode = 0x12
	CmdVideoOutputResolution CommandCode = 0x13

	// Menu and tuner commands.
	CmdMenu                  CommandCode = 0x14
	CmdTunerPreset           CommandCode = 0x15
	CmdTune                  CommandCode = 0x16
	CmdDABStation            CommandCode = 0x18
	CmdDABProgramType        CommandCode = 0x19
	CmdDLSPDTInfo            CommandCode = 0x1A
	CmdPresetDetail          CommandCode = 0x1B
	CmdNetworkPlaybackStatus CommandCode = 0x1C

	// Setup commands.
	CmdTreble                  CommandCode = 0x35
	CmdBass                    CommandCode = 0x36
	CmdRoomEqualisation        CommandCode = 0x37
	CmdDolbyVolume             CommandCode = 0x38
	CmdDolbyLeveler            CommandCode = 0x39
	CmdDolbyVolumeCalibration  CommandCode = 0x3A
	CmdBalance                 CommandCode = 0x3B
	CmdSubwooferTrim           CommandCode = 0x3F
	CmdLipsyncDelay            CommandCode = 0x40
	CmdCompression             CommandCode = 0x41
	CmdIncomingVideoParameters CommandCode = 0x42
	CmdIncomingAudioFormat     CommandCode = 0x43
	CmdIncomingAudioSampleRate CommandCode = 0x44

	// Network playback metadata (HDA series).
	CmdNowPlayingTitle       CommandCode = 0x64
	CmdNowPlayingArtist      CommandCode = 0x65
	CmdNowPlayingAlbum       CommandCode = 0x66
	CmdNowPlayingApplication CommandCode = 0x67
	CmdNowPlayingSampleRate  CommandCode = 0x68
	CmdNowPlayingEncoder     CommandCode = 0x69

	// CmdAMXDuet is a local pseudo-code for the AMX Duet identification
	// exchange, which does not use the framed protocol. It never appears in
	// a framed request or answer.
	CmdAMXDuet CommandCode = 0xFF
)

var commandNames = map[CommandCode]string{
	CmdPower:                   "POWER",
	CmdDisplayBrightness:       "DISPLAY_BRIGHTNESS",
	CmdHeadphones:              "HEADPHONES",
	CmdFMGenre:                 "FM_GENRE",
	CmdSoftwareVersion:         "SOFTWARE_VERSION",
	CmdRestoreFactory:          "RESTORE_FACTORY_DEFAULT",
	CmdSaveRestoreSettings:     "SAVE_RESTORE_SETTINGS",
	CmdSimulateRC5:             "SIMULATE_RC5_IR",
	CmdDisplayInformation:      "DISPLAY_INFORMATION_TYPE",
	CmdCurrentSource:           "CURRENT_SOURCE",
	CmdHeadphoneOverride:       "HEADPHONE_OVERRIDE",
	CmdVideoSelection:          "VIDEO_SELECTION",
	CmdSelectAnalogDigital:     "SELECT_ANALOG_DIGITAL",
	CmdVideoInputType:          "VIDEO_INPUT_TYPE",
	CmdVolume:                  "VOLUME",
	CmdMute:                    "MUTE",
	CmdDirectMode:              "DIRECT_MODE",
	CmdDecodeMode2CH:           "DECODE_MODE_2CH",
	CmdDecodeModeMCH:           "DECODE_MODE_MCH",
	CmdRDSInformation:          "RDS_INFORMATION",
	CmdVideoOutputResolution:   "VIDEO_OUTPUT_RESOLUTION",
	CmdMenu:                    "MENU",
	CmdTunerPreset:             "TUNER_PRESET",
	CmdTune:                    "TUNE",
	CmdDABStation:              "DAB_STATION",
	CmdDABProgramType:          "DAB_PROGRAM_TYPE",
	CmdDLSPDTInfo:              "DLS_PDT_INFO",
	CmdPresetDetail:            "PRESET_DETAIL",
	CmdNetworkPlaybackStatus:   "NETWORK_PLAYBACK_STATUS",
	CmdTreble:                  "TREBLE",
	CmdBass:                    "BASS",
	CmdRoomEqualisation:        "ROOM_EQUALISATION",
	CmdDolbyVolume:             "DOLBY_VOLUME",
	CmdDolbyLeveler:            "DOLBY_LEVELER",
	CmdDolbyVolumeCalibration:  "DOLBY_VOLUME_CALIBRATION",
	CmdBalance:                 "BALANCE",
	CmdSubwooferTrim:           "SUBWOOFER_TRIM",
	CmdLipsyncDelay:            "LIPSYNC_DELAY",
	CmdCompression:             "COMPRESSION",
	CmdIncomingVideoParameters: "INCOMING_VIDEO_PARAMETERS",
	CmdIncomingAudioFormat:     "INCOMING_AUDIO_FORMAT",
	CmdIncomingAudioSampleRate: "INCOMING_AUDIO_SAMPLE_RATE",
	CmdNowPlayingTitle:         "NOW_PLAYING_TITLE",
	CmdNowPlayingArtist:        "NOW_PLAYING_ARTIST",
	CmdNowPlayingAlbum:         "NOW_PLAYING_ALBUM",
	CmdNowPlayingApplication:   "NOW_PLAYING_APPLICATION",
	CmdNowPlayingSampleRate:    "NOW_PLAYING_SAMPLE_RATE",
	CmdNowPlayingEncoder:       "NOW_PLAYING_ENCODER",
	CmdAMXDuet:                 "AMX_DUET",
}

// String returns the command name.
func (c CommandCode) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(c))
}

// Known reports whether the command code is one this library understands.
// Unknown codes still decode into answers so the read loop never stalls.
func (c CommandCode) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// AnswerCode is the status byte of a response frame.
type AnswerCode byte

// Answer codes from the Arcam control reference.
const (
	AnswerStatusUpdate             AnswerCode = 0x00
	AnswerZoneInvalid              AnswerCode = 0x82
	AnswerCommandNotRecognised     AnswerCode = 0x83
	AnswerParameterNotRecognised   AnswerCode = 0x84
	AnswerCommandInvalidAtThisTime AnswerCode = 0x85
	AnswerInvalidDataLength        AnswerCode = 0x86
)

// String returns the answer code name.
func (a AnswerCode) String() string {
	switch a {
	case AnswerStatusUpdate:
		return "STATUS_UPDATE"
	case AnswerZoneInvalid:
		return "ZONE_INVALID"
	case AnswerCommandNotRecognised:
		return "COMMAND_NOT_RECOGNISED"
	case AnswerParameterNotRecognised:
		return "PARAMETER_NOT_RECOGNISED"
	case AnswerCommandInvalidAtThisTime:
		return "COMMAND_INVALID_AT_THIS_TIME"
	case AnswerInvalidDataLength:
		return "INVALID_DATA_LENGTH"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(a))
	}
}

// SourceCode identifies an input source.
type SourceCode byte

// Source codes.
const (
	SourceFollowZone1 SourceCode = 0x00
	SourceCD          SourceCode = 0x01
	SourceBD          SourceCode = 0x02
	SourceAV          SourceCode = 0x03
	SourceSAT         SourceCode = 0x04
	SourcePVR         SourceCode = 0x05
	SourceVCR         SourceCode = 0x06
	SourceAUX         SourceCode = 0x08
	SourceDisplay     SourceCode = 0x09
	SourceFM          SourceCode = 0x0B
	SourceDAB         SourceCode = 0x0C
	SourceBT          SourceCode = 0x0D
	SourceNet         SourceCode = 0x0E
	SourceUSB         SourceCode = 0x0F
	SourceSTB         SourceCode = 0x10
	SourceGame        SourceCode = 0x11
	SourcePhono       SourceCode = 0x12
	SourceNetUSB      SourceCode = 0x13
)

var sourceNames = map[SourceCode]string{
	SourceFollowZone1: "FOLLOW_ZONE_1",
	SourceCD:          "CD",
	SourceBD:          "BD",
	SourceAV:          "AV",
	SourceSAT:         "SAT",
	SourcePVR:         "PVR",
	SourceVCR:         "VCR",
	SourceAUX:         "AUX",
	SourceDisplay:     "DISPLAY",
	SourceFM:          "FM",
	SourceDAB:         "DAB",
	SourceBT:          "BT",
	SourceNet:         "NET",
	SourceUSB:         "USB",
	SourceSTB:         "STB",
	SourceGame:        "GAME",
	SourcePhono:       "PHONO",
	SourceNetUSB:      "NET_USB",
}

// String returns the source name.
func (s SourceCode) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(s))
}

// SourceByName resolves a source name as returned by SourceCode.String.
func SourceByName(name string) (SourceCode, bool) {
	for code, n := range sourceNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

// NetworkCapable reports whether the source carries network playback
// metadata worth polling.
func (s SourceCode) NetworkCapable() bool {
	switch s {
	case SourceNet, SourceUSB, SourceBT, SourceNetUSB:
		return true
	default:
		return false
	}
}

// RC5Code is an infra-red remote code: system byte then command byte.
// Commands without a direct write form (power, mute, volume steps, source
// selection on older models) are issued by simulating these over cc 0x08.
type RC5Code [2]byte

// RC5 system bytes per zone.
const (
	rc5SystemZone1 = 0x10
	rc5SystemZone2 = 0x17
)

// RC5 command bytes.
const (
	rc5PowerOn    = 0x7B
	rc5PowerOff   = 0x7C
	rc5VolumeUp   = 0x10
	rc5VolumeDown = 0x11
	rc5MuteOn     = 0x1A
	rc5MuteOff    = 0x78
)

func rc5System(zone ZoneID) byte {
	if zone == Zone2 {
		return rc5SystemZone2
	}
	return rc5SystemZone1
}

// RC5PowerOn returns the power-on code for a zone.
func RC5PowerOn(zone ZoneID) RC5Code { return RC5Code{rc5System(zone), rc5PowerOn} }

// RC5PowerOff returns the power-off code for a zone.
func RC5PowerOff(zone ZoneID) RC5Code { return RC5Code{rc5System(zone), rc5PowerOff} }

// RC5VolumeUp returns the volume-step-up code for a zone.
func RC5VolumeUp(zone ZoneID) RC5Code { return RC5Code{rc5System(zone), rc5VolumeUp} }

// RC5VolumeDown returns the volume-step-down code for a zone.
func RC5VolumeDown(zone ZoneID) RC5Code { return RC5Code{rc5System(zone), rc5VolumeDown} }

// RC5MuteOn returns the mute-on code for a zone.
func RC5MuteOn(zone ZoneID) RC5Code { return RC5Code{rc5System(zone), rc5MuteOn} }

// RC5MuteOff returns the mute-off code for a zone.
func RC5MuteOff(zone ZoneID) RC5Code { return RC5Code{rc5System(zone), rc5MuteOff} }

// rc5Sources maps sources to their direct-select RC5 command bytes.
var rc5Sources = map[SourceCode]byte{
	SourceCD:      0x76,
	SourceBD:      0x62,
	SourceAV:      0x5E,
	SourceSAT:     0x1B,
	SourcePVR:     0x60,
	SourceVCR:     0x77,
	SourceAUX:     0x63,
	SourceDisplay: 0x3A,
	SourceFM:      0x1C,
	SourceDAB:     0x48,
	SourceBT:      0x7A,
	SourceNet:     0x5C,
	SourceUSB:     0x5D,
	SourceSTB:     0x64,
	SourceGame:    0x61,
	SourcePhono:   0x75,
}

// RC5Source returns the select code for a source, if the source has one.
func RC5Source(zone ZoneID, src SourceCode) (RC5Code, bool) {
	cmd, ok := rc5Sources[src]
	if !ok {
		return RC5Code{}, false
	}
	return RC5Code{rc5System(zone), cmd}, true
}
