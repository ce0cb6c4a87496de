package state

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jansinger/arcamfmj/pkg/client"
	"github.com/jansinger/arcamfmj/pkg/wire"
)

// Change describes one attribute transition on a zone.
type Change struct {
	Zone wire.ZoneID
	Code wire.CommandCode
	Old  []byte // nil when the attribute was never seen before
	New  []byte
}

// Zone is the authoritative cache of one zone's attributes. All answers the
// client decodes for this zone are applied here in arrival order; getters
// read the cache without touching the wire.
type Zone struct {
	client *client.Client
	id     wire.ZoneID
	log    *slog.Logger

	mu          sync.Mutex
	values      map[wire.CommandCode][]byte
	pending     map[wire.CommandCode]bool
	unsupported map[wire.CommandCode]bool
	changeFns   []func(Change)
}

// NewZone builds a zone store and hooks it into the client's answer stream.
// The store lives as long as the client does.
func NewZone(c *client.Client, id wire.ZoneID, logger *slog.Logger) *Zone {
	if logger == nil {
		logger = slog.Default()
	}
	z := &Zone{
		client:      c,
		id:          id,
		log:         logger.With("zone", int(id)),
		values:      make(map[wire.CommandCode][]byte),
		pending:     make(map[wire.CommandCode]bool),
		unsupported: make(map[wire.CommandCode]bool),
	}
	c.OnAnswer(z.apply)
	return z
}

// ID returns the zone number.
func (z *Zone) ID() wire.ZoneID { return z.id }

// OnChange registers fn for attribute diffs. Callbacks run on the client's
// read loop in answer order; keep them short.
func (z *Zone) OnChange(fn func(Change)) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.changeFns = append(z.changeFns, fn)
}

// apply folds one answer into the cache. Only the client's read loop calls
// this, so applications are naturally serialized in arrival order.
func (z *Zone) apply(answer *wire.Answer) {
	if answer.Zone != z.id || !answer.OK() {
		return
	}
	// RC5 acks echo the code bytes, not state.
	if answer.Code == wire.CmdSimulateRC5 {
		return
	}

	z.mu.Lock()
	old, seen := z.values[answer.Code]
	if seen && bytes.Equal(old, answer.Data) {
		delete(z.pending, answer.Code)
		z.mu.Unlock()
		return
	}
	data := make([]byte, len(answer.Data))
	copy(data, answer.Data)
	z.values[answer.Code] = data
	delete(z.pending, answer.Code)
	fns := make([]func(Change), len(z.changeFns))
	copy(fns, z.changeFns)
	z.mu.Unlock()

	change := Change{Zone: z.id, Code: answer.Code, Old: old, New: data}
	for _, fn := range fns {
		fn(change)
	}
}

// raw returns a copy of the cached payload for code.
func (z *Zone) raw(code wire.CommandCode) ([]byte, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	data, ok := z.values[code]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// Snapshot returns a copy of every cached attribute payload.
func (z *Zone) Snapshot() map[wire.CommandCode][]byte {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make(map[wire.CommandCode][]byte, len(z.values))
	for code, data := range z.values {
		cp := make([]byte, len(data))
		copy(cp, data)
		out[code] = cp
	}
	return out
}

// Pending reports whether an optimistic write on code awaits its readback.
func (z *Zone) Pending(code wire.CommandCode) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.pending[code]
}

func (z *Zone) markPending(code wire.CommandCode) {
	z.mu.Lock()
	z.pending[code] = true
	z.mu.Unlock()
}

func (z *Zone) clearPending(code wire.CommandCode) {
	z.mu.Lock()
	delete(z.pending, code)
	z.mu.Unlock()
}

func (z *Zone) markUnsupported(code wire.CommandCode) {
	z.mu.Lock()
	z.unsupported[code] = true
	z.mu.Unlock()
}

// Unsupported reports whether the receiver rejected code with "command not
// recognised" at some point this session.
func (z *Zone) Unsupported(code wire.CommandCode) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.unsupported[code]
}

// Available reports whether the zone can be controlled right now: the
// client is connected and a power reading has been received. A zone whose
// power state was never read is unavailable, not "off".
func (z *Zone) Available() bool {
	if !z.client.Connected() {
		return false
	}
	_, ok := z.raw(wire.CmdPower)
	return ok
}

// GetPower returns the cached power state.
func (z *Zone) GetPower() (wire.PowerState, bool) {
	data, ok := z.raw(wire.CmdPower)
	if !ok {
		return 0, false
	}
	p, err := wire.DecodePower(data)
	if err != nil {
		return 0, false
	}
	return p, true
}

// SetPower switches the zone on or into standby. No family accepts a
// direct power write reliably, so this simulates the RC5 code and
// reconciles with a readback.
func (z *Zone) SetPower(ctx context.Context, on bool) error {
	if z.client.Capabilities().DirectPower {
		v := byte(wire.PowerStandby)
		if on {
			v = byte(wire.PowerOn)
		}
		_, err := z.client.Write(ctx, z.id, wire.CmdPower, []byte{v})
		return err
	}
	code := wire.RC5PowerOff(z.id)
	if on {
		code = wire.RC5PowerOn(z.id)
	}
	return z.rc5Then(ctx, code, wire.CmdPower)
}

// GetVolume returns the cached volume (0..99).
func (z *Zone) GetVolume() (int, bool) {
	data, ok := z.raw(wire.CmdVolume)
	if !ok {
		return 0, false
	}
	v, err := wire.DecodeVolume(data)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SetVolume writes an absolute volume. Volume has a direct write on every
// family and the acknowledgement echoes the result.
func (z *Zone) SetVolume(ctx context.Context, v int) error {
	if max := z.client.Capabilities().VolumeMax; v < 0 || v > max {
		return fmt.Errorf("volume %d: %w", v, wire.ErrValueOutOfRange)
	}
	b, err := wire.EncodeVolume(v)
	if err != nil {
		return err
	}
	_, err = z.client.Write(ctx, z.id, wire.CmdVolume, []byte{b})
	return err
}

// IncVolume steps the volume up one unit via RC5.
func (z *Zone) IncVolume(ctx context.Context) error {
	return z.rc5Then(ctx, wire.RC5VolumeUp(z.id), wire.CmdVolume)
}

// DecVolume steps the volume down one unit via RC5.
func (z *Zone) DecVolume(ctx context.Context) error {
	return z.rc5Then(ctx, wire.RC5VolumeDown(z.id), wire.CmdVolume)
}

// GetMute returns the cached mute state.
func (z *Zone) GetMute() (bool, bool) {
	data, ok := z.raw(wire.CmdMute)
	if !ok {
		return false, false
	}
	m, err := wire.DecodeMute(data)
	if err != nil {
		return false, false
	}
	return m.Muted(), true
}

// SetMute mutes or unmutes the zone. Families without a direct mute write
// get the RC5 code plus a reconciliation readback; the cached value moves
// only when the readback answer lands.
func (z *Zone) SetMute(ctx context.Context, muted bool) error {
	if z.client.Capabilities().DirectMute {
		v := byte(wire.NotMuted)
		if muted {
			v = byte(wire.Muted)
		}
		_, err := z.client.Write(ctx, z.id, wire.CmdMute, []byte{v})
		return err
	}
	code := wire.RC5MuteOff(z.id)
	if muted {
		code = wire.RC5MuteOn(z.id)
	}
	return z.rc5Then(ctx, code, wire.CmdMute)
}

// GetSource returns the cached source.
func (z *Zone) GetSource() (wire.SourceCode, bool) {
	data, ok := z.raw(wire.CmdCurrentSource)
	if !ok || len(data) < 1 {
		return 0, false
	}
	return wire.SourceCode(data[0]), true
}

// GetSourceList returns the selectable sources for the detected family.
func (z *Zone) GetSourceList() []wire.SourceCode {
	caps := z.client.Capabilities()
	out := make([]wire.SourceCode, len(caps.Sources))
	copy(out, caps.Sources)
	return out
}

// SetSource selects an input source.
func (z *Zone) SetSource(ctx context.Context, src wire.SourceCode) error {
	caps := z.client.Capabilities()
	if !caps.SupportsSource(src) {
		return fmt.Errorf("source %s not available on %s", src, caps.Model)
	}
	if caps.DirectSource {
		_, err := z.client.Write(ctx, z.id, wire.CmdCurrentSource, []byte{byte(src)})
		return err
	}
	code, ok := wire.RC5Source(z.id, src)
	if !ok {
		return fmt.Errorf("source %s has no RC5 select code", src)
	}
	return z.rc5Then(ctx, code, wire.CmdCurrentSource)
}

// audioConfig returns the cached incoming channel configuration, stereo
// when nothing has been received yet.
func (z *Zone) audioConfig() wire.IncomingAudioConfig {
	data, ok := z.raw(wire.CmdIncomingAudioFormat)
	if !ok {
		return wire.AudioConfigStereoOnly
	}
	_, config, err := wire.DecodeIncomingAudioFormat(data)
	if err != nil {
		return wire.AudioConfigStereoOnly
	}
	return config
}

// GetDecodeMode returns the active decode mode, resolved through the table
// matching the incoming channel configuration.
func (z *Zone) GetDecodeMode() (wire.DecodeMode, bool) {
	config := z.audioConfig()
	data, ok := z.raw(wire.DecodeModeCommand(config))
	if !ok || len(data) < 1 {
		return nil, false
	}
	return wire.ResolveDecodeMode(config, data[0]), true
}

// GetDecodeModes returns the selectable decode modes for the current
// incoming audio. The active mode is always included, even when the
// primary table for the detected family omits it.
func (z *Zone) GetDecodeModes() []wire.DecodeMode {
	config := z.audioConfig()
	table := z.client.Capabilities().DecodeModesFor(config)
	out := make([]wire.DecodeMode, len(table))
	copy(out, table)

	current, ok := z.GetDecodeMode()
	if !ok {
		return out
	}
	for _, m := range out {
		if m.Code() == current.Code() && m.Multichannel() == current.Multichannel() {
			return out
		}
	}
	return append(out, current)
}

// SetDecodeMode selects a decode mode. The write goes to the 2ch or MCH
// command depending on which table the mode belongs to.
func (z *Zone) SetDecodeMode(ctx context.Context, mode wire.DecodeMode) error {
	code := wire.CmdDecodeMode2CH
	if mode.Multichannel() {
		code = wire.CmdDecodeModeMCH
	}
	_, err := z.client.Write(ctx, z.id, code, []byte{mode.Code()})
	return err
}

// GetBass returns the cached bass setting in dB.
func (z *Zone) GetBass() (int, bool) { return z.eq(wire.CmdBass, wire.BassTrebleRange) }

// SetBass writes the bass setting (dB).
func (z *Zone) SetBass(ctx context.Context, v int) error {
	return z.setEQ(ctx, wire.CmdBass, v, wire.BassTrebleRange)
}

// GetTreble returns the cached treble setting in dB.
func (z *Zone) GetTreble() (int, bool) { return z.eq(wire.CmdTreble, wire.BassTrebleRange) }

// SetTreble writes the treble setting (dB).
func (z *Zone) SetTreble(ctx context.Context, v int) error {
	return z.setEQ(ctx, wire.CmdTreble, v, wire.BassTrebleRange)
}

// GetBalance returns the cached balance setting.
func (z *Zone) GetBalance() (int, bool) { return z.eq(wire.CmdBalance, wire.BalanceRange) }

// SetBalance writes the balance setting.
func (z *Zone) SetBalance(ctx context.Context, v int) error {
	return z.setEQ(ctx, wire.CmdBalance, v, wire.BalanceRange)
}

// GetSubwooferTrim returns the cached subwoofer trim in dB.
func (z *Zone) GetSubwooferTrim() (float64, bool) {
	units, ok := z.eq(wire.CmdSubwooferTrim, wire.SubwooferTrimRange)
	if !ok {
		return 0, false
	}
	return wire.SubwooferTrimDB(units), true
}

// GetLipsyncDelay returns the cached lipsync delay in milliseconds.
func (z *Zone) GetLipsyncDelay() (int, bool) {
	data, ok := z.raw(wire.CmdLipsyncDelay)
	if !ok || len(data) < 1 {
		return 0, false
	}
	return int(data[0]), true
}

// GetRoomEQ returns the cached room equalisation selection.
func (z *Zone) GetRoomEQ() (byte, bool) {
	data, ok := z.raw(wire.CmdRoomEqualisation)
	if !ok || len(data) < 1 {
		return 0, false
	}
	return data[0], true
}

// SetRoomEQ selects a room equalisation preset.
func (z *Zone) SetRoomEQ(ctx context.Context, v byte) error {
	_, err := z.client.Write(ctx, z.id, wire.CmdRoomEqualisation, []byte{v})
	return err
}

// GetCompression returns the cached dynamic range compression setting.
func (z *Zone) GetCompression() (wire.Compression, bool) {
	data, ok := z.raw(wire.CmdCompression)
	if !ok || len(data) < 1 {
		return 0, false
	}
	return wire.Compression(data[0]), true
}

// SetCompression writes the dynamic range compression setting.
func (z *Zone) SetCompression(ctx context.Context, c wire.Compression) error {
	_, err := z.client.Write(ctx, z.id, wire.CmdCompression, []byte{byte(c)})
	return err
}

// GetDisplayBrightness returns the cached front panel brightness.
func (z *Zone) GetDisplayBrightness() (wire.Brightness, bool) {
	data, ok := z.raw(wire.CmdDisplayBrightness)
	if !ok || len(data) < 1 {
		return 0, false
	}
	return wire.Brightness(data[0]), true
}

// SetDisplayBrightness writes the front panel brightness.
func (z *Zone) SetDisplayBrightness(ctx context.Context, b wire.Brightness) error {
	_, err := z.client.Write(ctx, z.id, wire.CmdDisplayBrightness, []byte{byte(b)})
	return err
}

// GetIncomingAudio returns the detected codec and channel configuration of
// the incoming stream.
func (z *Zone) GetIncomingAudio() (wire.IncomingAudioFormat, wire.IncomingAudioConfig, bool) {
	data, ok := z.raw(wire.CmdIncomingAudioFormat)
	if !ok {
		return 0, 0, false
	}
	format, config, err := wire.DecodeIncomingAudioFormat(data)
	if err != nil {
		return 0, 0, false
	}
	return format, config, true
}

// GetIncomingSampleRate returns the incoming sample rate in Hz, 0 when the
// receiver reports it as undetected.
func (z *Zone) GetIncomingSampleRate() (int, bool) {
	data, ok := z.raw(wire.CmdIncomingAudioSampleRate)
	if !ok {
		return 0, false
	}
	rate, err := wire.DecodeSampleRate(data)
	if err != nil {
		return 0, false
	}
	return rate, true
}

// GetIncomingVideoParameters returns the incoming video stream parameters.
func (z *Zone) GetIncomingVideoParameters() (*wire.VideoParameters, bool) {
	data, ok := z.raw(wire.CmdIncomingVideoParameters)
	if !ok {
		return nil, false
	}
	params, err := wire.DecodeVideoParameters(data)
	if err != nil {
		return nil, false
	}
	return params, true
}

// GetTunerPreset returns the cached tuner preset number.
func (z *Zone) GetTunerPreset() (int, bool) {
	data, ok := z.raw(wire.CmdTunerPreset)
	if !ok || len(data) < 1 {
		return 0, false
	}
	return int(data[0]), true
}

// SetTunerPreset recalls a tuner preset.
func (z *Zone) SetTunerPreset(ctx context.Context, preset int) error {
	if preset < 1 || preset > 50 {
		return fmt.Errorf("preset %d: %w", preset, wire.ErrValueOutOfRange)
	}
	_, err := z.client.Write(ctx, z.id, wire.CmdTunerPreset, []byte{byte(preset)})
	return err
}

// GetDABStation returns the cached DAB station name.
func (z *Zone) GetDABStation() (string, bool) { return z.str(wire.CmdDABStation) }

// GetRDSInformation returns the cached RDS text.
func (z *Zone) GetRDSInformation() (string, bool) { return z.str(wire.CmdRDSInformation) }

// GetDLSPDT returns the cached DAB DLS/PDT text.
func (z *Zone) GetDLSPDT() (string, bool) { return z.str(wire.CmdDLSPDTInfo) }

// GetSoftwareVersion returns the receiver's reported software version.
func (z *Zone) GetSoftwareVersion() (string, bool) { return z.str(wire.CmdSoftwareVersion) }

// NowPlaying is the network playback metadata of a zone.
type NowPlaying struct {
	Title       string
	Artist      string
	Album       string
	Application string
	SampleRate  string
	Encoder     string
}

// GetNowPlaying assembles the cached now-playing metadata.
func (z *Zone) GetNowPlaying() (NowPlaying, bool) {
	get := func(code wire.CommandCode) string {
		s, _ := z.str(code)
		return s
	}
	np := NowPlaying{
		Title:       get(wire.CmdNowPlayingTitle),
		Artist:      get(wire.CmdNowPlayingArtist),
		Album:       get(wire.CmdNowPlayingAlbum),
		Application: get(wire.CmdNowPlayingApplication),
		SampleRate:  get(wire.CmdNowPlayingSampleRate),
		Encoder:     get(wire.CmdNowPlayingEncoder),
	}
	return np, np != (NowPlaying{})
}

// updateCodes is the full-refresh read set. Incoming audio format comes
// before the decode modes so mode resolution sees a fresh channel count.
var updateCodes = []wire.CommandCode{
	wire.CmdPower,
	wire.CmdVolume,
	wire.CmdMute,
	wire.CmdCurrentSource,
	wire.CmdIncomingAudioFormat,
	wire.CmdIncomingAudioSampleRate,
	wire.CmdDecodeMode2CH,
	wire.CmdDecodeModeMCH,
	wire.CmdDisplayBrightness,
	wire.CmdBass,
	wire.CmdTreble,
	wire.CmdBalance,
	wire.CmdSubwooferTrim,
	wire.CmdLipsyncDelay,
	wire.CmdRoomEqualisation,
	wire.CmdCompression,
	wire.CmdIncomingVideoParameters,
	wire.CmdSoftwareVersion,
	wire.CmdTunerPreset,
	wire.CmdDABStation,
	wire.CmdRDSInformation,
	wire.CmdDLSPDTInfo,
}

// Update refreshes every cached attribute with background-priority reads.
// Commands the receiver rejects are remembered and skipped on later
// refreshes; timeouts are logged and do not fail the refresh.
func (z *Zone) Update(ctx context.Context) error {
	for _, code := range updateCodes {
		if z.Unsupported(code) {
			continue
		}
		_, err := z.client.ReadWithPriority(ctx, z.id, code, client.PriorityPoll)
		switch {
		case err == nil:
		case client.IsUnsupported(err):
			z.markUnsupported(code)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			z.log.Debug("state refresh read failed", "command", code.String(), "error", err)
		}
	}
	return nil
}

func (z *Zone) eq(code wire.CommandCode, rangeLimit int) (int, bool) {
	data, ok := z.raw(code)
	if !ok {
		return 0, false
	}
	v, err := wire.DecodeEqualisation(data, rangeLimit)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (z *Zone) setEQ(ctx context.Context, code wire.CommandCode, v, rangeLimit int) error {
	b, err := wire.EncodeEqualisation(v, rangeLimit)
	if err != nil {
		return err
	}
	_, err = z.client.Write(ctx, z.id, code, []byte{b})
	return err
}

func (z *Zone) str(code wire.CommandCode) (string, bool) {
	data, ok := z.raw(code)
	if !ok {
		return "", false
	}
	return wire.DecodeString(data), true
}

// rc5Then simulates an RC5 code whose ack carries no state, then reads the
// attribute back at the highest priority. The cache and change callbacks
// move only when the readback answer is applied.
func (z *Zone) rc5Then(ctx context.Context, code wire.RC5Code, attr wire.CommandCode) error {
	z.markPending(attr)
	if err := z.client.SimulateRC5(ctx, z.id, code); err != nil {
		z.clearPending(attr)
		return err
	}
	if _, err := z.client.ReadWithPriority(ctx, z.id, attr, client.PriorityReadback); err != nil {
		z.clearPending(attr)
		return fmt.Errorf("readback of %s: %w", attr, err)
	}
	return nil
}
