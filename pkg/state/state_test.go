package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jansinger/arcamfmj/internal/emulator"
	"github.com/jansinger/arcamfmj/pkg/client"
	"github.com/jansinger/arcamfmj/pkg/connection"
	"github.com/jansinger/arcamfmj/pkg/wire"
)

func startClient(t *testing.T, recv *emulator.Receiver) *client.Client {
	t.Helper()
	c := client.New(client.Config{
		Address: recv.Addr(),
		Backoff: connection.BackoffConfig{
			Initial:  20 * time.Millisecond,
			Max:      100 * time.Millisecond,
			NoJitter: true,
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx))
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// waitDetected blocks until model detection finished, so capability
// dependent paths see the real family instead of the fallback.
func waitDetected(t *testing.T, c *client.Client) {
	t.Helper()
	waitFor(t, func() bool {
		_, name := c.Model()
		return name != ""
	}, "model never detected")
}

// changeRecorder collects per-code change counts and last values.
type changeRecorder struct {
	mu     sync.Mutex
	counts map[wire.CommandCode]int
	last   map[wire.CommandCode][]byte
}

func newChangeRecorder(z *Zone) *changeRecorder {
	r := &changeRecorder{
		counts: make(map[wire.CommandCode]int),
		last:   make(map[wire.CommandCode][]byte),
	}
	z.OnChange(func(ch Change) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.counts[ch.Code]++
		r.last[ch.Code] = ch.New
	})
	return r
}

func (r *changeRecorder) count(code wire.CommandCode) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[code]
}

func (r *changeRecorder) lastValue(code wire.CommandCode) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[code]
}

func TestZoneUpdate(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	z := NewZone(c, wire.Zone1, nil)
	ctx := context.Background()

	require.NoError(t, z.Update(ctx))

	power, ok := z.GetPower()
	require.True(t, ok)
	assert.True(t, power.On())

	vol, ok := z.GetVolume()
	require.True(t, ok)
	assert.Equal(t, 30, vol)

	muted, ok := z.GetMute()
	require.True(t, ok)
	assert.False(t, muted)

	src, ok := z.GetSource()
	require.True(t, ok)
	assert.Equal(t, wire.SourceBD, src)

	format, config, ok := z.GetIncomingAudio()
	require.True(t, ok)
	assert.Equal(t, wire.AudioFormatPCM, format)
	assert.Equal(t, wire.AudioConfigStereoOnly, config)

	rate, ok := z.GetIncomingSampleRate()
	require.True(t, ok)
	assert.Equal(t, 48000, rate)

	mode, ok := z.GetDecodeMode()
	require.True(t, ok)
	assert.Equal(t, "STEREO", mode.String())

	version, ok := z.GetSoftwareVersion()
	require.True(t, ok)
	assert.Equal(t, "1.0", version)

	bass, ok := z.GetBass()
	require.True(t, ok)
	assert.Equal(t, 0, bass)

	// The emulator has no tuner; the refresh remembers the rejection.
	assert.True(t, z.Unsupported(wire.CmdRDSInformation))
	_, ok = z.GetRDSInformation()
	assert.False(t, ok)

	snap := z.Snapshot()
	assert.Equal(t, []byte{30}, snap[wire.CmdVolume])

	// The snapshot is a copy, not a view into the cache.
	snap[wire.CmdVolume][0] = 99
	vol, ok = z.GetVolume()
	require.True(t, ok)
	assert.Equal(t, 30, vol)
}

func TestZoneAvailability(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	z := NewZone(c, wire.Zone1, nil)

	// Connected but never read power: unavailable, not "off".
	waitFor(t, c.Connected, "client never connected")
	assert.False(t, z.Available())
	_, ok := z.GetPower()
	assert.False(t, ok)

	ctx := context.Background()
	_, err = c.Read(ctx, wire.Zone1, wire.CmdPower)
	require.NoError(t, err)

	waitFor(t, z.Available, "zone never became available")
}

func TestZoneMuteReconciliation(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	waitDetected(t, c)
	require.False(t, c.Capabilities().DirectMute, "AV860 must take the RC5 path")

	z := NewZone(c, wire.Zone1, nil)
	ctx := context.Background()
	_, err = c.Read(ctx, wire.Zone1, wire.CmdMute)
	require.NoError(t, err)

	rec := newChangeRecorder(z)

	require.NoError(t, z.SetMute(ctx, true))

	muted, ok := z.GetMute()
	require.True(t, ok)
	assert.True(t, muted)
	assert.False(t, z.Pending(wire.CmdMute))

	// Exactly one change, from the readback answer. The RC5 ack echoes
	// code bytes and must not touch the cache.
	assert.Equal(t, 1, rec.count(wire.CmdMute))
	assert.Equal(t, []byte{byte(wire.Muted)}, rec.lastValue(wire.CmdMute))

	data, _ := recv.Register(wire.Zone1, wire.CmdMute)
	assert.Equal(t, []byte{byte(wire.Muted)}, data)
}

func TestZoneChangeNotificationIsDiffBased(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	z := NewZone(c, wire.Zone1, nil)
	rec := newChangeRecorder(z)
	ctx := context.Background()

	_, err = c.Read(ctx, wire.Zone1, wire.CmdVolume)
	require.NoError(t, err)
	_, err = c.Read(ctx, wire.Zone1, wire.CmdVolume)
	require.NoError(t, err)

	// Two answers, one distinct value: one change.
	assert.Equal(t, 1, rec.count(wire.CmdVolume))

	require.NoError(t, z.SetVolume(ctx, 40))
	waitFor(t, func() bool { return rec.count(wire.CmdVolume) == 2 }, "volume change never fired")
	assert.Equal(t, []byte{40}, rec.lastValue(wire.CmdVolume))
}

func TestZoneSetValidation(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	waitDetected(t, c)
	z := NewZone(c, wire.Zone1, nil)
	ctx := context.Background()

	assert.ErrorIs(t, z.SetVolume(ctx, 120), wire.ErrValueOutOfRange)
	assert.ErrorIs(t, z.SetBass(ctx, 40), wire.ErrValueOutOfRange)
	assert.ErrorIs(t, z.SetTunerPreset(ctx, 0), wire.ErrValueOutOfRange)

	// VCR is not an 860 family source.
	assert.Error(t, z.SetSource(ctx, wire.SourceVCR))
}

func TestZoneSetSource(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	waitDetected(t, c)
	z := NewZone(c, wire.Zone1, nil)
	ctx := context.Background()

	require.NoError(t, z.SetSource(ctx, wire.SourceNet))

	src, ok := z.GetSource()
	require.True(t, ok)
	assert.Equal(t, wire.SourceNet, src)

	list := z.GetSourceList()
	assert.Contains(t, list, wire.SourceNet)
	assert.NotContains(t, list, wire.SourceVCR)
}

func TestZoneDecodeModeFallback(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	waitDetected(t, c)
	z := NewZone(c, wire.Zone1, nil)
	ctx := context.Background()

	require.NoError(t, z.Update(ctx))

	table := z.GetDecodeModes()
	assert.Contains(t, modeNames(table), "STEREO")

	// A mode outside the 860 family's 2ch table. The option list must
	// still include it once it is the active mode.
	recv.SetRegister(wire.Zone1, wire.CmdDecodeMode2CH, []byte{byte(wire.Mode2CHProLogicIIxMovie)})
	_, err = c.Read(ctx, wire.Zone1, wire.CmdDecodeMode2CH)
	require.NoError(t, err)

	mode, ok := z.GetDecodeMode()
	require.True(t, ok)

	withCurrent := z.GetDecodeModes()
	assert.Len(t, withCurrent, len(table)+1)
	assert.Contains(t, modeNames(withCurrent), mode.String())
}

func TestZoneMultichannelModeResolution(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	waitDetected(t, c)
	z := NewZone(c, wire.Zone1, nil)
	ctx := context.Background()

	// 5.1 PCM: mode resolution must go through the multichannel table.
	recv.SetRegister(wire.Zone1, wire.CmdIncomingAudioFormat,
		[]byte{byte(wire.AudioFormatPCM), byte(wire.AudioConfigFivePointOne)})
	require.NoError(t, z.Update(ctx))

	mode, ok := z.GetDecodeMode()
	require.True(t, ok)
	assert.True(t, mode.Multichannel())
	assert.Equal(t, "MULTI_CHANNEL", mode.String())
}

func TestZoneIgnoresOtherZone(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	z2 := NewZone(c, wire.Zone2, nil)
	ctx := context.Background()

	_, err = c.Read(ctx, wire.Zone1, wire.CmdVolume)
	require.NoError(t, err)

	_, ok := z2.GetVolume()
	assert.False(t, ok, "zone 2 store must not cache zone 1 answers")

	_, err = c.Read(ctx, wire.Zone2, wire.CmdVolume)
	require.NoError(t, err)

	vol, ok := z2.GetVolume()
	require.True(t, ok)
	assert.Equal(t, 20, vol)
}

func modeNames(modes []wire.DecodeMode) []string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = m.String()
	}
	return names
}
