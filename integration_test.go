package arcamfmj_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jansinger/arcamfmj/internal/emulator"
	"github.com/jansinger/arcamfmj/pkg/client"
	"github.com/jansinger/arcamfmj/pkg/connection"
	protolog "github.com/jansinger/arcamfmj/pkg/log"
	"github.com/jansinger/arcamfmj/pkg/state"
	"github.com/jansinger/arcamfmj/pkg/wire"
)

func fastBackoff() connection.BackoffConfig {
	return connection.BackoffConfig{
		Initial:  20 * time.Millisecond,
		Max:      100 * time.Millisecond,
		NoJitter: true,
	}
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

// TestE2E_ControlSession walks the full stack: connect, detect the model,
// populate a zone store, change volume and mute, and verify that the
// protocol capture recorded the session.
func TestE2E_ControlSession(t *testing.T) {
	recv, err := emulator.New(emulator.Config{Model: "AV860"})
	require.NoError(t, err)
	defer recv.Close()

	capturePath := filepath.Join(t.TempDir(), "session.alog")
	capture, err := protolog.NewFileLogger(capturePath)
	require.NoError(t, err)

	c := client.New(client.Config{
		Address:  recv.Addr(),
		Protocol: capture,
		Backoff:  fastBackoff(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx))

	waitFor(t, func() bool {
		_, name := c.Model()
		return name != ""
	}, "model never detected")

	model, name := c.Model()
	assert.Equal(t, wire.API860Series, model)
	assert.Equal(t, "AV860", name)

	zone := state.NewZone(c, wire.Zone1, nil)
	require.NoError(t, zone.Update(ctx))
	assert.True(t, zone.Available())

	power, ok := zone.GetPower()
	require.True(t, ok)
	assert.True(t, power.On())

	// Direct volume write lands in the emulator register and the cache.
	require.NoError(t, zone.SetVolume(ctx, 42))
	vol, ok := zone.GetVolume()
	require.True(t, ok)
	assert.Equal(t, 42, vol)
	reg, ok := recv.Register(wire.Zone1, wire.CmdVolume)
	require.True(t, ok)
	assert.Equal(t, []byte{42}, reg)

	// The 860 family has no direct mute write, so this goes through RC5
	// simulation plus a readback.
	require.NoError(t, zone.SetMute(ctx, true))
	muted, ok := zone.GetMute()
	require.True(t, ok)
	assert.True(t, muted)
	assert.False(t, zone.Pending(wire.CmdMute))

	c.Close()
	require.NoError(t, capture.Close())

	// The capture must contain the request traffic and the detection
	// state change.
	reader, err := protolog.NewReader(capturePath)
	require.NoError(t, err)
	defer reader.Close()

	var requests, answers, detections int
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		if event.Message != nil {
			switch event.Message.Type {
			case protolog.MessageTypeRequest:
				requests++
			case protolog.MessageTypeAnswer:
				answers++
			}
		}
		if event.StateChange != nil && event.StateChange.Entity == protolog.StateEntityDetection {
			detections++
			assert.Equal(t, "860_SERIES", event.StateChange.NewState)
			assert.Equal(t, "AV860", event.StateChange.Reason)
		}
	}

	assert.Greater(t, requests, 0, "no requests captured")
	assert.Greater(t, answers, 0, "no answers captured")
	assert.Equal(t, 1, detections, "detection not captured exactly once")
}

// TestE2E_Reconnect drops the TCP session mid-flight and verifies
// that commands are served again after the automatic reconnect.
func TestE2E_Reconnect(t *testing.T) {
	recv, err := emulator.New(emulator.Config{Model: "AVR390"})
	require.NoError(t, err)
	defer recv.Close()

	c := client.New(client.Config{
		Address: recv.Addr(),
		Backoff: fastBackoff(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	_, err = c.Read(ctx, wire.Zone1, wire.CmdVolume)
	require.NoError(t, err)

	recv.DropConnections()

	waitFor(t, func() bool {
		readCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		_, err := c.Read(readCtx, wire.Zone1, wire.CmdVolume)
		return err == nil
	}, "client never recovered after connection drop")
}

// TestE2E_DetectionFallback covers receivers that never answer the AMX
// query. The client must fall back to defaults and still serve commands.
func TestE2E_DetectionFallback(t *testing.T) {
	recv, err := emulator.New(emulator.Config{Model: "AV860", DisableAMX: true})
	require.NoError(t, err)
	defer recv.Close()

	c := client.New(client.Config{
		Address:       recv.Addr(),
		DetectTimeout: 200 * time.Millisecond,
		Backoff:       fastBackoff(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	answer, err := c.Read(ctx, wire.Zone1, wire.CmdVolume)
	require.NoError(t, err)
	assert.Equal(t, wire.CmdVolume, answer.Code)

	_, name := c.Model()
	assert.Empty(t, name)
	require.NotNil(t, c.Capabilities())
}
