package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jansinger/arcamfmj/internal/emulator"
	"github.com/jansinger/arcamfmj/pkg/connection"
	protolog "github.com/jansinger/arcamfmj/pkg/log"
	"github.com/jansinger/arcamfmj/pkg/wire"
)

// recordingCapture collects protocol events so tests can count wire
// transactions.
type recordingCapture struct {
	mu     sync.Mutex
	events []protolog.Event
}

func (r *recordingCapture) Log(e protolog.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingCapture) requests(code wire.CommandCode) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Message != nil && e.Message.Type == protolog.MessageTypeRequest && e.Message.Code == uint8(code) {
			n++
		}
	}
	return n
}

func testBackoff() connection.BackoffConfig {
	return connection.BackoffConfig{
		Initial:  20 * time.Millisecond,
		Max:      100 * time.Millisecond,
		NoJitter: true,
	}
}

func startClient(t *testing.T, recv *emulator.Receiver, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Address:        recv.Addr(),
		RequestTimeout: 2 * time.Second,
		DetectTimeout:  2 * time.Second,
		Backoff:        testBackoff(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c := New(cfg)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx))
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

func TestClientReadAndWrite(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	ctx := context.Background()

	answer, err := c.Read(ctx, wire.Zone1, wire.CmdVolume)
	require.NoError(t, err)
	assert.Equal(t, []byte{30}, answer.Data)

	answer, err = c.Write(ctx, wire.Zone1, wire.CmdVolume, []byte{42})
	require.NoError(t, err)
	assert.Equal(t, []byte{42}, answer.Data, "direct write echoes the new value")

	reg, ok := recv.Register(wire.Zone1, wire.CmdVolume)
	require.True(t, ok)
	assert.Equal(t, []byte{42}, reg)
}

func TestClientZone2(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)

	answer, err := c.Read(context.Background(), wire.Zone2, wire.CmdPower)
	require.NoError(t, err)
	assert.Equal(t, wire.Zone2, answer.Zone)
	assert.Equal(t, []byte{byte(wire.PowerStandby)}, answer.Data)
}

func TestClientModelDetection(t *testing.T) {
	recv, err := emulator.New(emulator.Config{Model: "AVR850"})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)

	waitFor(t, func() bool {
		_, name := c.Model()
		return name != ""
	}, "model never detected")

	family, name := c.Model()
	assert.Equal(t, wire.API860Series, family)
	assert.Equal(t, "AVR850", name)
	assert.False(t, c.Capabilities().DirectMute)
}

func TestClientDetectionFallback(t *testing.T) {
	recv, err := emulator.New(emulator.Config{DisableAMX: true})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv, func(cfg *Config) {
		cfg.DetectTimeout = 100 * time.Millisecond
	})

	// Commands work while (and after) detection fails.
	_, err = c.Read(context.Background(), wire.Zone1, wire.CmdVolume)
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond)
	family, name := c.Model()
	assert.Equal(t, wire.API450Series, family)
	assert.Empty(t, name)
}

func TestClientUnsupportedCommand(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)

	// Zone 2 has no bass control.
	_, err = c.Read(context.Background(), wire.Zone2, wire.CmdBass)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))

	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, wire.AnswerCommandNotRecognised, re.Status)
}

func TestClientSimulateRC5(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	ctx := context.Background()

	require.NoError(t, c.SimulateRC5(ctx, wire.Zone1, wire.RC5MuteOn(wire.Zone1)))

	// The ack carries no state; the register changed anyway.
	reg, ok := recv.Register(wire.Zone1, wire.CmdMute)
	require.True(t, ok)
	assert.Equal(t, []byte{byte(wire.Muted)}, reg)

	answer, err := c.Read(ctx, wire.Zone1, wire.CmdMute)
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(wire.Muted)}, answer.Data)
}

func TestClientPushNotifications(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)

	got := make(chan *wire.Answer, 8)
	c.OnAnswer(func(a *wire.Answer) {
		if a.Code == wire.CmdVolume {
			got <- a
		}
	})

	// Front-panel volume change.
	recv.Push(wire.Zone1, wire.CmdVolume, []byte{55})

	select {
	case a := <-got:
		assert.Equal(t, []byte{55}, a.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("push never reached the answer handler")
	}
}

func TestClientTimeout(t *testing.T) {
	recv, err := emulator.New(emulator.Config{AnswerDelay: 500 * time.Millisecond})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv, func(cfg *Config) {
		cfg.RequestTimeout = 100 * time.Millisecond
	})

	_, err = c.Read(context.Background(), wire.Zone1, wire.CmdVolume)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClientDedupInFlightRead(t *testing.T) {
	recv, err := emulator.New(emulator.Config{AnswerDelay: 300 * time.Millisecond})
	require.NoError(t, err)
	defer recv.Close()

	capture := &recordingCapture{}
	c := startClient(t, recv, func(cfg *Config) {
		cfg.Protocol = capture
	})
	ctx := context.Background()

	type readResult struct {
		answer *wire.Answer
		err    error
	}
	firstCh := make(chan readResult, 1)
	go func() {
		a, err := c.Read(ctx, wire.Zone1, wire.CmdVolume)
		firstCh <- readResult{a, err}
	}()

	// Let the first request reach the wire before the duplicate arrives.
	waitFor(t, func() bool {
		return capture.requests(wire.CmdVolume) == 1
	}, "first request never sent")

	second, err := c.Read(ctx, wire.Zone1, wire.CmdVolume)
	require.NoError(t, err)

	first := <-firstCh
	require.NoError(t, first.err)
	assert.Equal(t, first.answer.Data, second.Data)

	assert.Equal(t, 1, capture.requests(wire.CmdVolume), "duplicate read hit the wire")
}

func TestClientDisconnectCancelsInFlight(t *testing.T) {
	recv, err := emulator.New(emulator.Config{AnswerDelay: time.Second})
	require.NoError(t, err)
	defer recv.Close()

	capture := &recordingCapture{}
	c := startClient(t, recv, func(cfg *Config) {
		cfg.Protocol = capture
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Read(context.Background(), wire.Zone1, wire.CmdVolume)
		errCh <- err
	}()

	// Drop the link once the command is on the wire, still awaiting its
	// answer.
	waitFor(t, func() bool {
		return capture.requests(wire.CmdVolume) == 1
	}, "request never sent")
	recv.DropConnections()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight command not cancelled on disconnect")
	}
}

func TestClientReconnect(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	ctx := context.Background()

	_, err = c.Read(ctx, wire.Zone1, wire.CmdVolume)
	require.NoError(t, err)

	recv.DropConnections()

	// Commands keep working once the client has quietly reconnected.
	var answer *wire.Answer
	waitFor(t, func() bool {
		readCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		answer, err = c.Read(readCtx, wire.Zone1, wire.CmdVolume)
		return err == nil
	}, "client never recovered after connection drop")
	assert.Equal(t, []byte{30}, answer.Data)
}

func TestClientClose(t *testing.T) {
	recv, err := emulator.New(emulator.Config{})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)
	c.Close()

	_, err = c.Read(context.Background(), wire.Zone1, wire.CmdVolume)
	assert.ErrorIs(t, err, ErrClosed)

	// Idempotent.
	c.Close()
}

func TestClientContextCancel(t *testing.T) {
	recv, err := emulator.New(emulator.Config{AnswerDelay: time.Second})
	require.NoError(t, err)
	defer recv.Close()

	c := startClient(t, recv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Read(ctx, wire.Zone1, wire.CmdVolume)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
