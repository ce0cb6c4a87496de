package discovery

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jansinger/arcamfmj/pkg/wire"
)

// beaconResponder answers AMX queries on a loopback UDP port, like a
// receiver would. Each reply in replies is sent for every query.
func beaconResponder(t *testing.T, replies [][]byte) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 64)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if !bytes.Equal(buf[:n], wire.AMXQuery) {
				continue
			}
			for _, reply := range replies {
				conn.WriteToUDP(reply, from)
			}
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestBroadcastFindsReceiver(t *testing.T) {
	beacon := wire.EncodeAMXBeacon("Receiver", "ARCAM", "AV860", "2.1")
	port := beaconResponder(t, [][]byte{beacon})

	found, err := Broadcast(context.Background(), BroadcastConfig{
		Addr:    "127.0.0.1",
		Port:    port,
		Timeout: 300 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, found, 1)

	recv := found[0]
	assert.Equal(t, "ARCAM AV860", recv.Name)
	assert.Equal(t, "127.0.0.1", recv.Host)
	assert.Equal(t, "AV860", recv.Model)
	assert.Equal(t, "2.1", recv.Revision)
	assert.Equal(t, SourceBroadcast, recv.Source)

	// No port in the beacon: Addr falls back to the control port.
	assert.Equal(t, "127.0.0.1:50000", recv.Addr())
}

func TestBroadcastDeduplicatesAndSkipsGarbage(t *testing.T) {
	beacon := wire.EncodeAMXBeacon("Receiver", "ARCAM", "AVR30", "1.0")
	port := beaconResponder(t, [][]byte{
		[]byte("definitely not a beacon"),
		beacon,
		beacon, // duplicate from the same sender
	})

	found, err := Broadcast(context.Background(), BroadcastConfig{
		Addr:    "127.0.0.1",
		Port:    port,
		Timeout: 300 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "AVR30", found[0].Model)
}

func TestBroadcastEmptyNetwork(t *testing.T) {
	// A listener that never answers.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	found, err := Broadcast(context.Background(), BroadcastConfig{
		Addr:    "127.0.0.1",
		Port:    port,
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestReceiverAddr(t *testing.T) {
	r := &Receiver{Host: "10.0.0.5"}
	assert.Equal(t, "10.0.0.5:50000", r.Addr())

	r = &Receiver{Host: "avr30.local", Port: 50000}
	assert.Equal(t, "avr30.local:50000", r.Addr())
}
