package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jansinger/arcamfmj/pkg/wire"
)

const (
	// BroadcastPort is the UDP port receivers answer AMX queries on.
	BroadcastPort = 50001

	// DefaultBroadcastAddr is the limited broadcast address.
	DefaultBroadcastAddr = "255.255.255.255"

	// DefaultBroadcastTimeout bounds the collection window for replies.
	DefaultBroadcastTimeout = 3 * time.Second
)

// BroadcastConfig configures a UDP beacon sweep.
type BroadcastConfig struct {
	// Addr is the destination address for the query. Defaults to the
	// limited broadcast address; point it at a unicast address to probe
	// one device.
	Addr string

	// Port is the destination UDP port. Defaults to BroadcastPort.
	Port int

	// Timeout is how long to collect replies. Defaults to
	// DefaultBroadcastTimeout.
	Timeout time.Duration

	// Logger for malformed replies. Defaults to slog.Default().
	Logger *slog.Logger
}

// Broadcast sends the AMX identification query over UDP and collects the
// beacon replies that arrive within the timeout. Replies are deduplicated
// by sender address. The error is non-nil only when the query could not
// be sent; an empty network simply yields an empty slice.
func Broadcast(ctx context.Context, cfg BroadcastConfig) ([]*Receiver, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultBroadcastAddr
	}
	if cfg.Port == 0 {
		cfg.Port = BroadcastPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBroadcastTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast address: %w", err)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP(wire.AMXQuery, dst); err != nil {
		return nil, fmt.Errorf("send query: %w", err)
	}

	deadline := time.Now().Add(cfg.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	var found []*Receiver
	seen := make(map[string]bool)
	buf := make([]byte, 1024)
	for {
		if ctx.Err() != nil {
			return found, nil
		}
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Deadline reached: the sweep is over.
			return found, nil
		}
		host := from.IP.String()
		if seen[host] {
			continue
		}
		resp, err := wire.ParseAMXResponse(strings.TrimRight(string(buf[:n]), "\r\n"))
		if err != nil {
			logger.Debug("ignoring non-beacon reply", "from", host, "error", err)
			continue
		}
		seen[host] = true
		found = append(found, beaconReceiver(host, resp))
	}
}

func beaconReceiver(host string, resp *wire.AMXResponse) *Receiver {
	name := resp.Model
	if resp.Make != "" {
		name = resp.Make + " " + resp.Model
	}
	return &Receiver{
		Name:      strings.TrimSpace(name),
		Host:      host,
		Addresses: []string{host},
		Model:     resp.Model,
		Revision:  resp.Revision,
		Source:    SourceBroadcast,
	}
}
