package discovery

import (
	"net"
	"strconv"

	"github.com/jansinger/arcamfmj/pkg/connection"
)

// Source identifies which discovery path produced a Receiver.
type Source int

// Discovery sources.
const (
	// SourceBroadcast is the UDP AMX beacon exchange.
	SourceBroadcast Source = iota

	// SourceMDNS is an mDNS service advertisement.
	SourceMDNS
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceBroadcast:
		return "BROADCAST"
	case SourceMDNS:
		return "MDNS"
	default:
		return "UNKNOWN"
	}
}

// Receiver is one discovered device.
type Receiver struct {
	// Name is the advertised instance name, or make and model for
	// beacon replies.
	Name string

	// Host is the address to connect to. An IP for beacon replies, a
	// hostname for mDNS results.
	Host string

	// Port is the control port. Zero means the protocol default.
	Port int

	// Addresses are all resolved IPs, when the path provides them.
	Addresses []string

	// Model and Revision as disclosed by the device, possibly empty.
	Model    string
	Revision string

	// Source is the discovery path that found this receiver.
	Source Source
}

// Addr returns the host:port to hand to the client.
func (r *Receiver) Addr() string {
	port := r.Port
	if port == 0 {
		port, _ = strconv.Atoi(connection.DefaultPort)
	}
	return net.JoinHostPort(r.Host, strconv.Itoa(port))
}
