package discovery

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// ServiceType is the mDNS service HDA-generation receivers advertise.
	ServiceType = "_arcam._tcp"

	// Domain is the mDNS domain to browse.
	Domain = "local."

	// BrowseTimeout is the default bound for FindAll.
	BrowseTimeout = 10 * time.Second
)

// BrowserConfig configures mDNS browsing.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface. Empty
	// means all multicast-capable interfaces.
	Interface string

	// Timeout bounds FindAll. Default: BrowseTimeout.
	Timeout time.Duration
}

// Browser watches mDNS for advertised receivers.
type Browser struct {
	config BrowserConfig
}

// NewBrowser builds a browser.
func NewBrowser(config BrowserConfig) *Browser {
	if config.Timeout <= 0 {
		config.Timeout = BrowseTimeout
	}
	return &Browser{config: config}
}

// Browse streams receivers as they are discovered, until ctx is
// cancelled. Advertisements arriving on multiple interfaces are
// aggregated by instance name and emitted once, with their addresses
// merged.
func (b *Browser) Browse(ctx context.Context) (<-chan *Receiver, error) {
	out := make(chan *Receiver)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)

		seen := make(map[string]*Receiver)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				recv := entryToReceiver(entry)
				if recv == nil {
					continue
				}
				if existing, found := seen[recv.Name]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, recv.Addresses)
					continue
				}
				seen[recv.Name] = recv
				select {
				case out <- recv:
				case <-ctx.Done():
					return
				}
			case <-removed:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// FindAll collects every receiver seen within the configured timeout.
func (b *Browser) FindAll(ctx context.Context) ([]*Receiver, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	ch, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	var found []*Receiver
	for recv := range ch {
		found = append(found, recv)
	}
	return found, nil
}

func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		if iface, err := net.InterfaceByName(b.config.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func entryToReceiver(entry *zeroconf.ServiceEntry) *Receiver {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return newReceiver(entry.Instance, entry.HostName, entry.Port, entry.Text, addrs)
}

// newReceiver assembles an mDNS result. TXT records use key=value form;
// model and firmware keys vary by firmware generation, so a few spellings
// are accepted.
func newReceiver(instance, host string, port int, txt, addrs []string) *Receiver {
	if instance == "" && host == "" {
		return nil
	}
	records := parseTXT(txt)
	model := firstOf(records, "model", "md")
	return &Receiver{
		Name:      instance,
		Host:      strings.TrimSuffix(host, "."),
		Port:      port,
		Addresses: addrs,
		Model:     model,
		Revision:  firstOf(records, "fw", "version", "rev"),
		Source:    SourceMDNS,
	}
}

func parseTXT(txt []string) map[string]string {
	records := make(map[string]string, len(txt))
	for _, entry := range txt {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		records[strings.ToLower(key)] = value
	}
	return records
}

func firstOf(records map[string]string, keys ...string) string {
	for _, key := range keys {
		if v, ok := records[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

func mergeAddresses(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a] = true
	}
	for _, a := range incoming {
		if !seen[a] {
			existing = append(existing, a)
			seen[a] = true
		}
	}
	return existing
}
