package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jansinger/arcamfmj/pkg/client"
	"github.com/jansinger/arcamfmj/pkg/wire"
)

// DefaultPollInterval is the default now-playing refresh period.
const DefaultPollInterval = 5 * time.Second

// pollCodes is what gets read each tick. The receiver does not push
// network playback metadata; it has to be asked.
var pollCodes = []wire.CommandCode{
	wire.CmdNetworkPlaybackStatus,
	wire.CmdNowPlayingTitle,
	wire.CmdNowPlayingArtist,
	wire.CmdNowPlayingAlbum,
	wire.CmdNowPlayingApplication,
	wire.CmdNowPlayingSampleRate,
	wire.CmdNowPlayingEncoder,
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Client *client.Client
	Zones  []*Zone

	// Interval between polling rounds. Defaults to DefaultPollInterval.
	Interval time.Duration

	// Logger for poll failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// Poller periodically reads now-playing metadata for zones that are
// powered on with a network-capable source. Reads go out at background
// priority so they never delay user commands, and failures only produce
// debug logs.
type Poller struct {
	client   *client.Client
	zones    []*Zone
	interval time.Duration
	log      *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewPoller builds a poller. Call Start to begin polling.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		client:   cfg.Client,
		zones:    cfg.Zones,
		interval: cfg.Interval,
		log:      cfg.Logger,
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop. It runs until Stop is called or ctx is
// cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.run(ctx)
	})
}

// Stop halts polling and waits for an in-progress round to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.poll(ctx)
		case <-ctx.Done():
			return
		case <-p.done:
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if !p.client.Connected() {
		return
	}
	for _, z := range p.zones {
		if !p.shouldPoll(z) {
			continue
		}
		p.pollZone(ctx, z)
	}
}

// shouldPoll gates polling to powered-on zones playing from a source that
// actually carries metadata. Everything else would be needless traffic.
func (p *Poller) shouldPoll(z *Zone) bool {
	power, ok := z.GetPower()
	if !ok || !power.On() {
		return false
	}
	src, ok := z.GetSource()
	if !ok {
		return false
	}
	return src.NetworkCapable()
}

func (p *Poller) pollZone(ctx context.Context, z *Zone) {
	for _, code := range pollCodes {
		if z.Unsupported(code) {
			continue
		}
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		default:
		}
		_, err := p.client.ReadWithPriority(ctx, z.ID(), code, client.PriorityPoll)
		switch {
		case err == nil:
		case client.IsUnsupported(err):
			// Older firmware has no now-playing registers. Remember and
			// stop asking.
			z.markUnsupported(code)
		default:
			p.log.Debug("now-playing poll failed",
				"zone", int(z.ID()), "command", code.String(), "error", err)
		}
	}
}
