// Package interactive provides the readline command loop for
// arcam-remote.
package interactive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/jansinger/arcamfmj/pkg/client"
	"github.com/jansinger/arcamfmj/pkg/discovery"
	"github.com/jansinger/arcamfmj/pkg/state"
	"github.com/jansinger/arcamfmj/pkg/wire"
)

// commandTimeout bounds every receiver command issued from the prompt.
const commandTimeout = 5 * time.Second

// Session is the interactive prompt bound to one client.
type Session struct {
	client *client.Client
	zones  map[wire.ZoneID]*state.Zone
	active wire.ZoneID
	rl     *readline.Instance
}

// New creates the interactive session. The zone map must contain zone 1.
func New(c *client.Client, zones map[wire.ZoneID]*state.Zone) (*Session, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "arcam> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("create readline: %w", err)
	}

	return &Session{
		client: c,
		zones:  zones,
		active: wire.Zone1,
		rl:     rl,
	}, nil
}

// Stdout returns a writer that coordinates with the prompt. Use it for
// log output.
func (s *Session) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the command loop. It returns when the user quits or ctx is
// cancelled; quitting calls cancel.
func (s *Session) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		cmdCtx, cmdCancel := context.WithTimeout(ctx, commandTimeout)
		s.dispatch(cmdCtx, cmd, args, cancel)
		cmdCancel()

		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			return
		}
	}
}

func (s *Session) dispatch(ctx context.Context, cmd string, args []string, cancel context.CancelFunc) {
	out := s.rl.Stdout()

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "status":
		s.cmdStatus()

	case "power":
		s.cmdPower(ctx, args)

	case "volume", "vol":
		s.cmdVolume(ctx, args)

	case "vol+":
		s.report(s.zone().IncVolume(ctx))

	case "vol-":
		s.report(s.zone().DecVolume(ctx))

	case "mute":
		s.cmdMute(ctx, args)

	case "source":
		s.cmdSource(ctx, args)

	case "sources":
		s.cmdSources()

	case "mode":
		s.cmdMode(ctx, args)

	case "modes":
		s.cmdModes()

	case "bass":
		s.cmdTone(ctx, args, "bass", s.zone().SetBass, s.zone().GetBass)

	case "treble":
		s.cmdTone(ctx, args, "treble", s.zone().SetTreble, s.zone().GetTreble)

	case "balance":
		s.cmdTone(ctx, args, "balance", s.zone().SetBalance, s.zone().GetBalance)

	case "playing", "np":
		s.cmdNowPlaying()

	case "zone":
		s.cmdZone(args)

	case "detect":
		s.cmdDetect()

	case "discover":
		s.cmdDiscover(ctx)

	case "update", "refresh":
		s.report(s.zone().Update(ctx))

	case "quit", "exit", "q":
		fmt.Fprintln(out, "Exiting...")
		cancel()

	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
}

func (s *Session) zone() *state.Zone {
	return s.zones[s.active]
}

func (s *Session) report(err error) {
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Session) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
Arcam Remote Commands:
  status            - Show the current zone state
  power on|off      - Switch the zone on or to standby
  volume <0-99>     - Set absolute volume
  vol+ / vol-       - Step volume
  mute on|off       - Mute or unmute
  source [name]     - Show or select the source
  sources           - List selectable sources
  mode [name]       - Show or select the decode mode
  modes             - List selectable decode modes
  bass <n>          - Bass in dB
  treble <n>        - Treble in dB
  balance <n>       - Balance
  playing           - Show now-playing metadata
  zone <1|2>        - Switch the active zone
  detect            - Show the detected model
  discover          - Sweep the network for receivers
  update            - Re-read every attribute
  quit              - Exit`)
}

func (s *Session) cmdStatus() {
	out := s.rl.Stdout()
	z := s.zone()

	fmt.Fprintf(out, "Zone %d", int(s.active))
	if !z.Available() {
		fmt.Fprintln(out, " (unavailable)")
		return
	}
	fmt.Fprintln(out)

	if power, ok := z.GetPower(); ok {
		fmt.Fprintf(out, "  Power:      %s\n", power)
	}
	if vol, ok := z.GetVolume(); ok {
		muted, _ := z.GetMute()
		suffix := ""
		if muted {
			suffix = " (muted)"
		}
		fmt.Fprintf(out, "  Volume:     %d%s\n", vol, suffix)
	}
	if src, ok := z.GetSource(); ok {
		fmt.Fprintf(out, "  Source:     %s\n", src)
	}
	if mode, ok := z.GetDecodeMode(); ok {
		fmt.Fprintf(out, "  Mode:       %s\n", mode)
	}
	if format, config, ok := z.GetIncomingAudio(); ok {
		fmt.Fprintf(out, "  Audio in:   %s %s", format, config)
		if rate, ok := z.GetIncomingSampleRate(); ok && rate > 0 {
			fmt.Fprintf(out, " %d Hz", rate)
		}
		fmt.Fprintln(out)
	}
	if params, ok := z.GetIncomingVideoParameters(); ok {
		scan := "p"
		if params.Interlaced {
			scan = "i"
		}
		fmt.Fprintf(out, "  Video in:   %dx%d%s%d\n",
			params.HorizontalResolution, params.VerticalResolution, scan, params.RefreshRate)
	}
	if bass, ok := z.GetBass(); ok {
		treble, _ := z.GetTreble()
		balance, _ := z.GetBalance()
		fmt.Fprintf(out, "  Tone:       bass %+d dB, treble %+d dB, balance %+d\n", bass, treble, balance)
	}
	if trim, ok := z.GetSubwooferTrim(); ok {
		fmt.Fprintf(out, "  Sub trim:   %+.1f dB\n", trim)
	}
	if version, ok := z.GetSoftwareVersion(); ok {
		fmt.Fprintf(out, "  Firmware:   %s\n", version)
	}
}

func (s *Session) cmdPower(ctx context.Context, args []string) {
	on, ok := parseOnOff(args)
	if !ok {
		fmt.Fprintln(s.rl.Stdout(), "Usage: power on|off")
		return
	}
	s.report(s.zone().SetPower(ctx, on))
}

func (s *Session) cmdVolume(ctx context.Context, args []string) {
	out := s.rl.Stdout()
	if len(args) == 0 {
		if vol, ok := s.zone().GetVolume(); ok {
			fmt.Fprintf(out, "Volume: %d\n", vol)
		} else {
			fmt.Fprintln(out, "Volume unknown")
		}
		return
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(out, "Usage: volume <0-99>")
		return
	}
	s.report(s.zone().SetVolume(ctx, v))
}

func (s *Session) cmdMute(ctx context.Context, args []string) {
	muted, ok := parseOnOff(args)
	if !ok {
		fmt.Fprintln(s.rl.Stdout(), "Usage: mute on|off")
		return
	}
	s.report(s.zone().SetMute(ctx, muted))
}

func (s *Session) cmdSource(ctx context.Context, args []string) {
	out := s.rl.Stdout()
	if len(args) == 0 {
		if src, ok := s.zone().GetSource(); ok {
			fmt.Fprintf(out, "Source: %s\n", src)
		} else {
			fmt.Fprintln(out, "Source unknown")
		}
		return
	}
	src, ok := wire.SourceByName(strings.ToUpper(args[0]))
	if !ok {
		fmt.Fprintf(out, "Unknown source: %s (try 'sources')\n", args[0])
		return
	}
	s.report(s.zone().SetSource(ctx, src))
}

func (s *Session) cmdSources() {
	names := make([]string, 0)
	for _, src := range s.zone().GetSourceList() {
		names = append(names, src.String())
	}
	sort.Strings(names)
	fmt.Fprintln(s.rl.Stdout(), strings.Join(names, " "))
}

func (s *Session) cmdMode(ctx context.Context, args []string) {
	out := s.rl.Stdout()
	z := s.zone()

	if len(args) == 0 {
		if mode, ok := z.GetDecodeMode(); ok {
			fmt.Fprintf(out, "Mode: %s\n", mode)
		} else {
			fmt.Fprintln(out, "Mode unknown")
		}
		return
	}

	want := strings.ToUpper(args[0])
	for _, mode := range z.GetDecodeModes() {
		if mode.String() == want {
			s.report(z.SetDecodeMode(ctx, mode))
			return
		}
	}
	fmt.Fprintf(out, "Unknown mode: %s (try 'modes')\n", args[0])
}

func (s *Session) cmdModes() {
	names := make([]string, 0)
	for _, mode := range s.zone().GetDecodeModes() {
		names = append(names, mode.String())
	}
	fmt.Fprintln(s.rl.Stdout(), strings.Join(names, " "))
}

func (s *Session) cmdTone(ctx context.Context, args []string, name string,
	set func(context.Context, int) error, get func() (int, bool)) {
	out := s.rl.Stdout()
	if len(args) == 0 {
		if v, ok := get(); ok {
			fmt.Fprintf(out, "%s: %+d\n", name, v)
		} else {
			fmt.Fprintf(out, "%s unknown\n", name)
		}
		return
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(out, "Usage: %s <n>\n", name)
		return
	}
	s.report(set(ctx, v))
}

func (s *Session) cmdNowPlaying() {
	out := s.rl.Stdout()
	np, ok := s.zone().GetNowPlaying()
	if !ok {
		fmt.Fprintln(out, "Nothing playing (or no network source active)")
		return
	}
	if np.Title != "" {
		fmt.Fprintf(out, "  Title:   %s\n", np.Title)
	}
	if np.Artist != "" {
		fmt.Fprintf(out, "  Artist:  %s\n", np.Artist)
	}
	if np.Album != "" {
		fmt.Fprintf(out, "  Album:   %s\n", np.Album)
	}
	if np.Application != "" {
		fmt.Fprintf(out, "  Via:     %s\n", np.Application)
	}
	if np.SampleRate != "" || np.Encoder != "" {
		fmt.Fprintf(out, "  Stream:  %s %s\n", np.Encoder, np.SampleRate)
	}
}

func (s *Session) cmdZone(args []string) {
	out := s.rl.Stdout()
	if len(args) != 1 {
		fmt.Fprintf(out, "Active zone: %d\n", int(s.active))
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(out, "Usage: zone <1|2>")
		return
	}
	id := wire.ZoneID(n)
	if _, ok := s.zones[id]; !ok {
		fmt.Fprintf(out, "Zone %d is not tracked (start with -zone2)\n", n)
		return
	}
	s.active = id
	fmt.Fprintf(out, "Active zone: %d\n", n)
}

func (s *Session) cmdDetect() {
	out := s.rl.Stdout()
	model, name := s.client.Model()
	if name == "" {
		fmt.Fprintf(out, "Model not detected, using %s capabilities\n", model)
	} else {
		fmt.Fprintf(out, "Model: %s (%s)\n", name, model)
	}
	caps := s.client.Capabilities()
	fmt.Fprintf(out, "  Direct writes: mute=%t power=%t source=%t\n",
		caps.DirectMute, caps.DirectPower, caps.DirectSource)
	fmt.Fprintf(out, "  Volume range:  0-%d\n", caps.VolumeMax)
}

func (s *Session) cmdDiscover(ctx context.Context) {
	out := s.rl.Stdout()
	fmt.Fprintln(out, "Sweeping for receivers...")

	found, err := discovery.Broadcast(ctx, discovery.BroadcastConfig{})
	if err != nil {
		fmt.Fprintf(out, "Broadcast failed: %v\n", err)
	}

	browser := discovery.NewBrowser(discovery.BrowserConfig{Timeout: 2 * time.Second})
	if mdnsFound, err := browser.FindAll(ctx); err == nil {
		found = append(found, mdnsFound...)
	}

	if len(found) == 0 {
		fmt.Fprintln(out, "No receivers found")
		return
	}
	for _, r := range found {
		fmt.Fprintf(out, "  %-20s %-16s %s\n", r.Name, r.Host, r.Source)
	}
}

func parseOnOff(args []string) (on, ok bool) {
	if len(args) != 1 {
		return false, false
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return true, true
	case "off":
		return false, true
	default:
		return false, false
	}
}
