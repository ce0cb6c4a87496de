// Command arcam-remote is an interactive controller for Arcam FMJ
// receivers.
//
// It connects to a receiver over the IP control port, detects the model,
// keeps a live state cache per zone, and offers a readline prompt for
// control and inspection.
//
// Usage:
//
//	arcam-remote [flags]
//
// Flags:
//
//	-host string          Receiver address (discovered via UDP broadcast when empty)
//	-port int             Control port (default 50000)
//	-config string        YAML configuration file path
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-capture string       Write a CBOR protocol capture to this file
//	-poll-interval duration  Now-playing poll interval (default 5s)
//	-zone2                Also track zone 2
//
// Examples:
//
//	# Discover receivers and connect to the only one found
//	arcam-remote
//
//	# Connect to a known receiver with protocol capture
//	arcam-remote -host 192.168.1.40 -capture session.alog
//
//	# Use a configuration file
//	arcam-remote -config ~/.arcam-remote.yaml
//
// Interactive commands:
//
//	status        - Show the current zone state
//	power on|off  - Switch the zone on or to standby
//	volume <0-99> - Set absolute volume
//	vol+ / vol-   - Step volume
//	mute on|off   - Mute or unmute
//	source [name] - Show or select the source
//	mode [name]   - Show or select the decode mode
//	bass|treble|balance <n> - Tone controls
//	playing       - Show now-playing metadata
//	zone <1|2>    - Switch the active zone
//	detect        - Show the detected model and capabilities
//	discover      - Sweep the network for receivers
//	update        - Re-read every attribute
//	quit          - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jansinger/arcamfmj/cmd/arcam-remote/interactive"
	"github.com/jansinger/arcamfmj/pkg/client"
	"github.com/jansinger/arcamfmj/pkg/discovery"
	protolog "github.com/jansinger/arcamfmj/pkg/log"
	"github.com/jansinger/arcamfmj/pkg/state"
	"github.com/jansinger/arcamfmj/pkg/wire"
)

// Config holds the controller configuration, from flags or a YAML file.
// Flags given on the command line win over file values.
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	LogLevel     string        `yaml:"log_level"`
	Capture      string        `yaml:"capture"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Zone2        bool          `yaml:"zone2"`
}

var (
	config     Config
	configFile string
)

func init() {
	flag.StringVar(&configFile, "config", "", "YAML configuration file path")
	flag.StringVar(&config.Host, "host", "", "Receiver address (discovered when empty)")
	flag.IntVar(&config.Port, "port", 50000, "Control port")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.Capture, "capture", "", "Write a CBOR protocol capture to this file")
	flag.DurationVar(&config.PollInterval, "poll-interval", state.DefaultPollInterval, "Now-playing poll interval")
	flag.BoolVar(&config.Zone2, "zone2", false, "Also track zone 2")
}

func main() {
	flag.Parse()

	if configFile != "" {
		if err := loadConfigFile(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	logger := setupLogging(config.LogLevel, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := config.Host
	if host == "" {
		var err error
		host, err = discoverReceiver(ctx, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	capture := protolog.Logger(protolog.NoopLogger{})
	if config.Capture != "" {
		fileLogger, err := protolog.NewFileLogger(config.Capture)
		if err != nil {
			fmt.Fprintf(os.Stderr, "capture: %v\n", err)
			os.Exit(1)
		}
		defer fileLogger.Close()
		capture = fileLogger
		logger.Info("protocol capture enabled", "file", config.Capture)
	}

	addr := host
	if config.Port != 0 {
		addr = host + ":" + strconv.Itoa(config.Port)
	}

	c := client.New(client.Config{
		Address:  addr,
		Logger:   logger,
		Protocol: capture,
	})
	if err := c.Start(ctx); err != nil {
		logger.Error("connect failed, retrying in background", "address", addr, "error", err)
	}
	defer c.Close()

	zones := map[wire.ZoneID]*state.Zone{
		wire.Zone1: state.NewZone(c, wire.Zone1, logger),
	}
	if config.Zone2 {
		zones[wire.Zone2] = state.NewZone(c, wire.Zone2, logger)
	}

	// Initial refresh once connected, without holding up the prompt.
	go func() {
		for _, z := range zones {
			if err := z.Update(ctx); err != nil {
				logger.Debug("initial refresh incomplete", "zone", int(z.ID()), "error", err)
			}
		}
	}()

	var pollZones []*state.Zone
	for _, z := range zones {
		pollZones = append(pollZones, z)
	}
	poller := state.NewPoller(state.PollerConfig{
		Client:   c,
		Zones:    pollZones,
		Interval: config.PollInterval,
		Logger:   logger,
	})
	poller.Start(ctx)
	defer poller.Stop()

	session, err := interactive.New(c, zones)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Route log output through readline so it does not mangle the prompt.
	logger = setupLogging(config.LogLevel, session.Stdout())
	go session.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}
}

func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fileConfig Config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	// Remember which flags were set explicitly; those win.
	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if !explicit["host"] && fileConfig.Host != "" {
		config.Host = fileConfig.Host
	}
	if !explicit["port"] && fileConfig.Port != 0 {
		config.Port = fileConfig.Port
	}
	if !explicit["log-level"] && fileConfig.LogLevel != "" {
		config.LogLevel = fileConfig.LogLevel
	}
	if !explicit["capture"] && fileConfig.Capture != "" {
		config.Capture = fileConfig.Capture
	}
	if !explicit["poll-interval"] && fileConfig.PollInterval != 0 {
		config.PollInterval = fileConfig.PollInterval
	}
	if !explicit["zone2"] && fileConfig.Zone2 {
		config.Zone2 = true
	}
	return nil
}

func setupLogging(level string, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// discoverReceiver sweeps the network and picks the receiver to connect
// to. With exactly one hit the choice is obvious; otherwise the user has
// to pick with -host.
func discoverReceiver(ctx context.Context, logger *slog.Logger) (string, error) {
	logger.Info("no host given, discovering receivers")

	found, err := discovery.Broadcast(ctx, discovery.BroadcastConfig{Logger: logger})
	if err != nil {
		return "", fmt.Errorf("discovery: %w", err)
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no receivers found; specify -host")
	case 1:
		logger.Info("receiver discovered", "name", found[0].Name, "host", found[0].Host)
		return found[0].Host, nil
	default:
		for _, r := range found {
			fmt.Printf("  %-20s %s\n", r.Name, r.Host)
		}
		return "", fmt.Errorf("%d receivers found; specify -host", len(found))
	}
}
