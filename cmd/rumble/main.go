package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/Moret84/rumble/internal/ble/host"
	"github.com/Moret84/rumble/internal/ble/native"
	"github.com/Moret84/rumble/internal/config"
)

func main() {
	app := cli.NewApp()

	app.Name = "rumble"
	app.Usage = "Scan and explore Bluetooth Low Energy peripherals"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "path to config file (default: ~/.config/rumble/config.yaml)"},
		cli.StringFlag{Name: "log-level", Usage: "override log_level (debug, info, warn, error)"},
	}

	app.Commands = []cli.Command{
		{
			Name:    "scan",
			Aliases: []string{"s"},
			Usage:   "Scan and print discovery events",
			Action:  scan,
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "duration, d", Usage: "scan duration (default: scan.duration)"},
				cli.BoolFlag{Name: "passive", Usage: "do not request scan responses"},
				cli.BoolFlag{Name: "all", Usage: "report repeated advertisements as discoveries"},
			},
		},
		{
			Name:    "explore",
			Aliases: []string{"e"},
			Usage:   "Connect to a peripheral and dump its characteristics",
			Action:  explore,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "address, a", Usage: "device address (default: device.address)"},
				cli.DurationFlag{Name: "duration, d", Usage: "how long to scan for the device (default: scan.duration)"},
				cli.DurationFlag{Name: "subscribe", Usage: "listen to notifications for this long"},
			},
		},
		{
			Name:  "config",
			Usage: "Manage the config file",
			Subcommands: []cli.Command{
				{
					Name:   "init",
					Usage:  "Write the default config file",
					Action: configInit,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rumble: %v\n", err)
		os.Exit(1)
	}
}

// session is what every radio command needs.
type session struct {
	cfg       *config.Config
	transport *native.Transport
	central   *host.Central
}

func open(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c.GlobalString("config"))
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}
	if lvl := c.GlobalString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation")
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	t := native.New(slog.Default())
	if err := t.Enable(); err != nil {
		return nil, errors.Wrap(err, "can't enable adapter")
	}
	central := host.NewCentral(t,
		host.WithActiveScan(cfg.Scan.Active),
		host.WithFilterDuplicates(cfg.Scan.FilterDuplicates),
	)
	return &session{cfg: cfg, transport: t, central: central}, nil
}

func (s *session) close() {
	if err := s.central.Close(); err != nil {
		slog.Warn("closing central", "error", err)
	}
	if err := s.transport.Close(); err != nil {
		slog.Warn("closing transport", "error", err)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Debug("config loaded", "path", defaultPath)
		return cfg, nil
	}

	slog.Debug("no config file found, using defaults")
	return config.Default(), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func configInit(c *cli.Context) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

// chkErr treats the end of the requested duration as success.
func chkErr(err error) error {
	switch errors.Cause(err) {
	case context.DeadlineExceeded:
		return nil
	case context.Canceled:
		fmt.Printf("\n(Canceled)\n")
		return nil
	}
	return err
}
