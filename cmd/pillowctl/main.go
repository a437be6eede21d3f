package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/app"
	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/bridge"
	"github.com/baegaepro/pillow-client/internal/config"
	"github.com/baegaepro/pillow-client/internal/flow"
	"github.com/baegaepro/pillow-client/internal/models"
	"github.com/baegaepro/pillow-client/pkg/wifi"
)

const usage = `usage: pillowctl [-config file] <command> [flags]

commands:
  signup     -email -password -name
  login      -email -password
  logout
  dashboard
  provision  -scan-file -device -ssid -password -name -city -timezone
  config
`

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Configuration file path")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		app.SetupLogging(config.LogConfig{Level: "info", Format: "console"}, os.Stderr)
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	app.SetupLogging(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, apperr.UserMessage(err))
		log.Debug().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	switch cmd {
	case "config":
		cfg.PrintConfigSummary()
		return nil
	case "signup":
		return signup(ctx, cfg, args)
	case "login":
		return login(ctx, cfg, args)
	case "logout":
		return withApp(cfg, nil, func(a *app.App) error { return a.API.Logout(ctx) })
	case "dashboard":
		return dashboard(ctx, cfg)
	case "provision":
		return provision(ctx, cfg, args)
	}
	flag.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func withApp(cfg *config.Config, host bridge.Host, fn func(a *app.App) error) error {
	a, err := app.New(cfg, host, func() {
		fmt.Fprintln(os.Stderr, "session ended, run `pillowctl login` again")
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close client")
		}
	}()
	return fn(a)
}

func signup(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password")
	name := fs.String("name", "", "Display name")
	fs.Parse(args)

	return withApp(cfg, nil, func(a *app.App) error {
		msg, err := a.API.Signup(ctx, *email, *password, *name)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	})
}

func login(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password")
	fs.Parse(args)

	return withApp(cfg, nil, func(a *app.App) error {
		if err := a.API.Login(ctx, *email, *password); err != nil {
			return err
		}
		fmt.Println("logged in")
		return nil
	})
}

func dashboard(ctx context.Context, cfg *config.Config) error {
	return withApp(cfg, nil, func(a *app.App) error {
		d, err := a.API.Dashboard(ctx)
		if err != nil {
			return err
		}
		return printJSON(d)
	})
}

// provision runs the registration wizard end to end.
// -scan-file replays a saved host scan, standing in for the phone radio.
func provision(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("provision", flag.ExitOnError)
	scanFile := fs.String("scan-file", "", "JSON array of scanned networks")
	deviceSSID := fs.String("device", "", "Device network to join; defaults to the strongest")
	ssid := fs.String("ssid", "", "Home WiFi SSID")
	password := fs.String("password", "", "Home WiFi password")
	name := fs.String("name", "", "Device name")
	city := fs.String("city", models.LocationOptions[0], "Device location")
	timezone := fs.String("timezone", "", "IANA timezone")
	fs.Parse(args)

	var host bridge.Host
	if *scanFile != "" {
		networks, err := readScan(*scanFile)
		if err != nil {
			return err
		}
		host = bridge.NewScriptedHost(networks...)
	}

	return withApp(cfg, host, func(a *app.App) error {
		ctrl := a.Flow
		state, err := ctrl.Restore(ctx)
		if err != nil {
			return err
		}

		switch state {
		case flow.DeviceConnecting, flow.LocationEntry:
			fmt.Printf("resuming at %s\n", state)
		default:
			if err := joinDevice(ctx, ctrl, *deviceSSID, models.WiFiCredentials{SSID: *ssid, Password: *password}); err != nil {
				return err
			}
		}

		if ctrl.State() == flow.DeviceConnecting {
			deviceID, err := ctrl.AwaitCompletion(ctx)
			if errors.Is(err, context.Canceled) {
				fmt.Println("cancelled, run provision again to resume")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("device %s connected\n", deviceID)
		}

		msg, err := ctrl.CompleteSetup(ctx, *name, *city, *timezone)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	})
}

// joinDevice runs the steps up to handing the device its credentials
func joinDevice(ctx context.Context, ctrl *flow.Controller, deviceSSID string, creds models.WiFiCredentials) error {
	code, err := ctrl.Begin(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("code %s (expires in %ds)\n", code.Code, code.ExpiresIn)

	networks, err := ctrl.ScanUntilFound(ctx)
	if err != nil {
		return err
	}
	if len(networks) == 0 {
		return fmt.Errorf("no pillow in range: %w", apperr.ErrScanFailed)
	}

	target := networks[0]
	if deviceSSID != "" {
		target = wifi.DeviceNetwork{SSID: deviceSSID}
		for _, n := range networks {
			if n.SSID == deviceSSID {
				target = n
			}
		}
	}
	fmt.Printf("joining %s (%s)\n", target.SSID, target.SignalLabel)

	if err := ctrl.SelectNetwork(ctx, target); err != nil {
		return err
	}
	return ctrl.SubmitCredentials(ctx, creds)
}

func readScan(path string) ([]wifi.RawNetwork, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scan file: %w", err)
	}
	var networks []wifi.RawNetwork
	if err := json.Unmarshal(data, &networks); err != nil {
		return nil, fmt.Errorf("parse scan file: %w", err)
	}
	return networks, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
